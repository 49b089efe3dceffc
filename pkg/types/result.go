package types

// ContextItem is one unit of retrieved context handed to a consumer
type ContextItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`

	// Optional presentation flags. The retrieval pipeline never sets them.
	Editing  bool `json:"editing,omitempty"`
	Editable bool `json:"editable,omitempty"`
}
