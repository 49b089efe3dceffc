package types

// BranchUnknown is the branch value used when a workspace's branch could not
// be determined, including when branch resolution timed out.
const BranchUnknown = "NONE"

// ScopeTag scopes a search to one workspace root at one branch
type ScopeTag struct {
	Directory string
	Branch    string
}

// Known reports whether the branch was actually resolved
func (s ScopeTag) Known() bool {
	return s.Branch != "" && s.Branch != BranchUnknown
}

// UnknownScopes tags every root with BranchUnknown
func UnknownScopes(roots []string) []ScopeTag {
	tags := make([]ScopeTag, len(roots))
	for i, root := range roots {
		tags[i] = ScopeTag{Directory: root, Branch: BranchUnknown}
	}
	return tags
}
