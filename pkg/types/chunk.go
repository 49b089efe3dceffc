package types

import (
	"errors"
	"path/filepath"
)

// Chunk is a contiguous region of a source file returned by a retrieval backend.
type Chunk struct {
	// Location
	FilePath  string // Absolute path as reported by the backend
	StartLine int    // 1-based, inclusive
	EndLine   int    // 1-based, inclusive

	// Content
	Content string

	// Score is the backend-specific rank signal. It is never rendered.
	Score float64
}

// Validate checks the location invariants of the chunk
func (c *Chunk) Validate() error {
	if c.FilePath == "" {
		return errors.New("chunk file path cannot be empty")
	}

	if c.StartLine < 0 || c.EndLine < 0 {
		return errors.New("line numbers must not be negative")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// SameRegion reports whether c and other cover the same file region.
// Content is not compared.
func (c Chunk) SameRegion(other Chunk) bool {
	return c.FilePath == other.FilePath &&
		c.StartLine == other.StartLine &&
		c.EndLine == other.EndLine
}

// BaseName returns the final path element of the chunk's file
func (c Chunk) BaseName() string {
	return filepath.Base(c.FilePath)
}

// TokenCount estimates the number of tokens in the chunk.
// Uses a simple heuristic: characters / 4
func (c Chunk) TokenCount() int {
	return len(c.Content) / 4
}
