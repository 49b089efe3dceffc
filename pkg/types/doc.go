// Package types provides shared type definitions for codebase-context.
//
// Chunk is a located region of a source file as returned by a retrieval
// backend. Two chunks are the same region when their file path and line
// range match, regardless of content:
//
//	a := types.Chunk{FilePath: "/repo/a.go", StartLine: 1, EndLine: 10}
//	b := types.Chunk{FilePath: "/repo/a.go", StartLine: 1, EndLine: 10, Content: "..."}
//	a.SameRegion(b) // true
//
// ScopeTag pairs a workspace root with its branch. BranchUnknown ("NONE") is
// used when the branch could not be determined in time.
//
// ContextItem is the rendered output of retrieval. ErrNoWorkspace and
// ErrNoResults are the two non-fatal-to-the-process outcomes callers should
// check with errors.Is.
package types
