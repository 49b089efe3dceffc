package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StaticRoots is a fixed, configured list of workspace roots.
type StaticRoots struct {
	roots []string
}

// NewStaticRoots makes every root absolute and drops empty entries and
// duplicates, keeping first-seen order.
func NewStaticRoots(roots []string) (*StaticRoots, error) {
	seen := make(map[string]bool, len(roots))
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace root %s: %w", root, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		cleaned = append(cleaned, abs)
	}
	return &StaticRoots{roots: cleaned}, nil
}

// Roots returns a copy of the configured roots.
func (s *StaticRoots) Roots(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out, nil
}

// ReadFile reads a file from the local filesystem.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
