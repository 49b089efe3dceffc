package workspace

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/dshills/codebase-context/pkg/types"
)

// BranchLookup reports the current branch of a workspace root. It never
// fails; types.BranchUnknown stands for "no branch".
type BranchLookup interface {
	Branch(ctx context.Context, root string) string
}

// BranchLookupFunc adapts a function to BranchLookup.
type BranchLookupFunc func(ctx context.Context, root string) string

// Branch calls f.
func (f BranchLookupFunc) Branch(ctx context.Context, root string) string {
	return f(ctx, root)
}

// GitBranchLookup reads HEAD of the repository containing root.
type GitBranchLookup struct{}

// Branch returns the short branch name HEAD points at. Roots outside a
// repository and detached HEADs yield types.BranchUnknown. An unborn branch
// still reports its name.
func (GitBranchLookup) Branch(_ context.Context, root string) string {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return types.BranchUnknown
	}

	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return types.BranchUnknown
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return types.BranchUnknown
	}
	return head.Target().Short()
}
