package workspace

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/pkg/types"
)

// DefaultBranchTimeout bounds the whole set of branch lookups.
const DefaultBranchTimeout = 500 * time.Millisecond

// Resolver tags workspace roots with their branches.
type Resolver struct {
	lookup  BranchLookup
	timeout time.Duration
	logger  *logging.Logger
}

// NewResolver creates a Resolver. A non-positive timeout uses
// DefaultBranchTimeout and a nil logger discards output.
func NewResolver(lookup BranchLookup, timeout time.Duration, logger *logging.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultBranchTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{lookup: lookup, timeout: timeout, logger: logger}
}

// Resolve looks up every root's branch concurrently. The result has one tag
// per root in input order. If the lookups do not all finish within the
// timeout, or ctx ends first, every tag carries types.BranchUnknown.
func (r *Resolver) Resolve(ctx context.Context, roots []string) []types.ScopeTag {
	if len(roots) == 0 {
		return nil
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each goroutine writes only its own index. Nothing reads branches
	// unless every write has happened.
	branches := make([]string, len(roots))
	done := make(chan struct{})
	go func() {
		var g errgroup.Group
		for i, root := range roots {
			g.Go(func() error {
				branches[i] = r.lookup.Branch(lookupCtx, root)
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		r.logger.DebugContext(ctx, "branch lookup timed out", "roots", len(roots), "timeout", r.timeout)
		return types.UnknownScopes(roots)
	case <-ctx.Done():
		return types.UnknownScopes(roots)
	}

	tags := make([]types.ScopeTag, len(roots))
	for i, root := range roots {
		branch := branches[i]
		if branch == "" {
			branch = types.BranchUnknown
		}
		tags[i] = types.ScopeTag{Directory: root, Branch: branch}
	}
	return tags
}
