package retrieval

import "github.com/dshills/codebase-context/pkg/types"

// Deduplicate returns items with later duplicates removed. Order is kept and
// the first of each equal group survives. equal is checked pairwise, so the
// cost is quadratic in len(items).
func Deduplicate[T any](items []T, equal func(a, b T) bool) []T {
	out := make([]T, 0, len(items))
next:
	for _, item := range items {
		for _, kept := range out {
			if equal(kept, item) {
				continue next
			}
		}
		out = append(out, item)
	}
	return out
}

// DeduplicateChunks removes chunks covering an already seen region.
func DeduplicateChunks(chunks []types.Chunk) []types.Chunk {
	return Deduplicate(chunks, types.Chunk.SameRegion)
}
