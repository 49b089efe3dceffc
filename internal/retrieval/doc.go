// Package retrieval fuses full-text and vector search into one ordered,
// duplicate-free list of context items.
//
// A call to Pipeline.Retrieve:
//
//  1. lists the workspace roots (none is types.ErrNoWorkspace)
//  2. tags each root with its branch under a bounded timeout
//  3. queries the full-text backend (budget n/2) and a freshly built vector
//     backend (budget n) concurrently
//  4. concatenates full-text hits before vector hits and drops repeated
//     (path, start, end) regions, keeping the first
//  5. renders one item per chunk plus a trailing instructions item
//
// A full-text failure fails the call. A vector failure is logged and the
// call continues with full-text hits only.
package retrieval
