// Package chunker divides source files into line-window chunks for
// indexing.
//
// Chunks never split a line and stay under a token budget estimated as
// characters divided by four. Blank lines are preferred cut points, so
// paragraphs of code such as functions tend to stay together without any
// language-specific parsing:
//
//	c := chunker.New(0) // MaxTokensPerChunk
//	for _, ch := range c.Split(string(data)) {
//	    fmt.Printf("lines %d-%d, ~%d tokens\n", ch.StartLine, ch.EndLine, ch.TokenCount)
//	}
//
// Line numbers are 1-based and inclusive. Joining lines StartLine..EndLine
// of the original file with "\n" reproduces Content exactly, which is how
// the vector backend recovers chunk text from disk.
package chunker
