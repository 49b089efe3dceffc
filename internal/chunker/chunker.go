package chunker

import (
	"crypto/sha256"
	"strings"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 1000

	// CharsPerToken is the heuristic for estimating tokens (chars/4)
	CharsPerToken = 4
)

// Chunk is a contiguous run of lines from one file
type Chunk struct {
	StartLine   int // 1-based, inclusive
	EndLine     int // 1-based, inclusive
	Content     string
	TokenCount  int
	ContentHash [32]byte
}

// Chunker splits file content into line windows
type Chunker struct {
	maxTokens int
}

// New creates a Chunker. maxTokens <= 0 uses MaxTokensPerChunk.
func New(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = MaxTokensPerChunk
	}
	return &Chunker{maxTokens: maxTokens}
}

// Split cuts content into chunks of at most maxTokens (estimated), never
// splitting a line. When a window fills up it is cut at its last blank line
// if that keeps at least half the window, otherwise right before the line
// that overflowed. Leading and trailing blank lines are trimmed from every
// chunk and blank-only windows are dropped.
//
// Lines are numbered as strings.Split(content, "\n") numbers them.
func (c *Chunker) Split(content string) []Chunk {
	lines := strings.Split(content, "\n")
	maxChars := c.maxTokens * CharsPerToken

	var chunks []Chunk
	start, size, lastBlank := 0, 0, -1

	for i, line := range lines {
		width := len(line) + 1
		for size+width > maxChars && i > start {
			cut := i - 1
			if lastBlank > start && lastBlank-start >= (i-start)/2 {
				cut = lastBlank
			}
			chunks = appendChunk(chunks, lines, start, cut)

			start = cut + 1
			size, lastBlank = 0, -1
			for j := start; j < i; j++ {
				size += len(lines[j]) + 1
				if isBlank(lines[j]) {
					lastBlank = j
				}
			}
		}

		size += width
		if isBlank(line) {
			lastBlank = i
		}
	}
	return appendChunk(chunks, lines, start, len(lines)-1)
}

// appendChunk adds lines[start..end] (0-based, inclusive) after trimming
// blank lines at either end
func appendChunk(chunks []Chunk, lines []string, start, end int) []Chunk {
	for start <= end && isBlank(lines[start]) {
		start++
	}
	for end >= start && isBlank(lines[end]) {
		end--
	}
	if start > end {
		return chunks
	}

	content := strings.Join(lines[start:end+1], "\n")
	return append(chunks, Chunk{
		StartLine:   start + 1,
		EndLine:     end + 1,
		Content:     content,
		TokenCount:  len(content) / CharsPerToken,
		ContentHash: sha256.Sum256([]byte(content)),
	})
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
