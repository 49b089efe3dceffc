package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Equal(t, MaxTokensPerChunk, New(0).maxTokens)
	assert.Equal(t, 50, New(50).maxTokens)
}

func TestSplit_SmallFile(t *testing.T) {
	content := `package testpkg

import "fmt"

// Greet prints a greeting message
func Greet(name string) {
	fmt.Println("Hello, " + name)
}
`
	chunks := New(0).Split(content)
	require.Len(t, chunks, 1)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 8, chunks[0].EndLine, "trailing newline is trimmed")
	assert.Equal(t, strings.TrimRight(content, "\n"), chunks[0].Content)
	assert.Equal(t, len(chunks[0].Content)/CharsPerToken, chunks[0].TokenCount)
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, New(0).Split(""))
	assert.Empty(t, New(0).Split("\n\n   \n\t\n"))
}

func TestSplit_TrimsBlankEdges(t *testing.T) {
	chunks := New(0).Split("\n\nfunc a() {}\n\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, 3, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestSplit_RespectsBudget(t *testing.T) {
	var b strings.Builder
	for i := range 200 {
		fmt.Fprintf(&b, "line %03d of generated content\n", i)
	}
	content := b.String()

	c := New(100)
	chunks := c.Split(content)
	require.Greater(t, len(chunks), 1)

	lines := strings.Split(content, "\n")
	prevEnd := 0
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content)+1, 100*CharsPerToken)
		assert.Greater(t, ch.StartLine, prevEnd, "chunks do not overlap")
		assert.Equal(t, strings.Join(lines[ch.StartLine-1:ch.EndLine], "\n"), ch.Content)
		prevEnd = ch.EndLine
	}
	assert.Equal(t, 200, prevEnd, "every line is covered")
}

func TestSplit_PrefersBlankLines(t *testing.T) {
	// Two 8-line paragraphs of ~40 chars per line, budget fits about 12 lines
	var b strings.Builder
	for p := range 2 {
		for i := range 8 {
			fmt.Fprintf(&b, "paragraph %d statement %d padded to width.\n", p, i)
		}
		b.WriteString("\n")
	}

	chunks := New(130).Split(b.String())
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 8, chunks[0].EndLine)
	assert.Equal(t, 10, chunks[1].StartLine)
	assert.Equal(t, 17, chunks[1].EndLine)
}

func TestSplit_OversizedLine(t *testing.T) {
	long := strings.Repeat("x", 500)
	chunks := New(10).Split("short\n" + long + "\nshort")
	require.Len(t, chunks, 3)
	assert.Equal(t, long, chunks[1].Content)
	assert.Equal(t, 2, chunks[1].StartLine)
}

func TestSplit_HashTracksContent(t *testing.T) {
	a := New(0).Split("func a() {}")
	b := New(0).Split("func b() {}")
	again := New(0).Split("func a() {}")

	assert.NotEqual(t, a[0].ContentHash, b[0].ContentHash)
	assert.Equal(t, a[0].ContentHash, again[0].ContentHash)
}
