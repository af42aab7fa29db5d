package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyAndWhitespace(t *testing.T) {
	c := NewChunker(1000, 20)

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkSingleWhenTextFits(t *testing.T) {
	c := NewChunker(1000, 20)

	text := strings.Repeat("a", 1000)
	chunks := c.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].TotalChunks)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 1000, chunks[0].EndChar)
}

func TestChunkSplitsOneCharOverLimit(t *testing.T) {
	c := NewChunker(1000, 20)

	chunks := c.Chunk(strings.Repeat("a", 1001))
	assert.Len(t, chunks, 2)
}

func TestChunkOverlapWithinRange(t *testing.T) {
	// 2500 chars with a break char every 100 gives chunks near the 1000
	// target; successive chunks overlap by roughly 200 chars (20%), less
	// the forward scan to the next boundary.
	var sb strings.Builder
	for sb.Len() < 2500 {
		sb.WriteString(strings.Repeat("a", 99))
		sb.WriteString(".")
	}
	text := sb.String()[:2500]

	c := NewChunker(1000, 20)
	chunks := c.Chunk(text)

	require.GreaterOrEqual(t, len(chunks), 3)

	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].EndChar - chunks[i].StartChar
		assert.GreaterOrEqual(t, overlap, 100, "chunk %d overlap too small", i)
		assert.LessOrEqual(t, overlap, 250, "chunk %d overlap too large", i)
	}
}

func TestChunkBreaksAtSentenceBoundaries(t *testing.T) {
	// A tiny chunk size makes boundary behavior observable: every chunk
	// should end just after a break character when one is in range.
	text := "One sentence here. Another one follows. A third trails after."
	c := NewChunker(20, 0)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks[:len(chunks)-1] {
		last := chunk.Text[len(chunk.Text)-1]
		assert.Contains(t, breakChars, string(last),
			"chunk %d should end on a break char, got %q", i, chunk.Text)
	}
}

func TestChunkCJKBoundaries(t *testing.T) {
	text := strings.Repeat("这是一个句子。", 100)
	c := NewChunker(500, 20)

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks[:len(chunks)-1] {
		runes := []rune(chunk.Text)
		assert.Equal(t, '。', runes[len(runes)-1], "chunk %d should end at 。", i)
	}
}

func TestChunkForwardProgressWithoutBoundaries(t *testing.T) {
	// No break chars at all: every step must still advance.
	text := strings.Repeat("x", 5000)
	c := NewChunker(1000, 50)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)

	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].StartChar, chunks[i-1].StartChar)
	}
	assert.Equal(t, 5000, chunks[len(chunks)-1].EndChar)
}

func TestChunkNormalizesWhitespace(t *testing.T) {
	c := NewChunker(1000, 20)

	chunks := c.Chunk("hello\n\n\t  world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
}

func TestChunkOffsetsAreRuneBased(t *testing.T) {
	text := strings.Repeat("汉", 600) + "。" + strings.Repeat("字", 600)
	c := NewChunker(700, 0)

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	runes := []rune(strings.TrimSpace(text))
	for _, chunk := range chunks {
		assert.Equal(t, string(runes[chunk.StartChar:chunk.EndChar]), chunk.Text)
		assert.Equal(t, chunk.EndChar-chunk.StartChar, chunk.CharCount)
	}
}

func TestChunkIndexAndTotal(t *testing.T) {
	c := NewChunker(500, 10)
	chunks := c.Chunk(strings.Repeat("word. ", 500))

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, len(chunks), chunk.TotalChunks)
	}
}
