package document

import (
	"regexp"
	"strings"

	"github.com/figurechat/figurechat/internal/config"
)

// breakChars are the characters a chunk may end after (CJK and ASCII
// sentence terminators, newline, space). Chunk starts advance past the same
// set so chunks begin on a clean boundary.
const breakChars = "。！？；.!?;\n "

// boundaryWindow is how far the chunker scans for a break character, both
// backwards from a target end and forwards from a tentative start.
const boundaryWindow = 50

var whitespaceRe = regexp.MustCompile(`\s+`)

// Chunk is a contiguous piece of one source document. Offsets are rune
// positions into the normalized text.
type Chunk struct {
	Text        string
	Index       int
	TotalChunks int
	StartChar   int
	EndChar     int
	CharCount   int
}

// Chunker splits normalized text into boundary-aware overlapping chunks.
type Chunker struct {
	maxChars int
	overlap  int
}

// NewChunker creates a chunker for the given chunk size and overlap
// percentage. Range clamping is the config layer's responsibility; here only
// nonsensical values fall back to defaults.
func NewChunker(maxChars, overlapPercent int) *Chunker {
	if maxChars <= 0 {
		maxChars = config.DefaultChunkChars
	}
	if overlapPercent < 0 {
		overlapPercent = config.DefaultOverlapPct
	}
	return &Chunker{
		maxChars: maxChars,
		overlap:  maxChars * overlapPercent / 100,
	}
}

// Chunk splits text into chunks of at most maxChars runes, ending chunks
// just after a break character when one exists within the boundary window,
// and overlapping successive chunks by roughly overlap runes.
func (c *Chunker) Chunk(text string) []Chunk {
	normalized := strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	runes := []rune(normalized)
	n := len(runes)

	if n == 0 {
		return nil
	}

	if n <= c.maxChars {
		chunks := []Chunk{{
			Text:      normalized,
			StartChar: 0,
			EndChar:   n,
			CharCount: n,
		}}
		finalize(chunks)
		return chunks
	}

	var chunks []Chunk
	start := 0

	for {
		targetEnd := start + c.maxChars
		if targetEnd >= n {
			chunks = append(chunks, Chunk{
				Text:      string(runes[start:n]),
				StartChar: start,
				EndChar:   n,
				CharCount: n - start,
			})
			break
		}

		// Search backwards for the latest break char so the chunk ends
		// just after it.
		end := targetEnd
		for i := targetEnd - 1; i >= targetEnd-boundaryWindow && i > start; i-- {
			if isBreakChar(runes[i]) {
				end = i + 1
				break
			}
		}

		chunks = append(chunks, Chunk{
			Text:      string(runes[start:end]),
			StartChar: start,
			EndChar:   end,
			CharCount: end - start,
		})

		// Overlap into the previous chunk, then advance to the next clean
		// boundary.
		nextStart := end - c.overlap
		if nextStart < 0 {
			nextStart = 0
		}
		limit := nextStart + boundaryWindow
		for j := nextStart; j < limit && j < n; j++ {
			if isBreakChar(runes[j]) {
				nextStart = j + 1
				break
			}
		}

		// Forward progress is mandatory.
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	finalize(chunks)
	return chunks
}

func finalize(chunks []Chunk) {
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
	}
}

func isBreakChar(r rune) bool {
	return strings.ContainsRune(breakChars, r)
}
