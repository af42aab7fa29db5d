// Package textproc converts raw mixed-language text into the token sequence
// consumed by the BM25 index.
//
// The pipeline is deterministic and single-pass: dictionary segmentation
// (CJK and Latin runs), lowercasing, token filtering, lemmatization of
// purely alphabetic tokens, and bigram emission over adjacent non-stopword
// unigrams. The query path uses the identical pipeline so query and
// document token spaces stay aligned.
package textproc

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/go-ego/gse"
)

// maxTokenLen is the longest token kept; anything longer is likely a URL.
const maxTokenLen = 24

// footnoteRe matches footnote-style tokens like "[12]".
var footnoteRe = regexp.MustCompile(`^\[\d+\]$`)

// Processor segments, filters, and lemmatizes text.
// Safe for concurrent use; the stopword set may be swapped by the watcher.
type Processor struct {
	seg   gse.Segmenter
	lemma *golem.Lemmatizer

	mu        sync.RWMutex
	stopwords map[string]struct{}

	watcher *stopwordWatcher
}

// New creates a Processor with stopwords loaded from every .txt file in
// stopwordDir (one token per line). A missing directory yields an empty set
// with a warning; this degrades bigram quality but does not fail.
func New(stopwordDir string) (*Processor, error) {
	p := &Processor{}

	if err := p.seg.LoadDict(); err != nil {
		return nil, fmt.Errorf("load segmenter dictionary: %w", err)
	}

	lemma, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load lemmatizer dictionary: %w", err)
	}
	p.lemma = lemma

	p.stopwords = loadStopwords(stopwordDir)

	if stopwordDir != "" {
		w, err := newStopwordWatcher(stopwordDir, func() {
			p.setStopwords(loadStopwords(stopwordDir))
		})
		if err != nil {
			slog.Warn("stopword watcher unavailable", slog.String("error", err.Error()))
		} else {
			p.watcher = w
		}
	}

	return p, nil
}

// Close stops the stopword watcher.
func (p *Processor) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// Process converts text to unigrams followed by bigrams joined with "_".
// Unigrams are not stopword-filtered; stopwords are suppressed only when
// forming bigrams.
func (p *Processor) Process(text string) []string {
	unigrams := p.Unigrams(text)

	tokens := make([]string, 0, len(unigrams)*2)
	tokens = append(tokens, unigrams...)

	for i := 0; i+1 < len(unigrams); i++ {
		a, b := unigrams[i], unigrams[i+1]
		if p.IsStopword(a) || p.IsStopword(b) {
			continue
		}
		tokens = append(tokens, a+"_"+b)
	}

	return tokens
}

// Unigrams runs segmentation, filtering, and lemmatization without bigram
// emission.
func (p *Processor) Unigrams(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segs := p.seg.Cut(text, true)

	unigrams := make([]string, 0, len(segs))
	for _, tok := range segs {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || !keepToken(tok) {
			continue
		}
		if isASCIIAlpha(tok) {
			tok = p.lemma.Lemma(tok)
		}
		unigrams = append(unigrams, tok)
	}

	return unigrams
}

// IsStopword reports whether the lower-cased token is in the stopword set.
// A bigram is a stopword match if either component is.
func (p *Processor) IsStopword(token string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if a, b, ok := strings.Cut(token, "_"); ok {
		_, sa := p.stopwords[a]
		_, sb := p.stopwords[b]
		return sa || sb
	}
	_, ok := p.stopwords[token]
	return ok
}

// StopwordCount returns the size of the current stopword set.
func (p *Processor) StopwordCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.stopwords)
}

func (p *Processor) setStopwords(sw map[string]struct{}) {
	p.mu.Lock()
	p.stopwords = sw
	p.mu.Unlock()
	slog.Info("stopwords reloaded", slog.Int("count", len(sw)))
}

// keepToken applies the token filters: pure punctuation, over-length,
// footnote markers, long digit runs, and single ASCII letters are dropped.
func keepToken(tok string) bool {
	runes := []rune(tok)

	if len(runes) > maxTokenLen {
		return false
	}

	if footnoteRe.MatchString(tok) {
		return false
	}

	// Single ASCII letters are contraction/possessive detritus ("s", "t").
	if len(runes) == 1 && runes[0] < 128 && unicode.IsLetter(runes[0]) {
		return false
	}

	allPunct := true
	allDigit := true
	for _, r := range runes {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			allPunct = false
		}
		if !unicode.IsDigit(r) {
			allDigit = false
		}
	}
	if allPunct {
		return false
	}
	if allDigit && len(runes) > 4 {
		return false
	}

	return true
}

// isASCIIAlpha reports whether the token is purely ASCII letters, the only
// tokens the English lemmatizer applies to.
func isASCIIAlpha(tok string) bool {
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c < 'a' || c > 'z' {
			if c < 'A' || c > 'Z' {
				return false
			}
		}
	}
	return len(tok) > 0
}
