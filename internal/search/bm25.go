// Package search implements per-figure hybrid retrieval: dense cosine
// search over the HNSW collection fused with sparse BM25 over unigram and
// bigram tokens via reciprocal rank fusion.
package search

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// topWordCount is how many matched terms a result reports.
const topWordCount = 5

// BM25Index scores pre-tokenized documents against tokenized queries.
// Documents are added whole; there is no incremental delete — mutation
// invalidates the owning cache entry and the index is rebuilt.
// Safe for concurrent use.
type BM25Index struct {
	mu sync.RWMutex

	// termFreq[docID][term] = occurrences of term in doc.
	termFreq map[string]map[string]int
	// docFreq[term] = number of docs containing term.
	docFreq map[string]int
	// docLen[docID] = token count.
	docLen map[string]int

	totalLen int
}

// NewBM25Index creates an empty index.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		termFreq: make(map[string]map[string]int),
		docFreq:  make(map[string]int),
		docLen:   make(map[string]int),
	}
}

// Add indexes one document's token list. Adding an existing id replaces it.
func (idx *BM25Index) Add(docID string, tokens []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.termFreq[docID]; ok {
		for term := range old {
			idx.docFreq[term]--
			if idx.docFreq[term] <= 0 {
				delete(idx.docFreq, term)
			}
		}
		idx.totalLen -= idx.docLen[docID]
	}

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	idx.termFreq[docID] = tf
	idx.docLen[docID] = len(tokens)
	idx.totalLen += len(tokens)
	for term := range tf {
		idx.docFreq[term]++
	}
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.termFreq)
}

// Hit is one BM25 result with its per-term score contributions.
type Hit struct {
	DocID string
	Score float64
	// Contributions maps each matched query term to its share of Score.
	Contributions map[string]float64
}

// Search scores every document containing at least one query term and
// returns the top k, best first. Ties break by doc id for determinism.
func (idx *BM25Index) Search(queryTokens []string, k int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.termFreq)
	if n == 0 || len(queryTokens) == 0 || k <= 0 {
		return nil
	}

	avgLen := float64(idx.totalLen) / float64(n)
	if avgLen == 0 {
		return nil
	}

	// Deduplicate query terms; repeating a term in the query does not
	// multiply its weight.
	seen := make(map[string]struct{}, len(queryTokens))
	terms := make([]string, 0, len(queryTokens))
	for _, t := range queryTokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	scores := make(map[string]*Hit)
	for _, term := range terms {
		df := idx.docFreq[term]
		if df == 0 {
			continue
		}

		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for docID, tf := range idx.termFreq {
			f := float64(tf[term])
			if f == 0 {
				continue
			}

			norm := 1 - bm25B + bm25B*float64(idx.docLen[docID])/avgLen
			contrib := idf * (f * (bm25K1 + 1)) / (f + bm25K1*norm)

			hit, ok := scores[docID]
			if !ok {
				hit = &Hit{DocID: docID, Contributions: make(map[string]float64)}
				scores[docID] = hit
			}
			hit.Score += contrib
			hit.Contributions[term] += contrib
		}
	}

	hits := make([]Hit, 0, len(scores))
	for _, h := range scores {
		hits = append(hits, *h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// TopMatchingWords selects up to topWordCount matched terms by descending
// contribution, skipping stopword terms (a bigram counts as a stopword when
// either component is). Bigram separators render as spaces.
func TopMatchingWords(contributions map[string]float64, isStopword func(string) bool) []string {
	type termScore struct {
		term  string
		score float64
	}

	ranked := make([]termScore, 0, len(contributions))
	for term, score := range contributions {
		if isStopword != nil && isStopword(term) {
			continue
		}
		ranked = append(ranked, termScore{term, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].term < ranked[j].term
	})

	if len(ranked) > topWordCount {
		ranked = ranked[:topWordCount]
	}

	words := make([]string, len(ranked))
	for i, ts := range ranked {
		words[i] = strings.ReplaceAll(ts.term, "_", " ")
	}
	return words
}
