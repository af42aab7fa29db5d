package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBM25EmptyIndex(t *testing.T) {
	idx := NewBM25Index()

	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Search([]string{"anything"}, 10))
}

func TestBM25RanksTermFrequency(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("heavy", []string{"war", "war", "war", "peace"})
	idx.Add("light", []string{"war", "peace", "peace", "peace"})
	idx.Add("none", []string{"peace", "love"})

	hits := idx.Search([]string{"war"}, 10)

	require.Len(t, hits, 2)
	assert.Equal(t, "heavy", hits[0].DocID)
	assert.Equal(t, "light", hits[1].DocID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestBM25RareTermsWeighMore(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("a", []string{"common", "rare"})
	idx.Add("b", []string{"common"})
	idx.Add("c", []string{"common"})
	idx.Add("d", []string{"common"})

	hits := idx.Search([]string{"common", "rare"}, 10)

	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].DocID)
	// The rare term contributes more than the ubiquitous one.
	assert.Greater(t, hits[0].Contributions["rare"], hits[0].Contributions["common"])
}

func TestBM25NoMatches(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("a", []string{"alpha", "beta"})

	assert.Empty(t, idx.Search([]string{"gamma"}, 10))
}

func TestBM25DuplicateQueryTerms(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("a", []string{"alpha", "beta"})
	idx.Add("b", []string{"alpha", "alpha", "gamma"})

	once := idx.Search([]string{"alpha"}, 10)
	twice := idx.Search([]string{"alpha", "alpha"}, 10)

	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].DocID, twice[i].DocID)
		assert.InDelta(t, once[i].Score, twice[i].Score, 1e-12)
	}
}

func TestBM25TopKAndTieOrder(t *testing.T) {
	idx := NewBM25Index()
	// Identical docs tie; order falls back to doc id.
	idx.Add("bbb", []string{"x", "y"})
	idx.Add("aaa", []string{"x", "y"})
	idx.Add("ccc", []string{"x", "y"})

	hits := idx.Search([]string{"x"}, 2)

	require.Len(t, hits, 2)
	assert.Equal(t, "aaa", hits[0].DocID)
	assert.Equal(t, "bbb", hits[1].DocID)
}

func TestBM25Replace(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("doc", []string{"alpha"})
	idx.Add("doc", []string{"beta"})

	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Search([]string{"alpha"}, 10))
	assert.Len(t, idx.Search([]string{"beta"}, 10), 1)
}

func TestTopMatchingWords(t *testing.T) {
	contributions := map[string]float64{
		"revolution":      3.0,
		"people":          2.0,
		"the":             5.0, // stopword, excluded despite top score
		"people_republic": 1.5,
		"minor":           0.1,
		"tiny":            0.05,
		"tinier":          0.01,
	}
	isStopword := func(tok string) bool { return tok == "the" }

	words := TopMatchingWords(contributions, isStopword)

	require.Len(t, words, 5)
	assert.Equal(t, "revolution", words[0])
	assert.Equal(t, "people", words[1])
	// Bigram separator renders as a space.
	assert.Equal(t, "people republic", words[2])
	assert.NotContains(t, words, "the")
}

func TestTopMatchingWordsNilStopword(t *testing.T) {
	words := TopMatchingWords(map[string]float64{"a": 1}, nil)
	assert.Equal(t, []string{"a"}, words)
}
