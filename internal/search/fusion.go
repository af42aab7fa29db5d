package search

import "sort"

// rankedID is one entry of a retrieval list, best first.
type rankedID struct {
	id   string
	rank int // 1-based
}

// fused is the reciprocal-rank-fusion combination of one document's ranks.
type fused struct {
	id        string
	rrf       float64
	denseRank int // 0 when absent from the dense list
	bm25Rank  int // 0 when absent from the sparse list
	firstSeen int
}

// fuse combines the dense and sparse lists with reciprocal rank fusion:
// score = sum of 1/(k+rank) over the lists the document appears in.
// Documents missing from a list contribute nothing for it. Ties keep
// first-seen order (dense list scanned before sparse), so fusion is
// deterministic for identical inputs.
func fuse(dense, sparse []rankedID, k int) []fused {
	byID := make(map[string]*fused)
	order := 0

	note := func(id string, rank int, isDense bool) {
		f, ok := byID[id]
		if !ok {
			f = &fused{id: id, firstSeen: order}
			order++
			byID[id] = f
		}
		f.rrf += 1 / float64(k+rank)
		if isDense {
			f.denseRank = rank
		} else {
			f.bm25Rank = rank
		}
	}

	for _, d := range dense {
		note(d.id, d.rank, true)
	}
	for _, s := range sparse {
		note(s.id, s.rank, false)
	}

	out := make([]fused, 0, len(byID))
	for _, f := range byID {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].rrf != out[j].rrf {
			return out[i].rrf > out[j].rrf
		}
		return out[i].firstSeen < out[j].firstSeen
	})
	return out
}
