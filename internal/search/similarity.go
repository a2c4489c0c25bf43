// Package search ranks snapshot entries against a query vector.
package search

import (
	"fmt"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/index"
)

// Search scans snap linearly and returns at most p.TopK hits with
// non-increasing scores.
//
// The first entry (in index order) whose cosine similarity reaches
// p.ExactMatchThreshold is promoted to rank one with score exactly 1.0,
// regardless of p.MinThreshold. Other entries below p.MinThreshold are
// dropped. The remaining candidates are visited best first and one is kept
// only if its similarity to every vector kept so far is at most
// 1 - p.DedupThreshold.
//
// An all-zero query, an empty snapshot or TopK <= 0 gives an empty result.
func Search(snap *index.Snapshot, query []float32, p Params) ([]Hit, error) {
	hits := []Hit{}
	if p.TopK <= 0 || snap.Len() == 0 || index.Norm(query) == 0 {
		return hits, nil
	}
	if len(query) != snap.Dim() {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), snap.Dim())
	}

	promoted := -1
	var cands []candidate
	for i := 0; i < snap.Len(); i++ {
		sim, err := index.Cosine(query, snap.Vector(i))
		if err != nil {
			return nil, err
		}
		if promoted < 0 && p.ExactMatchThreshold > 0 && sim >= p.ExactMatchThreshold {
			promoted = i
			continue
		}
		if sim < p.MinThreshold {
			continue
		}
		cands = append(cands, candidate{row: i, sim: sim})
	}
	sortCandidates(cands)

	var kept []int
	if promoted >= 0 {
		hits = append(hits, Hit{Key: snap.Keys[promoted], Score: 1, Row: promoted, Exact: true})
		kept = append(kept, promoted)
	}
	maxPairwise := 1 - p.DedupThreshold
	for _, c := range cands {
		if len(hits) >= p.TopK {
			break
		}
		v := snap.Vector(c.row)
		dup := false
		for _, k := range kept {
			s, err := index.Cosine(v, snap.Vector(k))
			if err != nil {
				return nil, err
			}
			if s > maxPairwise {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, c.row)
		hits = append(hits, Hit{Key: snap.Keys[c.row], Score: clamp01(c.sim), Row: c.row})
	}
	return hits, nil
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
