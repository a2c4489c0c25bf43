package search

import "sort"

type candidate struct {
	row int
	sim float64
}

// sortCandidates sorts by similarity (descending). Equal similarities keep
// their scan order.
func sortCandidates(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].sim > cands[j].sim
	})
}
