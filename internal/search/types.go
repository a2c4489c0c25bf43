package search

import (
	"errors"

	"github.com/surendra-ayasya/ImageSerachImplementation/internal/config"
)

// ErrDimensionMismatch indicates a query whose length differs from the index dimension.
var ErrDimensionMismatch = errors.New("query dimension does not match index")

// Params are the tunables of one similarity search.
//
// ExactMatchThreshold <= 0 disables exact-match promotion. CropToCenter is
// not used by Search itself; callers consult it when embedding the query.
type Params struct {
	TopK                int
	MinThreshold        float64
	DedupThreshold      float64
	ExactMatchThreshold float64
	CropToCenter        bool
}

// ParamsFromConfig converts a config section.
func ParamsFromConfig(p config.SearchParams) Params {
	return Params{
		TopK:                p.TopK,
		MinThreshold:        p.MinThreshold,
		DedupThreshold:      p.DedupThreshold,
		ExactMatchThreshold: p.ExactMatchThreshold,
		CropToCenter:        p.CropToCenter,
	}
}

// Hit is one ranked index entry.
type Hit struct {
	Key   string
	Score float64
	// Row is the entry's position in the snapshot.
	Row int
	// Exact is set on the promoted exact match.
	Exact bool
}
