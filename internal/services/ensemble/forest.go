package ensemble

import "math/rand"

// ForestRegressor is a bagged ensemble of regression trees for next-close
// prediction. Trees are fit sequentially with per-tree seeds so a fixed Seed
// reproduces the forest exactly.
type ForestRegressor struct {
	Trees    []Tree `json:"trees"`
	MaxDepth int    `json:"max_depth"`
	Seed     int64  `json:"seed"`
}

func fitForest(x [][]float64, y []float64, trees, maxDepth int, seed int64) *ForestRegressor {
	f := &ForestRegressor{
		Trees:    make([]Tree, 0, trees),
		MaxDepth: maxDepth,
		Seed:     seed,
	}
	n := len(x)
	idx := make([]int, n)
	for t := 0; t < trees; t++ {
		rng := rand.New(rand.NewSource(seed + int64(t)))
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		f.Trees = append(f.Trees, fitTree(x, y, idx, maxDepth, 2))
	}
	return f
}

// predict averages all trees for one row.
func (f *ForestRegressor) predict(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	s := 0.0
	for i := range f.Trees {
		s += f.Trees[i].predict(row)
	}
	return s / float64(len(f.Trees))
}
