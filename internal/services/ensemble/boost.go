package ensemble

import "math"

// BoostedClassifier is a gradient-boosted binary classifier with logistic
// loss. The score starts at the training base-rate log-odds; every round
// fits a tree to the residuals and applies a one-step Newton leaf update.
type BoostedClassifier struct {
	Trees     []Tree  `json:"trees"`
	Base      float64 `json:"base"`
	LearnRate float64 `json:"learn_rate"`
	MaxDepth  int     `json:"max_depth"`
}

func fitBoost(x [][]float64, y []float64, rounds int, learnRate float64, maxDepth int) *BoostedClassifier {
	n := len(x)
	pos := 0.0
	for _, v := range y {
		pos += v
	}
	rate := clamp(pos/float64(n), 1e-6, 1-1e-6)
	c := &BoostedClassifier{
		Trees:     make([]Tree, 0, rounds),
		Base:      math.Log(rate / (1 - rate)),
		LearnRate: learnRate,
		MaxDepth:  maxDepth,
	}

	score := make([]float64, n)
	for i := range score {
		score[i] = c.Base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	resid := make([]float64, n)
	for r := 0; r < rounds; r++ {
		for i := range resid {
			resid[i] = y[i] - sigmoid(score[i])
		}
		t := fitTree(x, resid, idx, maxDepth, 2)
		newtonLeaves(&t, x, y, score)
		for i := range score {
			score[i] += learnRate * t.predict(x[i])
		}
		c.Trees = append(c.Trees, t)
	}
	return c
}

// newtonLeaves replaces leaf residual means with the Newton estimate for
// logistic loss, sum(y-p) / sum(p*(1-p)) over the leaf samples.
func newtonLeaves(t *Tree, x [][]float64, y, score []float64) {
	num := make([]float64, len(t.Value))
	den := make([]float64, len(t.Value))
	for i := range x {
		leaf := t.leafIndex(x[i])
		p := sigmoid(score[i])
		num[leaf] += y[i] - p
		den[leaf] += p * (1 - p)
	}
	for node := range t.Value {
		if t.Feature[node] >= 0 {
			continue
		}
		if den[node] < 1e-9 {
			continue // degenerate leaf keeps the residual mean
		}
		t.Value[node] = num[node] / den[node]
	}
}

// probaUp returns the bullish class probability for one row.
func (c *BoostedClassifier) probaUp(row []float64) float64 {
	score := c.Base
	for i := range c.Trees {
		score += c.LearnRate * c.Trees[i].predict(row)
	}
	return sigmoid(score)
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
