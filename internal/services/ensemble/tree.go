package ensemble

import "sort"

// Tree is a binary regression tree in flattened array form so a trained
// model serializes as plain JSON arrays. Leaves carry Feature -1.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

// predict walks the tree for one row.
func (t *Tree) predict(row []float64) float64 {
	node := 0
	for t.Feature[node] >= 0 {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// leafIndex returns the leaf node a row lands in.
func (t *Tree) leafIndex(row []float64) int {
	node := 0
	for t.Feature[node] >= 0 {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return node
}

type treeBuilder struct {
	x        [][]float64
	y        []float64
	t        *Tree
	maxDepth int
	minSplit int
}

// fitTree grows a variance-reduction CART over the rows named by idx.
// Split search is exhaustive over all features, so identical inputs always
// grow identical trees.
func fitTree(x [][]float64, y []float64, idx []int, maxDepth, minSplit int) Tree {
	b := &treeBuilder{x: x, y: y, t: &Tree{}, maxDepth: maxDepth, minSplit: minSplit}
	b.grow(idx, 0)
	return *b.t
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	node := len(b.t.Feature)
	b.t.Feature = append(b.t.Feature, -1)
	b.t.Threshold = append(b.t.Threshold, 0)
	b.t.Left = append(b.t.Left, -1)
	b.t.Right = append(b.t.Right, -1)
	b.t.Value = append(b.t.Value, meanAt(b.y, idx))

	if depth >= b.maxDepth || len(idx) < b.minSplit {
		return node
	}
	feat, thr, ok := b.bestSplit(idx)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if b.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}
	b.t.Feature[node] = feat
	b.t.Threshold[node] = thr
	b.t.Left[node] = b.grow(left, depth+1)
	b.t.Right[node] = b.grow(right, depth+1)
	return node
}

// bestSplit scans every feature for the threshold with the largest squared
// error reduction. Ties keep the first candidate in feature order.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	nf := len(b.x[idx[0]])
	n := float64(len(idx))
	var sum, sum2 float64
	for _, i := range idx {
		sum += b.y[i]
		sum2 += b.y[i] * b.y[i]
	}
	best := sum2 - sum*sum/n - 1e-12
	bestFeat, bestThr := -1, 0.0

	order := make([]int, len(idx))
	for f := 0; f < nf; f++ {
		copy(order, idx)
		feat := f
		sort.Slice(order, func(a, c int) bool {
			va, vc := b.x[order[a]][feat], b.x[order[c]][feat]
			if va == vc {
				return order[a] < order[c]
			}
			return va < vc
		})
		var ls, ls2 float64
		for k := 0; k < len(order)-1; k++ {
			yk := b.y[order[k]]
			ls += yk
			ls2 += yk * yk
			v, next := b.x[order[k]][feat], b.x[order[k+1]][feat]
			if v == next {
				continue
			}
			ln := float64(k + 1)
			rn := n - ln
			rs := sum - ls
			rs2 := sum2 - ls2
			cost := (ls2 - ls*ls/ln) + (rs2 - rs*rs/rn)
			if cost < best {
				best = cost
				bestFeat = feat
				bestThr = (v + next) / 2
			}
		}
	}
	return bestFeat, bestThr, bestFeat >= 0
}

func meanAt(y []float64, idx []int) float64 {
	s := 0.0
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}
