package estimator

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/qval/internal/contracts"
)

// Gradient boosting defaults.
const (
	DefaultGBTRounds       = 100
	DefaultGBTLearningRate = 0.05
	DefaultGBTMaxDepth     = 3
	DefaultGBTMinLeaf      = 20
)

// Node is a regression tree node. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree is a flattened regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t Tree) leaves() int {
	c := 0
	for _, n := range t.Nodes {
		if n.Feature < 0 {
			c++
		}
	}
	return c
}

// GBT is gradient boosting with squared loss over shallow regression trees.
type GBT struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
}

// NewGBT fills unset parameters with defaults.
func NewGBT(p contracts.GBTParams) *GBT {
	g := &GBT{Rounds: p.Rounds, LearningRate: p.LearningRate, MaxDepth: p.MaxDepth, MinLeaf: p.MinLeaf}
	if g.Rounds <= 0 {
		g.Rounds = DefaultGBTRounds
	}
	if g.LearningRate <= 0 {
		g.LearningRate = DefaultGBTLearningRate
	}
	if g.MaxDepth <= 0 {
		g.MaxDepth = DefaultGBTMaxDepth
	}
	if g.MinLeaf <= 0 {
		g.MinLeaf = DefaultGBTMinLeaf
	}
	return g
}

// Family implements Regressor
func (g *GBT) Family() contracts.Family { return contracts.FamilyGBT }

// Fit implements Regressor. K counts the base score plus every leaf value.
func (g *GBT) Fit(X [][]float64, y []float64) (Params, error) {
	n := len(y)
	if n < 2*g.MinLeaf {
		return Params{}, fmt.Errorf("%w: %d rows, need %d for min leaf %d", ErrInsufficientData, n, 2*g.MinLeaf, g.MinLeaf)
	}

	base := mean(y)
	pred := make([]float64, n)
	resid := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}

	params := Params{Family: contracts.FamilyGBT, Intercept: base, Shrinkage: g.LearningRate, K: 1}
	idx := make([]int, n)
	for round := 0; round < g.Rounds; round++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		for i := range idx {
			idx[i] = i
		}

		b := &treeBuilder{X: X, y: resid, minLeaf: g.MinLeaf}
		b.grow(idx, 0, g.MaxDepth)
		tree := Tree{Nodes: b.nodes}

		for i := range pred {
			pred[i] += g.LearningRate * tree.eval(X[i])
		}
		params.Trees = append(params.Trees, tree)
		params.K += tree.leaves()
	}

	var sse float64
	for i := range y {
		d := y[i] - pred[i]
		sse += d * d
	}
	if !allFinite(sse, base) {
		return Params{}, fmt.Errorf("%w: non-finite training loss", ErrFitNonConvergence)
	}
	return params, nil
}

// Predict implements Regressor
func (g *GBT) Predict(p Params, x []float64) (float64, error) {
	out := p.Intercept
	for _, t := range p.Trees {
		for _, n := range t.Nodes {
			if n.Feature >= len(x) {
				return 0, fmt.Errorf("%w: tree splits on feature %d, got %d features", ErrDimension, n.Feature, len(x))
			}
		}
		out += p.Shrinkage * t.eval(x)
	}
	return out, nil
}

type treeBuilder struct {
	X       [][]float64
	y       []float64
	minLeaf int
	nodes   []Node
}

// grow appends a subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth, maxDepth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.leafValue(idx)})
	if depth >= maxDepth || len(idx) < 2*b.minLeaf {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1, maxDepth)
	r := b.grow(right, depth+1, maxDepth)
	b.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

func (b *treeBuilder) leafValue(idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

// bestSplit scans every feature for the threshold with the largest SSE reduction.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}

	bestGain := 1e-12
	order := make([]int, n)
	for f := 0; f < len(b.X[idx[0]]); f++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[order[k]]
			nl := k + 1
			nr := n - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			xv, xn := b.X[order[k]][f], b.X[order[k+1]][f]
			if xv == xn {
				continue
			}
			rightSum := total - leftSum
			// SSE reduction relative to the parent, up to a constant.
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - total*total/float64(n)
			if gain > bestGain {
				bestGain = gain
				feature = f
				threshold = xv + (xn-xv)/2
				ok = true
			}
		}
	}
	if ok && math.IsNaN(threshold) {
		return 0, 0, false
	}
	return feature, threshold, ok
}
