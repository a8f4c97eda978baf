package model

import (
	"fmt"
)

const leaf = -1

// treeDoc is one CART tree in the array layout sklearn exports.
type treeDoc struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type tree struct {
	left      []int
	right     []int
	feature   []int
	threshold []float64
	proba     [][]float64 // normalized, leaves only
}

// Forest averages the leaf class distributions of its trees.
type Forest struct {
	trees    []tree
	nClasses int
	dim      int
}

// NewForest validates every tree. Child indices must point forward so that
// traversal always terminates.
func NewForest(docs []treeDoc, nClasses, dim int) (*Forest, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("forest: no trees")
	}
	if nClasses == 0 {
		nClasses = 2
	}
	if nClasses != 2 {
		return nil, fmt.Errorf("forest: %d classes, only binary models are supported", nClasses)
	}

	f := &Forest{nClasses: nClasses, dim: dim, trees: make([]tree, len(docs))}
	for i, d := range docs {
		t, err := buildTree(d, nClasses, dim)
		if err != nil {
			return nil, fmt.Errorf("forest: tree %d: %w", i, err)
		}
		f.trees[i] = t
	}
	return f, nil
}

func buildTree(d treeDoc, nClasses, dim int) (tree, error) {
	n := len(d.ChildrenLeft)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	if len(d.ChildrenRight) != n || len(d.Feature) != n || len(d.Threshold) != n || len(d.Value) != n {
		return tree{}, fmt.Errorf("node arrays differ in length")
	}

	t := tree{
		left:      d.ChildrenLeft,
		right:     d.ChildrenRight,
		feature:   d.Feature,
		threshold: d.Threshold,
		proba:     make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		l, r := d.ChildrenLeft[i], d.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return tree{}, fmt.Errorf("node %d has one child", i)
			}
			p, err := normalize(d.Value[i], nClasses)
			if err != nil {
				return tree{}, fmt.Errorf("node %d: %w", i, err)
			}
			t.proba[i] = p
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return tree{}, fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if fi := d.Feature[i]; fi < 0 || fi >= dim {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, fi, dim)
		}
	}
	return t, nil
}

// normalize turns class weights into probabilities. An all-zero leaf is
// uniform.
func normalize(v []float64, nClasses int) ([]float64, error) {
	if len(v) != nClasses {
		return nil, fmt.Errorf("leaf has %d class weights, want %d", len(v), nClasses)
	}
	var sum float64
	for _, w := range v {
		if w < 0 {
			return nil, fmt.Errorf("negative class weight %v", w)
		}
		sum += w
	}
	p := make([]float64, nClasses)
	for i, w := range v {
		if sum == 0 {
			p[i] = 1 / float64(nClasses)
		} else {
			p[i] = w / sum
		}
	}
	return p, nil
}

func (t *tree) leafFor(row []float64) []float64 {
	node := 0
	for t.left[node] != leaf {
		if row[t.feature[node]] <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.proba[node]
}

func (f *Forest) PredictProba(row []float64) ([]float64, error) {
	if len(row) != f.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(row), f.dim)
	}
	avg := make([]float64, f.nClasses)
	for i := range f.trees {
		for c, p := range f.trees[i].leafFor(row) {
			avg[c] += p
		}
	}
	n := float64(len(f.trees))
	for c := range avg {
		avg[c] /= n
	}
	return avg, nil
}

// Predict returns the most probable class; ties go to the lower index.
func (f *Forest) Predict(row []float64) (int, error) {
	proba, err := f.PredictProba(row)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return best, nil
}

func (f *Forest) Kind() string { return ClassifierForest }
