package model

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// ForestConfig holds random forest hyperparameters
type ForestConfig struct {
	NEstimators    int
	MaxDepth       int // 0 means unlimited
	MinSamplesLeaf int
	MaxFeatures    int // 0 means all features
	Seed           uint64
}

// Node is a single tree node. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is an ensemble of regression trees trained on bootstrap samples.
// Its prediction is the mean of the tree predictions.
type Forest struct {
	Features []string `json:"features"`
	Trees    []Tree   `json:"trees"`
}

// FeatureNames implements Regressor
func (f *Forest) FeatureNames() []string {
	return f.Features
}

// Predict implements Regressor
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}

func (t *Tree) predict(x []float64) float64 {
	n := t.Nodes[0]
	for n.Left >= 0 {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Value
}

// FitForest trains a random forest regressor on ds
func FitForest(ds Dataset, cfg ForestConfig) (*Forest, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrInsufficientData)
	}
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = 100
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = 1
	}
	nFeatures := len(ds.Features)
	if cfg.MaxFeatures <= 0 || cfg.MaxFeatures > nFeatures {
		cfg.MaxFeatures = nFeatures
	}

	forest := &Forest{
		Features: ds.Features,
		Trees:    make([]Tree, cfg.NEstimators),
	}
	for i := range forest.Trees {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))

		// Bootstrap sample
		sample := make([]int, ds.Len())
		for j := range sample {
			sample[j] = rng.IntN(ds.Len())
		}

		b := &treeBuilder{ds: ds, cfg: cfg, rng: rng}
		b.grow(sample, 0)
		forest.Trees[i] = Tree{Nodes: b.nodes}
	}
	return forest, nil
}

type treeBuilder struct {
	ds    Dataset
	cfg   ForestConfig
	rng   *rand.Rand
	nodes []Node
}

// grow appends the subtree for rows and returns its root index
func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: b.mean(rows)})

	if b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth {
		return idx
	}
	if len(rows) < 2*b.cfg.MinSamplesLeaf {
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if b.ds.X[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// bestSplit finds the feature and threshold minimising the summed squared
// error of the two children
func (b *treeBuilder) bestSplit(rows []int) (int, float64, bool) {
	n := len(rows)
	var total, totalSq float64
	for _, r := range rows {
		y := b.ds.Y[r]
		total += y
		totalSq += y * y
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	bestSSE := parentSSE
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, n)
	for _, f := range b.candidateFeatures() {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.ds.X[sorted[i]][f] < b.ds.X[sorted[j]][f]
		})

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			y := b.ds.Y[sorted[i]]
			leftSum += y
			leftSq += y * y

			nl := i + 1
			nr := n - nl
			if nl < b.cfg.MinSamplesLeaf || nr < b.cfg.MinSamplesLeaf {
				continue
			}
			lo, hi := b.ds.X[sorted[i]][f], b.ds.X[sorted[i+1]][f]
			if lo == hi {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// candidateFeatures returns the feature indices considered at a split
func (b *treeBuilder) candidateFeatures() []int {
	n := len(b.ds.Features)
	if b.cfg.MaxFeatures >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(n)[:b.cfg.MaxFeatures]
}

func (b *treeBuilder) mean(rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += b.ds.Y[r]
	}
	return sum / float64(len(rows))
}
