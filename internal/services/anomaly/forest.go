package anomaly

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649015329

// node is one split of an isolation tree. Leaves record how many sample
// points reached them.
type node struct {
	split       float64
	left, right *node
	size        int
}

func (n *node) leaf() bool {
	return n.left == nil
}

// forest is an ensemble of isolation trees over one-dimensional data
type forest struct {
	trees []*node
	psi   int
}

// averagePathLength is c(n), the mean unsuccessful-search path length of a
// binary search tree with n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	f := float64(n)
	return 2*(math.Log(f-1)+eulerGamma) - 2*(f-1)/f
}

// grow fits trees on subsamples drawn without replacement. Each tree is
// limited to ceil(log2(psi)) levels.
func grow(x []float64, trees, sampleSize int, seed int64) *forest {
	rng := rand.New(rand.NewSource(seed))

	psi := sampleSize
	if psi > len(x) {
		psi = len(x)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	f := &forest{psi: psi, trees: make([]*node, trees)}
	sample := make([]float64, psi)
	for i := range f.trees {
		for j, idx := range rng.Perm(len(x))[:psi] {
			sample[j] = x[idx]
		}
		f.trees[i] = build(append([]float64(nil), sample...), 0, maxDepth, rng)
	}
	return f
}

func build(values []float64, depth, maxDepth int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(values) <= 1 {
		return &node{size: len(values)}
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return &node{size: len(values)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []float64
	for _, v := range values {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &node{
		split: split,
		left:  build(left, depth+1, maxDepth, rng),
		right: build(right, depth+1, maxDepth, rng),
	}
}

func pathLength(x float64, n *node, depth int) float64 {
	for !n.leaf() {
		if x < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// score returns -2^(-E[h(x)]/c(psi)): values near -1 are easy to isolate,
// values near -0.5 or above are ordinary.
func (f *forest) score(x float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(f.trees))

	c := averagePathLength(f.psi)
	if c == 0 {
		return -1
	}
	return -math.Pow(2, -mean/c)
}
