package inference

import (
	"fmt"
	"math"

	"github.com/Kocoro-lab/lina/internal/features"
)

// Node is a decision-tree node. Internal nodes route x[Feature] <= Threshold to Left and
// everything else to Right; leaves carry a class distribution.
type Node struct {
	Feature   int                `yaml:"feature" json:"feature"`
	Threshold float64            `yaml:"threshold" json:"threshold"`
	Left      int                `yaml:"left" json:"left"`
	Right     int                `yaml:"right" json:"right"`
	Leaf      map[string]float64 `yaml:"leaf,omitempty" json:"leaf,omitempty"`
}

// Tree is a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `yaml:"nodes" json:"nodes"`
}

// Forest is a tree ensemble exported from the risk training pipeline. Probabilities are
// the mean of the leaf distributions reached in every tree.
type Forest struct {
	Classes []string `yaml:"classes" json:"classes"`
	Trees   []Tree   `yaml:"trees" json:"trees"`
}

func (f *Forest) validate() error {
	if len(f.Classes) < 2 {
		return fmt.Errorf("forest needs at least two classes, got %d", len(f.Classes))
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	known := make(map[string]bool, len(f.Classes))
	for _, c := range f.Classes {
		known[c] = true
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf != nil {
				for c := range n.Leaf {
					if !known[c] {
						return fmt.Errorf("tree %d node %d: unknown class %q", ti, ni, c)
					}
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= features.Size {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

// Classify returns the most probable class and the full distribution. Ties resolve to the
// class listed first in Classes.
func (f *Forest) Classify(v features.Vector) (string, map[string]float64, error) {
	probs := make(map[string]float64, len(f.Classes))
	for _, c := range f.Classes {
		probs[c] = 0
	}

	for _, t := range f.Trees {
		leaf := t.leaf(v)
		for c, p := range leaf {
			probs[c] += p
		}
	}

	best := f.Classes[0]
	for _, c := range f.Classes {
		probs[c] /= float64(len(f.Trees))
		if math.IsNaN(probs[c]) {
			return "", nil, fmt.Errorf("%w: non-finite probability for %s", ErrInference, c)
		}
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best, probs, nil
}

// leaf walks the tree. Child indexes always increase (checked at load), so the walk ends.
func (t Tree) leaf(v features.Vector) map[string]float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf != nil {
			return n.Leaf
		}
		if v[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
