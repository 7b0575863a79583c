package ranking

import (
	"math"
	"sort"
)

// RatioRanker scores each option as the weighted mean of per-criterion ratios against
// the best observed value: v/max for maximized criteria, min/v for minimized ones.
// Every ratio lies in [0,1], so the best possible score is 1.
//
// It is a transparent stand-in for the external ranking engine, not a reproduction of
// its formula.
type RatioRanker struct{}

// NewRatioRanker returns the default ranker.
func NewRatioRanker() *RatioRanker { return &RatioRanker{} }

// Rank implements Ranker. Ties keep the input order of options.
func (RatioRanker) Rank(criteria []Criterion, options []Option) ([]Score, error) {
	if err := validate(criteria, options); err != nil {
		return nil, err
	}

	scores := make([]Score, len(options))
	for i, o := range options {
		scores[i].Name = o.Name
	}

	var totalWeight float64
	for _, c := range criteria {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		totalWeight += w

		best := options[0].Values[c.Name]
		for _, o := range options[1:] {
			v := o.Values[c.Name]
			if c.Direction == Maximize && v > best || c.Direction == Minimize && v < best {
				best = v
			}
		}

		for i, o := range options {
			scores[i].Score += w * ratio(c.Direction, o.Values[c.Name], best)
		}
	}

	for i := range scores {
		scores[i].Score /= totalWeight
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores, nil
}

func ratio(dir Direction, v, best float64) float64 {
	switch dir {
	case Maximize:
		if best <= 0 {
			return 1
		}
		return clamp01(v / best)
	default:
		if v <= 0 {
			return 1
		}
		if best <= 0 {
			return 0
		}
		return clamp01(best / v)
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
