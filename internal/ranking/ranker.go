// Package ranking defines the multi-criteria ranking contract used by the tier stage
// and a default implementation.
//
// The production deployment delegates ranking to an external engine whose scoring
// formula is not observable. Ranker is the seam: any implementation that returns one
// score per option, sorted best first, can be injected into the decision pipeline.
package ranking

import (
	"errors"
	"fmt"
)

// Direction tells whether larger or smaller values of a criterion are preferred.
type Direction string

const (
	Maximize Direction = "max"
	Minimize Direction = "min"
)

// Criterion is one ranking dimension. Weight <= 0 is treated as 1.
type Criterion struct {
	Name      string
	Direction Direction
	Weight    float64
}

// Option is a named alternative with one value per criterion name.
type Option struct {
	Name   string
	Values map[string]float64
}

// Score is the ranking result for a single option.
type Score struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Ranker orders options against criteria. Implementations must return exactly one
// Score per option, sorted by descending score, and must be safe for concurrent use.
type Ranker interface {
	Rank(criteria []Criterion, options []Option) ([]Score, error)
}

var (
	ErrNoCriteria    = errors.New("ranking: no criteria")
	ErrNoOptions     = errors.New("ranking: no options")
	ErrMissingValue  = errors.New("ranking: option is missing a criterion value")
	ErrBadDirection  = errors.New("ranking: unknown criterion direction")
	ErrDuplicateName = errors.New("ranking: duplicate option name")
)

// Lookup returns the score of the named option.
func Lookup(scores []Score, name string) (float64, bool) {
	for _, s := range scores {
		if s.Name == name {
			return s.Score, true
		}
	}
	return 0, false
}

func validate(criteria []Criterion, options []Option) error {
	if len(criteria) == 0 {
		return ErrNoCriteria
	}
	if len(options) == 0 {
		return ErrNoOptions
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if _, dup := seen[o.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, o.Name)
		}
		seen[o.Name] = struct{}{}
	}
	for _, c := range criteria {
		if c.Direction != Maximize && c.Direction != Minimize {
			return fmt.Errorf("%w: %q on %s", ErrBadDirection, c.Direction, c.Name)
		}
		for _, o := range options {
			if _, ok := o.Values[c.Name]; !ok {
				return fmt.Errorf("%w: %s.%s", ErrMissingValue, o.Name, c.Name)
			}
		}
	}
	return nil
}
