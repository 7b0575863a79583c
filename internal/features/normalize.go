// Package features maps raw client attributes onto the bounded feature vector the
// classifiers were trained on.
package features

import "math"

// Scale ceilings. Values at or above a ceiling map to 1, except ExternalScoreScale which
// is a plain divisor (see Normalize).
const (
	IncomeScale     = 50000.0
	DebtScale       = 200000.0
	ExternalScale   = 1000.0
	EmploymentScale = 480.0
	AgeScale        = 100.0
)

// Size is the number of features the classifiers expect.
const Size = 5

// Vector is the ordered feature tuple (income, debt, externalScore, employmentMonths, age).
type Vector [Size]float64

// Attributes are raw client attributes as the lookup tools and the model receive them.
type Attributes struct {
	Income           float64 `json:"renda" yaml:"renda"`
	Debt             float64 `json:"divida" yaml:"divida"`
	ExternalScore    float64 `json:"score" yaml:"score"`
	EmploymentMonths float64 `json:"emprego" yaml:"emprego"`
	Age              float64 `json:"idade" yaml:"idade"`
}

// Normalize scales raw attributes. The external score is divided by its nominal maximum
// without clipping, so scores above 1000 produce a value above 1; the classifiers were
// trained on that exact transform.
func Normalize(income, debt, externalScore, employmentMonths, age float64) Vector {
	return Vector{
		income / IncomeScale,
		debt / DebtScale,
		externalScore / ExternalScale,
		employmentMonths / EmploymentScale,
		age / AgeScale,
	}.Clip()
}

// Clip caps every feature except the external score at 1. It is a no-op on vectors
// produced by Normalize.
func (v Vector) Clip() Vector {
	for i := range v {
		if i == 2 {
			continue
		}
		v[i] = math.Min(v[i], 1)
	}
	return v
}

// Vector normalizes a.
func (a Attributes) Vector() Vector {
	return Normalize(a.Income, a.Debt, a.ExternalScore, a.EmploymentMonths, a.Age)
}

// Slice returns the vector as a slice for model inputs.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}
