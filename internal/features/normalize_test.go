package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeScalesEachFeature(t *testing.T) {
	v := Normalize(25000, 50000, 700, 120, 40)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.7, 0.25, 0.4}, v.Slice(), 1e-12)
}

func TestNormalizeClipsCappedFeatures(t *testing.T) {
	v := Normalize(120000, 900000, 500, 1000, 130)
	assert.Equal(t, 1.0, v[0])
	assert.Equal(t, 1.0, v[1])
	assert.Equal(t, 1.0, v[3])
	assert.Equal(t, 1.0, v[4])
}

func TestNormalizeExternalScoreIsNotClipped(t *testing.T) {
	v := Normalize(1000, 0, 1200, 12, 30)
	assert.InDelta(t, 1.2, v[2], 1e-12)
}

func TestNormalizeIsIdempotentOnClippedFields(t *testing.T) {
	cases := []Attributes{
		{Income: 18000, Debt: 1500, ExternalScore: 850, EmploymentMonths: 48, Age: 40},
		{Income: 90000, Debt: 300000, ExternalScore: 1500, EmploymentMonths: 600, Age: 101},
		{},
	}

	for _, a := range cases {
		v := a.Vector()
		assert.Equal(t, v, v.Clip())
		assert.Equal(t, v.Clip(), v.Clip().Clip())
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	a := Attributes{Income: 3000, Debt: 3000, ExternalScore: 450, EmploymentMonths: 6, Age: 22}
	assert.Equal(t, a.Vector(), a.Vector())
}
