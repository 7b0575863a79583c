package decision

import (
	"github.com/Kocoro-lab/lina/internal/features"
	"github.com/Kocoro-lab/lina/internal/ranking"
)

// Option names submitted to the ranker.
const (
	ClientOption = "Cliente Atual"
	GoldOption   = "Benchmark Gold"
	SilverOption = "Benchmark Silver"
	BronzeOption = "Benchmark Bronze"
)

// Criterion names, matching the tool argument keys.
const (
	CriterionIncome     = "renda"
	CriterionDebt       = "divida"
	CriterionScore      = "score"
	CriterionEmployment = "emprego"
	CriterionAge        = "idade"
	CriterionProbGood   = "prob_bom"
)

// Benchmark is a fixed reference profile for one tier.
type Benchmark struct {
	Name       string
	Tier       Tier
	Attributes features.Attributes
	ProbGood   float64
}

var benchmarks = [...]Benchmark{
	{
		Name:       GoldOption,
		Tier:       TierGold,
		Attributes: features.Attributes{Income: 25000, Debt: 2000, ExternalScore: 900, EmploymentMonths: 60, Age: 45},
		ProbGood:   0.98,
	},
	{
		Name:       SilverOption,
		Tier:       TierSilver,
		Attributes: features.Attributes{Income: 8000, Debt: 5000, ExternalScore: 700, EmploymentMonths: 24, Age: 30},
		ProbGood:   0.85,
	},
	{
		Name:       BronzeOption,
		Tier:       TierBronze,
		Attributes: features.Attributes{Income: 3000, Debt: 3000, ExternalScore: 450, EmploymentMonths: 6, Age: 22},
		ProbGood:   0.70,
	},
}

// Benchmarks returns a copy of the Gold, Silver and Bronze profiles, in that order.
func Benchmarks() []Benchmark {
	out := make([]Benchmark, len(benchmarks))
	copy(out, benchmarks[:])
	return out
}

// Criteria returns the tier ranking criteria, equally weighted.
func Criteria() []ranking.Criterion {
	return []ranking.Criterion{
		{Name: CriterionIncome, Direction: ranking.Maximize},
		{Name: CriterionDebt, Direction: ranking.Minimize},
		{Name: CriterionScore, Direction: ranking.Maximize},
		{Name: CriterionEmployment, Direction: ranking.Maximize},
		{Name: CriterionAge, Direction: ranking.Maximize},
		{Name: CriterionProbGood, Direction: ranking.Maximize},
	}
}

func option(name string, a features.Attributes, probGood float64) ranking.Option {
	return ranking.Option{
		Name: name,
		Values: map[string]float64{
			CriterionIncome:     a.Income,
			CriterionDebt:       a.Debt,
			CriterionScore:      a.ExternalScore,
			CriterionEmployment: a.EmploymentMonths,
			CriterionAge:        a.Age,
			CriterionProbGood:   probGood,
		},
	}
}

func rankingOptions(client features.Attributes, probGood float64) []ranking.Option {
	opts := []ranking.Option{option(ClientOption, client, probGood)}
	for _, b := range benchmarks {
		opts = append(opts, option(b.Name, b.Attributes, b.ProbGood))
	}
	return opts
}
