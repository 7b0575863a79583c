// Package decision implements the three-stage credit decision: a fraud security gate,
// a default-risk gate and a multi-criteria tier ranking against fixed benchmarks.
//
// The pipeline performs no I/O. Its collaborators (the two classifiers and the ranker)
// are injected, read-only and shared across concurrent evaluations.
package decision

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/features"
	"github.com/Kocoro-lab/lina/internal/metrics"
	"github.com/Kocoro-lab/lina/internal/ranking"
)

const (
	// DefaultFraudThreshold separates NORMAL (score >= threshold) from FRAUDE.
	DefaultFraudThreshold = 0.5
	// DefaultTierRatio is the fraction of a benchmark score a client must reach to
	// qualify for that benchmark's tier.
	DefaultTierRatio = 0.9
)

// FraudModel scores a feature vector; higher means more normal.
type FraudModel interface {
	FraudScore(v features.Vector) (float64, error)
}

// RiskModel classifies a feature vector into risk classes.
type RiskModel interface {
	RiskClass(v features.Vector) (string, map[string]float64, error)
	PositiveClass() string
}

// Pipeline evaluates clients. It is safe for concurrent use.
type Pipeline struct {
	fraud          FraudModel
	risk           RiskModel
	ranker         ranking.Ranker
	fraudThreshold float64
	tierRatio      float64
	logger         *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFraudThreshold overrides DefaultFraudThreshold.
func WithFraudThreshold(threshold float64) Option {
	return func(p *Pipeline) { p.fraudThreshold = threshold }
}

// WithTierRatio overrides DefaultTierRatio.
func WithTierRatio(ratio float64) Option {
	return func(p *Pipeline) { p.tierRatio = ratio }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(fraud FraudModel, risk RiskModel, ranker ranking.Ranker, opts ...Option) *Pipeline {
	p := &Pipeline{
		fraud:          fraud,
		risk:           risk,
		ranker:         ranker,
		fraudThreshold: DefaultFraudThreshold,
		tierRatio:      DefaultTierRatio,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// ClassifyFraud maps a fraud score to a class. The boundary is NORMAL.
func ClassifyFraud(score, threshold float64) FraudClass {
	if score >= threshold {
		return FraudNormal
	}
	return FraudSuspect
}

// AssignTier compares the client score with the benchmark scores.
func AssignTier(client, gold, silver, ratio float64) Tier {
	switch {
	case client >= gold*ratio:
		return TierGold
	case client >= silver*ratio:
		return TierSilver
	default:
		return TierBronze
	}
}

// Evaluate runs the gates in order and stops at the first one that rejects.
func (p *Pipeline) Evaluate(attrs features.Attributes) (*Result, error) {
	start := time.Now()

	result, err := p.evaluate(attrs)
	if err != nil {
		var inferErr *ModelInferenceError
		if errors.As(err, &inferErr) {
			metrics.ModelInferenceErrors.WithLabelValues(inferErr.Stage).Inc()
		}
		p.logger.Warn("Decision evaluation failed", zap.Error(err))
		return nil, err
	}

	metrics.RecordDecision(string(result.Decision), string(result.Tier), time.Since(start).Seconds())
	p.logger.Debug("Decision evaluated",
		zap.String("decision", string(result.Decision)),
		zap.String("tier", string(result.Tier)),
		zap.Float64("fraud_score", result.Fraud.Score),
	)
	return result, nil
}

func (p *Pipeline) evaluate(attrs features.Attributes) (*Result, error) {
	v := attrs.Vector()

	fraud, err := p.checkFraud(v)
	if err != nil {
		return nil, err
	}
	result := &Result{Fraud: fraud}
	if fraud.Class != FraudNormal {
		result.Decision = SecurityBlock
		return result, nil
	}

	risk, err := p.assessRisk(v)
	if err != nil {
		return nil, err
	}
	result.Risk = &risk
	if risk.Class != p.risk.PositiveClass() {
		result.Decision = RiskDenied
		return result, nil
	}

	tier, err := p.DecideTier(attrs, risk.ProbGood)
	if err != nil {
		return nil, err
	}
	result.Decision = Approved
	result.Tier = tier.Tier
	result.Ranking = tier.Ranking
	return result, nil
}

// CheckFraud runs the security gate alone.
func (p *Pipeline) CheckFraud(attrs features.Attributes) (FraudAssessment, error) {
	return p.checkFraud(attrs.Vector())
}

// AssessRisk runs the risk gate alone.
func (p *Pipeline) AssessRisk(attrs features.Attributes) (RiskAssessment, error) {
	return p.assessRisk(attrs.Vector())
}

// DecideTier ranks the client, with the given probability of being a good payer,
// against the benchmark profiles.
func (p *Pipeline) DecideTier(attrs features.Attributes, probGood float64) (TierDecision, error) {
	scores, err := p.ranker.Rank(Criteria(), rankingOptions(attrs, probGood))
	if err != nil {
		return TierDecision{}, &ModelInferenceError{Stage: StageTier, Err: err}
	}

	client, ok := ranking.Lookup(scores, ClientOption)
	if !ok {
		return TierDecision{}, &ModelInferenceError{Stage: StageTier, Err: fmt.Errorf("ranker returned no score for %q", ClientOption)}
	}
	// Missing benchmark scores count as zero, which can only favour the client.
	gold, _ := ranking.Lookup(scores, GoldOption)
	silver, _ := ranking.Lookup(scores, SilverOption)

	return TierDecision{
		Tier:    AssignTier(client, gold, silver, p.tierRatio),
		Ranking: scores,
	}, nil
}

func (p *Pipeline) checkFraud(v features.Vector) (FraudAssessment, error) {
	score, err := p.fraud.FraudScore(v)
	if err != nil {
		return FraudAssessment{}, &ModelInferenceError{Stage: StageSecurity, Err: err}
	}
	return FraudAssessment{Score: score, Class: ClassifyFraud(score, p.fraudThreshold)}, nil
}

func (p *Pipeline) assessRisk(v features.Vector) (RiskAssessment, error) {
	class, probs, err := p.risk.RiskClass(v)
	if err != nil {
		return RiskAssessment{}, &ModelInferenceError{Stage: StageRisk, Err: err}
	}
	return RiskAssessment{
		Class:         class,
		ProbGood:      probs[p.risk.PositiveClass()],
		Probabilities: probs,
	}, nil
}
