package decision

import (
	"github.com/Kocoro-lab/lina/internal/ranking"
)

// Outcome is the final credit decision.
type Outcome string

const (
	Approved      Outcome = "APPROVED"
	SecurityBlock Outcome = "SECURITY_BLOCK"
	RiskDenied    Outcome = "RISK_DENIED"
)

// Tier is the credit product offered to an approved client.
type Tier string

const (
	TierGold   Tier = "GOLD"
	TierSilver Tier = "SILVER"
	TierBronze Tier = "BRONZE"
)

// FraudClass is the output of the security gate.
type FraudClass string

const (
	FraudNormal  FraudClass = "NORMAL"
	FraudSuspect FraudClass = "FRAUDE"
)

// FraudAssessment is the security gate result.
type FraudAssessment struct {
	Score float64    `json:"score"`
	Class FraudClass `json:"class"`
}

// RiskAssessment is the risk gate result.
type RiskAssessment struct {
	Class         string             `json:"class"`
	ProbGood      float64            `json:"prob_good"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// TierDecision is the tier stage result with the ranking it was derived from.
type TierDecision struct {
	Tier    Tier            `json:"tier"`
	Ranking []ranking.Score `json:"ranking"`
}

// Result is the outcome of a full evaluation. Risk is nil when the security gate
// blocked the request; Tier and Ranking are set only for approved clients.
type Result struct {
	Decision Outcome         `json:"decision"`
	Tier     Tier            `json:"tier,omitempty"`
	Fraud    FraudAssessment `json:"fraud"`
	Risk     *RiskAssessment `json:"risk,omitempty"`
	Ranking  []ranking.Score `json:"ranking,omitempty"`
}
