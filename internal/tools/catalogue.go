package tools

import (
	"context"
	"errors"
	"math"

	"github.com/Kocoro-lab/lina/internal/clients"
	"github.com/Kocoro-lab/lina/internal/decision"
	"github.com/Kocoro-lab/lina/internal/features"
	"github.com/Kocoro-lab/lina/internal/ranking"
)

// Tool names exposed to the model.
const (
	AnalyzeClient = "analisar_cliente"
	CheckFraud    = "verificar_fraude"
	AssessRisk    = "calcular_risco"
	DecideOffer   = "decidir_oferta"
	FindClient    = "buscar_cliente"
	ListClients   = "listar_clientes"
)

// ClientNotFound is the output of buscar_cliente for an unknown id.
const ClientNotFound = "Cliente não encontrado"

// Evaluator is the decision pipeline as seen by the tool handlers.
type Evaluator interface {
	Evaluate(attrs features.Attributes) (*decision.Result, error)
	CheckFraud(attrs features.Attributes) (decision.FraudAssessment, error)
	AssessRisk(attrs features.Attributes) (decision.RiskAssessment, error)
	DecideTier(attrs features.Attributes, probGood float64) (decision.TierDecision, error)
}

var attributeProperties = map[string]any{
	"renda":   numberProperty("Renda mensal em reais"),
	"divida":  numberProperty("Dívida total em reais"),
	"score":   numberProperty("Score de crédito (0-1000)"),
	"emprego": numberProperty("Tempo de emprego em meses"),
	"idade":   numberProperty("Idade em anos"),
}

var attributeKeys = []string{"renda", "divida", "score", "emprego", "idade"}

func numberProperty(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}

func attributeSchema(extra map[string]any, extraRequired ...string) map[string]any {
	props := make(map[string]any, len(attributeProperties)+len(extra))
	for k, v := range attributeProperties {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return objectSchema(props, append(append([]string{}, attributeKeys...), extraRequired...)...)
}

// AnalysisOutput is the analisar_cliente result.
type AnalysisOutput struct {
	Decision decision.Outcome `json:"decisao"`
	Offer    *decision.Tier   `json:"oferta"`
	Fraud    FraudOutput      `json:"fraude"`
	Risk     *RiskSummary     `json:"risco"`
}

// FraudOutput is the verificar_fraude result.
type FraudOutput struct {
	Score float64             `json:"score"`
	Class decision.FraudClass `json:"classe"`
}

// RiskSummary is the risk part of an analysis.
type RiskSummary struct {
	Class    string  `json:"classe"`
	ProbGood float64 `json:"prob_bom"`
}

// RiskOutput is the calcular_risco result.
type RiskOutput struct {
	Class         string             `json:"classe"`
	Probabilities map[string]float64 `json:"probabilidades"`
}

// OfferOutput is the decidir_oferta result.
type OfferOutput struct {
	Suggestion decision.Tier      `json:"sugestao"`
	Ranking    map[string]float64 `json:"ranking"`
}

// NotFoundOutput is returned instead of a client for unknown ids.
type NotFoundOutput struct {
	Error string `json:"erro"`
}

// NewCatalogue builds the registry with every credit tool. store may be nil, in which
// case the client lookup tools are not offered.
func NewCatalogue(eval Evaluator, store clients.Store) (*Registry, error) {
	if eval == nil {
		return nil, errors.New("tools: evaluator is required")
	}
	h := &handlers{eval: eval, store: store}
	r := NewRegistry()

	type entry struct {
		def     Definition
		handler Handler
	}
	entries := []entry{
		{Definition{
			Name:        AnalyzeClient,
			Description: "Análise completa de crédito: verifica fraude (FANN), calcula risco (RubixML) e sugere oferta (AHPd).",
			Parameters:  attributeSchema(nil),
		}, h.analyze},
		{Definition{
			Name:        CheckFraud,
			Description: "Detecta anomalias/fraudes usando rede neural FANN.",
			Parameters:  attributeSchema(nil),
		}, h.fraud},
		{Definition{
			Name:        AssessRisk,
			Description: "Calcula probabilidade de inadimplência usando RubixML.",
			Parameters:  attributeSchema(nil),
		}, h.risk},
		{Definition{
			Name:        DecideOffer,
			Description: "Sugere limite de crédito (Gold/Silver/Bronze) usando AHPd.",
			Parameters: attributeSchema(map[string]any{
				"prob_bom": numberProperty("Probabilidade de bom pagador (0-1)"),
			}, "prob_bom"),
		}, h.offer},
	}
	if store != nil {
		entries = append(entries,
			entry{Definition{
				Name:        FindClient,
				Description: "Busca dados pessoais e financeiros de um cliente pelo ID.",
				Parameters: objectSchema(map[string]any{
					"id": map[string]any{"type": "string", "description": "ID do cliente (ex: 1001)"},
				}, "id"),
			}, h.find},
			entry{Definition{
				Name:        ListClients,
				Description: "Lista todos os clientes cadastrados com nome e ID.",
				Parameters:  objectSchema(map[string]any{}),
			}, h.list},
		)
	}

	for _, e := range entries {
		if err := r.Register(e.def, e.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type handlers struct {
	eval  Evaluator
	store clients.Store
}

func attributes(args Arguments) (features.Attributes, error) {
	var vals [5]float64
	for i, key := range attributeKeys {
		v, err := args.Number(key)
		if err != nil {
			return features.Attributes{}, err
		}
		vals[i] = v
	}
	return features.Attributes{
		Income:           vals[0],
		Debt:             vals[1],
		ExternalScore:    vals[2],
		EmploymentMonths: vals[3],
		Age:              vals[4],
	}, nil
}

func (h *handlers) analyze(_ context.Context, args Arguments) (any, error) {
	attrs, err := attributes(args)
	if err != nil {
		return nil, err
	}
	res, err := h.eval.Evaluate(attrs)
	if err != nil {
		return nil, err
	}

	out := AnalysisOutput{
		Decision: res.Decision,
		Fraud:    FraudOutput{Score: res.Fraud.Score, Class: res.Fraud.Class},
	}
	if res.Risk != nil {
		out.Risk = &RiskSummary{Class: res.Risk.Class, ProbGood: round4(res.Risk.ProbGood)}
	}
	if res.Decision == decision.Approved {
		tier := res.Tier
		out.Offer = &tier
	}
	return out, nil
}

func (h *handlers) fraud(_ context.Context, args Arguments) (any, error) {
	attrs, err := attributes(args)
	if err != nil {
		return nil, err
	}
	f, err := h.eval.CheckFraud(attrs)
	if err != nil {
		return nil, err
	}
	return FraudOutput{Score: f.Score, Class: f.Class}, nil
}

func (h *handlers) risk(_ context.Context, args Arguments) (any, error) {
	attrs, err := attributes(args)
	if err != nil {
		return nil, err
	}
	r, err := h.eval.AssessRisk(attrs)
	if err != nil {
		return nil, err
	}
	return RiskOutput{Class: r.Class, Probabilities: r.Probabilities}, nil
}

func (h *handlers) offer(_ context.Context, args Arguments) (any, error) {
	attrs, err := attributes(args)
	if err != nil {
		return nil, err
	}
	probGood, err := args.Number("prob_bom")
	if err != nil {
		return nil, err
	}
	t, err := h.eval.DecideTier(attrs, probGood)
	if err != nil {
		return nil, err
	}
	return OfferOutput{Suggestion: t.Tier, Ranking: rankingMap(t.Ranking)}, nil
}

func (h *handlers) find(ctx context.Context, args Arguments) (any, error) {
	id, err := args.String("id")
	if err != nil {
		return nil, err
	}
	c, err := h.store.Get(ctx, id)
	if errors.Is(err, clients.ErrNotFound) {
		return NotFoundOutput{Error: ClientNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (h *handlers) list(ctx context.Context, _ Arguments) (any, error) {
	list, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []clients.Summary{}
	}
	for i := range list {
		if list[i].Name == "" {
			list[i].Name = clients.DefaultName
		}
	}
	return list, nil
}

func rankingMap(scores []ranking.Score) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for _, s := range scores {
		out[s.Name] = s.Score
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
