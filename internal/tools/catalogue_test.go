package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/lina/internal/clients"
	"github.com/Kocoro-lab/lina/internal/decision"
	"github.com/Kocoro-lab/lina/internal/features"
	"github.com/Kocoro-lab/lina/internal/ranking"
)

type fixedFraud struct {
	score float64
	err   error
}

func (f fixedFraud) FraudScore(features.Vector) (float64, error) { return f.score, f.err }

type fixedRisk struct {
	class    string
	probGood float64
}

func (r fixedRisk) RiskClass(features.Vector) (string, map[string]float64, error) {
	return r.class, map[string]float64{"good": r.probGood, "bad": 1 - r.probGood}, nil
}

func (fixedRisk) PositiveClass() string { return "good" }

type memoryStore struct {
	clients map[string]*clients.Client
	order   []string
	err     error
}

func (m *memoryStore) Get(_ context.Context, id string) (*clients.Client, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.clients[id]
	if !ok {
		return nil, clients.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryStore) List(context.Context) ([]clients.Summary, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]clients.Summary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clients.Summary{ID: id, Name: m.clients[id].Name})
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		clients: map[string]*clients.Client{
			"1001": {ID: "1001", Income: 18000, Debt: 1500, Score: 850, EmploymentMonths: 48, Age: 40, Name: "Ana Souza"},
			"1002": {ID: "1002", Income: 2500, Debt: 500, Score: 400, EmploymentMonths: 3, Age: 19},
		},
		order: []string{"1001", "1002"},
	}
}

var scenarioA = map[string]any{"renda": 18000.0, "divida": 1500.0, "score": 850.0, "emprego": 48.0, "idade": 40.0}

func newTestDispatcher(t *testing.T, fraud decision.FraudModel, risk decision.RiskModel, store clients.Store) *Dispatcher {
	t.Helper()
	logger := zaptest.NewLogger(t)
	p := decision.NewPipeline(fraud, risk, ranking.NewRatioRanker(), decision.WithLogger(logger))
	r, err := NewCatalogue(p, store)
	require.NoError(t, err)
	return NewDispatcher(r, logger)
}

// asJSON round-trips an output so assertions see the wire shape.
func asJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestCatalogueDefinitions(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, newMemoryStore())

	var names []string
	for _, def := range d.Registry().Definitions() {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.Equal(t, "object", def.Parameters["type"])
	}
	assert.Equal(t, []string{AnalyzeClient, CheckFraud, AssessRisk, DecideOffer, FindClient, ListClients}, names)
}

func TestCatalogueWithoutStoreOmitsLookups(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, nil)
	assert.Len(t, d.Registry().Definitions(), 4)
	assert.False(t, d.Registry().Has(FindClient))
}

func TestAnalyzeApproved(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.93}, fixedRisk{class: "good", probGood: 0.96123}, nil)

	res := d.Dispatch(context.Background(), AnalyzeClient, scenarioA)
	require.True(t, res.Success, res.Error)

	out := asJSON(t, res.Output)
	assert.Equal(t, "APPROVED", out["decisao"])
	assert.Equal(t, "GOLD", out["oferta"])
	assert.Equal(t, map[string]any{"score": 0.93, "classe": "NORMAL"}, out["fraude"])
	assert.Equal(t, map[string]any{"classe": "good", "prob_bom": 0.9612}, out["risco"])
}

func TestAnalyzeSecurityBlock(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.4}, fixedRisk{class: "good", probGood: 0.99}, nil)

	res := d.Dispatch(context.Background(), AnalyzeClient, scenarioA)
	require.True(t, res.Success)

	out := asJSON(t, res.Output)
	assert.Equal(t, "SECURITY_BLOCK", out["decisao"])
	assert.Nil(t, out["oferta"])
	assert.Nil(t, out["risco"])
}

func TestAnalyzeRiskDenied(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "bad", probGood: 0.2}, nil)

	res := d.Dispatch(context.Background(), AnalyzeClient, scenarioA)
	require.True(t, res.Success)

	out := asJSON(t, res.Output)
	assert.Equal(t, "RISK_DENIED", out["decisao"])
	assert.Nil(t, out["oferta"])
	assert.Equal(t, "bad", out["risco"].(map[string]any)["classe"])
}

func TestFraudAndRiskTools(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.5}, fixedRisk{class: "good", probGood: 0.75}, nil)

	res := d.Dispatch(context.Background(), CheckFraud, scenarioA)
	require.True(t, res.Success)
	assert.Equal(t, FraudOutput{Score: 0.5, Class: decision.FraudNormal}, res.Output)

	res = d.Dispatch(context.Background(), AssessRisk, scenarioA)
	require.True(t, res.Success)
	out := asJSON(t, res.Output)
	assert.Equal(t, "good", out["classe"])
	assert.Equal(t, map[string]any{"good": 0.75, "bad": 0.25}, out["probabilidades"])
}

func TestDecideOffer(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, nil)

	args := map[string]any{"renda": 2500, "divida": 500, "score": 400, "emprego": 3, "idade": 19, "prob_bom": "0.55"}
	res := d.Dispatch(context.Background(), DecideOffer, args)
	require.True(t, res.Success, res.Error)

	out, ok := res.Output.(OfferOutput)
	require.True(t, ok)
	assert.Equal(t, decision.TierBronze, out.Suggestion)
	assert.Len(t, out.Ranking, 4)
	assert.Contains(t, out.Ranking, decision.ClientOption)
	assert.Contains(t, out.Ranking, decision.GoldOption)
}

func TestFindClient(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, newMemoryStore())

	res := d.Dispatch(context.Background(), FindClient, map[string]any{"id": 1001.0})
	require.True(t, res.Success, res.Error)
	c, ok := res.Output.(*clients.Client)
	require.True(t, ok)
	assert.Equal(t, "Ana Souza", c.Name)

	res = d.Dispatch(context.Background(), FindClient, map[string]any{"id": "4242"})
	require.True(t, res.Success)
	assert.Equal(t, NotFoundOutput{Error: ClientNotFound}, res.Output)
}

func TestFindClientStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("database is locked")
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, store)

	res := d.Dispatch(context.Background(), FindClient, map[string]any{"id": "1001"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrToolExecution)
	assert.Contains(t, res.Error, "database is locked")
}

func TestListClientsDefaultsName(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, newMemoryStore())

	res := d.Dispatch(context.Background(), ListClients, nil)
	require.True(t, res.Success)
	assert.Equal(t, []clients.Summary{
		{ID: "1001", Name: "Ana Souza"},
		{ID: "1002", Name: clients.DefaultName},
	}, res.Output)
}

func TestModelFailureBecomesToolError(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{err: errors.New("network weights corrupted")}, fixedRisk{class: "good"}, nil)

	res := d.Dispatch(context.Background(), AnalyzeClient, scenarioA)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrToolExecution)
	assert.ErrorIs(t, res.Err, decision.ErrModelInference)
}
