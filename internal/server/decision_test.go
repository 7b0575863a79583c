package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/lina/internal/config"
	"github.com/Kocoro-lab/lina/internal/health"
	"github.com/Kocoro-lab/lina/internal/inference"
	"github.com/Kocoro-lab/lina/internal/policy"
	"github.com/Kocoro-lab/lina/internal/tools"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Models.Manifest = "../../models/models.yaml"
	cfg.Clients.FinancialCSV = "../clients/testdata/clientes.csv"
	cfg.Clients.PersonalCSV = "../clients/testdata/clientes_dados.csv"
	return cfg
}

func TestDecisionServiceDispatches(t *testing.T) {
	svc, err := NewDecisionService(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	names := make([]string, 0)
	for _, d := range svc.Dispatcher.Registry().Definitions() {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, tools.AnalyzeClient)
	assert.Contains(t, names, tools.FindClient)

	res := svc.Dispatcher.Dispatch(context.Background(), tools.AnalyzeClient, map[string]any{
		"renda": 18000.0, "divida": 1500.0, "score": 850.0, "emprego": 48.0, "idade": 40.0,
	})
	require.True(t, res.Success, res.Error)
	out, ok := res.Output.(tools.AnalysisOutput)
	require.True(t, ok)
	assert.NotEmpty(t, out.Decision)

	res = svc.Dispatcher.Dispatch(context.Background(), tools.FindClient, map[string]any{"id": "1001"})
	assert.True(t, res.Success)
}

func TestDecisionServiceRegistersHealth(t *testing.T) {
	svc, err := NewDecisionService(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	hm := health.NewManager(zaptest.NewLogger(t))
	require.NoError(t, svc.RegisterHealth(hm))
	assert.Equal(t, []string{"client_store", "models"}, hm.Names())
	assert.True(t, hm.IsReady(context.Background()))
}

func TestDecisionServiceRequiresModels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models.Manifest = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewDecisionService(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	var loadErr *inference.ModelLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestDecisionServiceWatchesPolicies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.rego"), []byte(`package lina.tools

import rego.v1

default decision := {"allow": true}

decision := {"allow": false, "reason": "listing disabled"} if input.tool == "listar_clientes"
`), 0o600))

	cfg := testConfig(t)
	cfg.Policy.Mode = policy.ModeEnforce
	cfg.Policy.Path = dir

	svc, err := NewDecisionService(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	res := svc.Dispatcher.Dispatch(context.Background(), tools.ListClients, map[string]any{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, tools.ErrPolicyDenied)

	w, err := config.NewWatcher(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	require.NoError(t, svc.WatchPolicies(w))
}
