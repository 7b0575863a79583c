package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const denyListing = `package lina.tools

import rego.v1

default decision := {"allow": true}

decision := {"allow": false, "reason": "client listing disabled in production"} if {
	input.tool == "listar_clientes"
	input.environment == "prod"
}
`

func TestEnforceDeniesMatchingCall(t *testing.T) {
	e, err := NewOPAEngineFromModules(Config{Mode: ModeEnforce, Environment: "prod"},
		map[string]string{"tools.rego": denyListing}, zaptest.NewLogger(t))
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), &Input{Tool: "listar_clientes"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.True(t, d.Enforced)
	assert.Equal(t, "client listing disabled in production", d.Reason)

	d, err = e.Evaluate(context.Background(), &Input{Tool: "analisar_cliente", Args: map[string]any{"renda": 1000.0}})
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestDryRunOnlyReports(t *testing.T) {
	e, err := NewOPAEngineFromModules(Config{Mode: ModeDryRun, Environment: "prod"},
		map[string]string{"tools.rego": denyListing}, zaptest.NewLogger(t))
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), &Input{Tool: "listar_clientes"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.False(t, d.Enforced)
}

func TestBooleanRule(t *testing.T) {
	module := `package lina.tools

import rego.v1

default allow := false

allow if input.tool != "buscar_cliente"
`
	e, err := NewOPAEngineFromModules(Config{Mode: ModeEnforce, Query: "data.lina.tools.allow"},
		map[string]string{"allow.rego": module}, zaptest.NewLogger(t))
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), &Input{Tool: "buscar_cliente"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, "denied by policy", d.Reason)
}

func TestOffModeAllowsEverything(t *testing.T) {
	e, err := NewOPAEngine(Config{Mode: ModeOff}, zaptest.NewLogger(t))
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), &Input{Tool: "anything"})
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.rego"), []byte(denyListing), 0o600))

	e, err := NewOPAEngine(Config{Mode: ModeEnforce, Path: dir, Environment: "prod"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ModeEnforce, e.Mode())

	d, err := e.Evaluate(context.Background(), &Input{Tool: "listar_clientes"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
}

func TestMissingPoliciesFailOpenOrClosed(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none")

	e, err := NewOPAEngine(Config{Mode: ModeEnforce, Path: missing}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ModeOff, e.Mode())

	_, err = NewOPAEngine(Config{Mode: ModeEnforce, Path: missing, FailClosed: true}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestUnknownModeIsOff(t *testing.T) {
	cfg := Config{Mode: "sometimes"}
	cfg.Normalize()
	assert.Equal(t, ModeOff, cfg.Mode)
	assert.Equal(t, DefaultQuery, cfg.Query)
}

func TestReloadSwapsPolicies(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tools.rego")
	require.NoError(t, os.WriteFile(file, []byte(denyListing), 0o600))

	e, err := NewOPAEngine(Config{Mode: ModeEnforce, Path: dir, Environment: "prod"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	d, err := e.Evaluate(context.Background(), &Input{Tool: "listar_clientes"})
	require.NoError(t, err)
	assert.False(t, d.Allow)

	allowAll := "package lina.tools\n\nimport rego.v1\n\ndefault decision := {\"allow\": true}\n"
	require.NoError(t, os.WriteFile(file, []byte(allowAll), 0o600))
	require.NoError(t, e.Reload())

	d, err = e.Evaluate(context.Background(), &Input{Tool: "listar_clientes"})
	require.NoError(t, err)
	assert.True(t, d.Allow)

	require.NoError(t, os.WriteFile(file, []byte("package broken\n\nthis is not rego"), 0o600))
	assert.Error(t, e.Reload())

	d, err = e.Evaluate(context.Background(), &Input{Tool: "listar_clientes"})
	require.NoError(t, err)
	assert.True(t, d.Allow, "failed reload keeps the last good policies")
}
