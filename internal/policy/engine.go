// Package policy authorizes tool calls with Open Policy Agent rego policies.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// Input is the document policies see as `input`.
type Input struct {
	Tool           string         `json:"tool"`
	Args           map[string]any `json:"args"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Environment    string         `json:"environment"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Decision represents the policy evaluation result
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
	// Enforced is false when a denial was only logged (dry-run).
	Enforced bool `json:"enforced"`
}

// Engine evaluates tool-call policies.
type Engine interface {
	Evaluate(ctx context.Context, input *Input) (*Decision, error)
	Mode() Mode
}

// OPAEngine implements Engine using OPA rego
type OPAEngine struct {
	config   Config
	logger   *zap.Logger
	compiled atomic.Pointer[rego.PreparedEvalQuery]
}

// NewOPAEngine loads the policies named by config from disk. With ModeOff nothing is
// loaded and every call is allowed.
func NewOPAEngine(config Config, logger *zap.Logger) (*OPAEngine, error) {
	config.Normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &OPAEngine{config: config, logger: logger}
	if config.Mode == ModeOff {
		return e, nil
	}

	modules, err := readModules(config.Path)
	if err == nil && len(modules) == 0 {
		err = fmt.Errorf("no .rego files under %s", config.Path)
	}
	if err == nil {
		err = e.compile(modules)
	}
	if err != nil {
		if config.FailClosed {
			return nil, fmt.Errorf("failed to load policies in fail-closed mode: %w", err)
		}
		logger.Warn("Failed to load policies, tool calls are not policy checked", zap.Error(err))
		e.config.Mode = ModeOff
	}
	return e, nil
}

// NewOPAEngineFromModules compiles in-memory rego modules keyed by module name.
func NewOPAEngineFromModules(config Config, modules map[string]string, logger *zap.Logger) (*OPAEngine, error) {
	config.Normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &OPAEngine{config: config, logger: logger}
	if config.Mode == ModeOff {
		return e, nil
	}
	if err := e.compile(modules); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *OPAEngine) compile(modules map[string]string) error {
	options := []func(*rego.Rego){rego.Query(e.config.Query)}
	for name, content := range modules {
		options = append(options, rego.Module(name, content))
	}

	compiled, err := rego.New(options...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}
	e.compiled.Store(&compiled)

	e.logger.Info("Tool policies loaded",
		zap.Int("policy_count", len(modules)),
		zap.String("query", e.config.Query),
		zap.String("mode", string(e.config.Mode)),
	)
	return nil
}

// Reload re-reads the policy path and swaps in the new modules. On error the
// previously compiled policies stay active.
func (e *OPAEngine) Reload() error {
	if e.config.Mode == ModeOff || e.config.Path == "" {
		return nil
	}
	modules, err := readModules(e.config.Path)
	if err != nil {
		return fmt.Errorf("failed to read policies: %w", err)
	}
	if len(modules) == 0 {
		return fmt.Errorf("no .rego files under %s", e.config.Path)
	}
	return e.compile(modules)
}

// Path returns the configured policy file or directory.
func (e *OPAEngine) Path() string { return e.config.Path }

// Mode returns the effective enforcement mode.
func (e *OPAEngine) Mode() Mode { return e.config.Mode }

// Evaluate decides whether a tool call may run. In dry-run mode denials are reported
// with Enforced=false and Allow=true.
func (e *OPAEngine) Evaluate(ctx context.Context, input *Input) (*Decision, error) {
	compiled := e.compiled.Load()
	if e.config.Mode == ModeOff || compiled == nil {
		return &Decision{Allow: true, Reason: "policy engine disabled"}, nil
	}

	start := time.Now()
	if input.Environment == "" {
		input.Environment = e.config.Environment
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now().UTC()
	}

	inputMap, err := toMap(input)
	if err != nil {
		return e.failure("input_conversion", err)
	}

	results, err := compiled.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return e.failure("policy_evaluation", err)
	}

	decision := parseResults(results)
	decision.Enforced = true
	if !decision.Allow && e.config.Mode == ModeDryRun {
		e.logger.Info("Tool call would be denied by policy",
			zap.String("tool", input.Tool),
			zap.String("reason", decision.Reason),
		)
		decision.Allow = true
		decision.Enforced = false
	}

	recordEvaluation(input.Tool, decision, time.Since(start))
	return decision, nil
}

func (e *OPAEngine) failure(stage string, err error) (*Decision, error) {
	evaluationErrors.WithLabelValues(stage).Inc()
	e.logger.Error("Policy evaluation failed", zap.String("stage", stage), zap.Error(err))
	if e.config.FailClosed {
		return &Decision{Allow: false, Reason: "policy evaluation error", Enforced: true}, err
	}
	return &Decision{Allow: true, Reason: "policy evaluation error (fail-open)"}, nil
}

// parseResults accepts either a boolean or an {allow, reason} object. No result denies.
func parseResults(results rego.ResultSet) *Decision {
	decision := &Decision{Allow: false, Reason: "no matching policy rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision
	}

	switch value := results[0].Expressions[0].Value.(type) {
	case map[string]interface{}:
		if allow, ok := value["allow"].(bool); ok {
			decision.Allow = allow
		}
		if reason, ok := value["reason"].(string); ok {
			decision.Reason = reason
		} else if decision.Allow {
			decision.Reason = "allowed by policy"
		}
	case bool:
		decision.Allow = value
		if value {
			decision.Reason = "allowed by policy"
		} else {
			decision.Reason = "denied by policy"
		}
	}
	return decision
}

func toMap(input *Input) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readModules(path string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	modules := make(map[string]string)
	if !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		modules[filepath.Base(path)] = string(content)
		return modules, nil
	}

	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".rego") {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", p, err)
		}
		rel, _ := filepath.Rel(path, p)
		modules[strings.TrimSuffix(rel, ".rego")] = string(content)
		return nil
	})
	return modules, err
}
