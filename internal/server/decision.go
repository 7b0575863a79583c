// Package server assembles the decision service shared by the decision server, the
// gateway's in-process mode and the CLI.
package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/clients"
	"github.com/Kocoro-lab/lina/internal/config"
	"github.com/Kocoro-lab/lina/internal/decision"
	"github.com/Kocoro-lab/lina/internal/health"
	"github.com/Kocoro-lab/lina/internal/inference"
	"github.com/Kocoro-lab/lina/internal/policy"
	"github.com/Kocoro-lab/lina/internal/ranking"
	"github.com/Kocoro-lab/lina/internal/tools"
)

// DecisionService owns the loaded models, the client dataset and the tool
// dispatcher built on them.
type DecisionService struct {
	Models     *inference.Registry
	Pipeline   *decision.Pipeline
	Store      clients.Store
	Policy     *policy.OPAEngine
	Dispatcher *tools.Dispatcher

	logger *zap.Logger
}

// NewDecisionService loads models and opens the client store. A model load failure
// is returned as *inference.ModelLoadError; callers must not serve without models.
func NewDecisionService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DecisionService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	models, err := inference.Load(cfg.Models.Manifest)
	if err != nil {
		return nil, err
	}
	info := models.Info()
	logger.Info("Models loaded",
		zap.String("manifest", info.Source),
		zap.Ints("fraud_topology", info.FraudTopology),
		zap.Strings("risk_classes", info.RiskClasses),
		zap.Int("risk_trees", info.RiskTrees),
	)

	pipeline := decision.NewPipeline(models, models, ranking.NewRatioRanker(),
		decision.WithFraudThreshold(cfg.Decision.FraudThreshold),
		decision.WithTierRatio(cfg.Decision.TierRatio),
		decision.WithLogger(logger),
	)

	store, err := clients.Open(ctx, cfg.Clients, logger)
	if err != nil {
		return nil, fmt.Errorf("open client store: %w", err)
	}

	engine, err := policy.NewOPAEngine(cfg.Policy, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load tool policies: %w", err)
	}

	registry, err := tools.NewCatalogue(pipeline, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build tool catalogue: %w", err)
	}

	dispatcher := tools.NewDispatcher(registry, logger,
		tools.WithPolicy(engine),
		tools.WithTimeout(cfg.Tools.Timeout),
	)

	return &DecisionService{
		Models:     models,
		Pipeline:   pipeline,
		Store:      store,
		Policy:     engine,
		Dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// RegisterHealth adds the model and client store checks.
func (s *DecisionService) RegisterHealth(hm *health.Manager) error {
	if err := hm.RegisterChecker(health.NewModelsChecker(s.Models)); err != nil {
		return err
	}
	return hm.RegisterChecker(health.NewClientStoreChecker(s.Store))
}

// WatchPolicies reloads the tool policies when their files change.
func (s *DecisionService) WatchPolicies(w *config.Watcher) error {
	if s.Policy.Mode() == policy.ModeOff || s.Policy.Path() == "" {
		return nil
	}
	return w.Watch(s.Policy.Path(), ".rego", func(config.ChangeEvent) error {
		return s.Policy.Reload()
	})
}

// Close releases the client store.
func (s *DecisionService) Close() error {
	return s.Store.Close()
}
