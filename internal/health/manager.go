package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers and aggregates their results.
type Manager struct {
	mu          sync.RWMutex
	checkers    map[string]Checker
	lastResults map[string]CheckResult
	logger      *zap.Logger
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkers:    make(map[string]Checker),
		lastResults: make(map[string]CheckResult),
		logger:      logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = checker

	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", checker.IsCritical()),
		zap.Duration("timeout", checker.Timeout()),
	)
	return nil
}

// Names lists registered checkers in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDetailedHealth runs every checker concurrently, each under its own timeout.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	components := make(map[string]CheckResult, len(results))
	for _, r := range results {
		components[r.Component] = r
	}

	m.mu.Lock()
	for name, r := range components {
		m.lastResults[name] = r
	}
	m.mu.Unlock()

	return buildDetailed(components)
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	start := time.Now()
	overall := m.GetDetailedHealth(ctx).Overall
	overall.Duration = time.Since(start)
	return overall
}

// IsReady reports whether no critical component is failing.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness. It runs no checks.
func (m *Manager) IsLive(context.Context) bool { return true }

// GetLastResults returns the most recent results without running new checks.
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.lastResults))
	for k, v := range m.lastResults {
		out[k] = v
	}
	return out
}

// CachedHealth aggregates the last results.
func (m *Manager) CachedHealth() DetailedHealth {
	return buildDetailed(m.GetLastResults())
}

func runCheck(ctx context.Context, c Checker) (result CheckResult) {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Status: StatusUnhealthy, Error: fmt.Sprint(r), Message: "check panicked"}
		}
		result.Component = c.Name()
		result.Critical = c.IsCritical()
		result.Duration = time.Since(start)
		result.Timestamp = start
	}()
	return c.Check(checkCtx)
}

func buildDetailed(components map[string]CheckResult) DetailedHealth {
	summary := HealthSummary{Total: len(components)}
	for _, r := range components {
		switch r.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if r.Critical {
			summary.Critical++
		} else {
			summary.NonCritical++
		}
	}
	now := time.Now()
	overall := overallStatus(components, summary)
	overall.Timestamp = now
	return DetailedHealth{Overall: overall, Components: components, Summary: summary, Timestamp: now}
}

// overallStatus: a failing critical component is unhealthy and not ready; anything
// else failing or slow is degraded but ready.
func overallStatus(components map[string]CheckResult, summary HealthSummary) OverallHealth {
	if summary.Total == 0 {
		return OverallHealth{Status: StatusUnknown, Message: "No health checks registered", Live: true}
	}

	var criticalFailures, otherFailures int
	for _, r := range components {
		if r.Status != StatusUnhealthy {
			continue
		}
		if r.Critical {
			criticalFailures++
		} else {
			otherFailures++
		}
	}

	switch {
	case criticalFailures > 0:
		return OverallHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Live:    true,
		}
	case summary.Degraded > 0 || otherFailures > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d component(s) degraded or failing", summary.Degraded+otherFailures),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	default:
		return OverallHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("All %d components healthy", summary.Total),
			Ready:   true,
			Live:    true,
		}
	}
}
