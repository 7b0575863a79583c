package circuitbreaker

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker and records metrics consistently
type HTTPWrapper struct {
	client    *http.Client
	cb        *CircuitBreaker
	name      string
	service   string
	isFailure func(*http.Response) bool
}

// HTTPOption configures an HTTPWrapper.
type HTTPOption func(*HTTPWrapper)

// WithFailureClassifier replaces the default rule (status >= 500) deciding which
// responses count against the breaker. The classifier may read resp.Body as long as it
// leaves an equivalent body in place.
func WithFailureClassifier(fn func(*http.Response) bool) HTTPOption {
	return func(hw *HTTPWrapper) { hw.isFailure = fn }
}

// ServerError is the default failure classifier.
func ServerError(resp *http.Response) bool { return resp.StatusCode >= 500 }

// NewHTTPWrapper creates a wrapper whose breaker uses cfg. The client timeout is the
// per-call deadline for the downstream.
func NewHTTPWrapper(client *http.Client, name, service string, cfg CircuitBreakerConfig, logger *zap.Logger, opts ...HTTPOption) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	cb := NewCircuitBreaker(name, cfg.ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	hw := &HTTPWrapper{client: client, cb: cb, name: name, service: service, isFailure: ServerError}
	for _, opt := range opts {
		opt(hw)
	}
	return hw
}

// Breaker exposes the underlying breaker for health reporting.
func (hw *HTTPWrapper) Breaker() *CircuitBreaker { return hw.cb }

// Do executes req through the breaker. Responses the classifier rejects (5xx by
// default) count as failures but are still returned to the caller with a nil error.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = hw.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if hw.isFailure(resp) {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	GlobalMetricsCollector.RecordRequest(hw.name, hw.service, hw.cb.State(), err == nil)

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return resp, nil
	}
	return resp, err
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
