// internal/workers/integration/government-gateway/gateway.go
package governmentgateway

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"fleet-compliance/internal/common/errors"
	commonhttp "fleet-compliance/internal/common/http"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/metrics"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
)

type agency struct {
	name     models.Agency
	client   AgencyClient
	limiter  *slidingWindow
	breaker  *circuitBreaker
	timeout  time.Duration
	cacheTTL time.Duration
}

// Gateway fronts the agency clients with a per-agency rate limiter, circuit breaker,
// call timeout and verification cache.
type Gateway struct {
	agencies map[models.Agency]*agency
	cache    repository.VerificationCache
	logger   logger.Logger
	now      func() time.Time
}

func NewGateway(cache repository.VerificationCache, log logger.Logger) *Gateway {
	return &Gateway{
		agencies: make(map[models.Agency]*agency),
		cache:    cache,
		logger:   log,
		now:      time.Now,
	}
}

// NewGatewayFromConfig registers an HTTP client for every configured agency.
func NewGatewayFromConfig(cfg *Config, cache repository.VerificationCache, log logger.Logger) *Gateway {
	g := NewGateway(cache, log)
	for name, ac := range cfg.Agencies {
		g.Register(name, NewHTTPAgencyClient(ac.BaseURL, ac.APIKey, ac.Timeout), ac)
	}
	return g
}

// Register installs client for name. Zero settings fall back to the defaults.
func (g *Gateway) Register(name models.Agency, client AgencyClient, ac AgencyConfig) {
	def := defaultAgency()
	if ac.Timeout <= 0 {
		ac.Timeout = def.Timeout
	}
	if ac.RateLimit <= 0 {
		ac.RateLimit = def.RateLimit
	}
	if ac.RateWindow <= 0 {
		ac.RateWindow = def.RateWindow
	}
	if ac.FailureThreshold <= 0 {
		ac.FailureThreshold = def.FailureThreshold
	}
	if ac.Cooldown <= 0 {
		ac.Cooldown = def.Cooldown
	}
	g.agencies[name] = &agency{
		name:     name,
		client:   client,
		limiter:  newSlidingWindow(ac.RateLimit, ac.RateWindow),
		breaker:  newCircuitBreaker(ac.FailureThreshold, ac.Cooldown),
		timeout:  ac.Timeout,
		cacheTTL: ac.CacheTTL,
	}
}

func (g *Gateway) agencyFor(d models.Domain) (*agency, error) {
	name, ok := models.AgencyFor(d)
	if !ok {
		return nil, errors.NewValidationError("domain", fmt.Sprintf("no agency verifies domain %q", d))
	}
	a, ok := g.agencies[name]
	if !ok {
		return nil, errors.NewUnavailableError(string(name), fmt.Errorf("agency not configured"))
	}
	return a, nil
}

// Verify asks the domain's agency about ref. Cached results are returned without a call.
// Failures are ExternalServiceErrors: RateLimited, Timeout or Unavailable.
func (g *Gateway) Verify(ctx context.Context, ref models.EntityRef) (*models.VerificationResult, error) {
	a, err := g.agencyFor(ref.Domain)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if cached, ok := g.cache.Get(ctx, ref); ok {
			metrics.GatewayCalls.WithLabelValues(string(a.name), "cached").Inc()
			return cached, nil
		}
	}

	var answer *AgencyVerification
	err = g.call(ctx, a, func(ctx context.Context) error {
		var callErr error
		answer, callErr = a.client.Verify(ctx, ref)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	result := models.VerificationResult{
		EntityID:   ref.EntityID,
		Domain:     ref.Domain,
		Agency:     a.name,
		Valid:      answer.Valid,
		Status:     answer.Status,
		ExpiryDate: answer.ExpiryDate,
		CheckedAt:  g.now().UTC(),
	}
	if g.cache != nil && a.cacheTTL > 0 {
		if err := g.cache.Set(ctx, ref, result, a.cacheTTL); err != nil {
			g.logger.Warn("verification cache write failed", map[string]interface{}{
				"agency":   a.name,
				"entityId": ref.EntityID,
				"error":    err.Error(),
			})
		}
	}
	return &result, nil
}

// Submit files s with the agency of its domain.
func (g *Gateway) Submit(ctx context.Context, s Submission) (*SubmissionReceipt, error) {
	a, err := g.agencyFor(s.Domain)
	if err != nil {
		return nil, err
	}
	var receipt *SubmissionReceipt
	err = g.call(ctx, a, func(ctx context.Context) error {
		var callErr error
		receipt, callErr = a.client.Submit(ctx, s)
		return callErr
	})
	return receipt, err
}

// HealthStatus reports the breaker-derived health of an agency. Unknown agencies are down.
func (g *Gateway) HealthStatus(name models.Agency) models.HealthStatus {
	a, ok := g.agencies[name]
	if !ok {
		return models.HealthDown
	}
	return a.breaker.Health(g.now())
}

// Probe calls every agency's health endpoint and feeds the outcome to its breaker.
func (g *Gateway) Probe(ctx context.Context) map[models.Agency]models.HealthStatus {
	out := make(map[models.Agency]models.HealthStatus, len(g.agencies))
	for name, a := range g.agencies {
		_ = g.call(ctx, a, a.client.Health)
		out[name] = a.breaker.Health(g.now())
	}
	return out
}

// call runs fn under the agency's breaker, limiter and per-call timeout. Only failures
// inside the per-call timeout count against the agency; the caller giving up does not.
func (g *Gateway) call(ctx context.Context, a *agency, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		metrics.GatewayCalls.WithLabelValues(string(a.name), "cancelled").Inc()
		return classify(string(a.name), err)
	}
	now := g.now()
	if !a.breaker.Allow(now) {
		metrics.GatewayCalls.WithLabelValues(string(a.name), "short_circuited").Inc()
		return errors.NewUnavailableError(string(a.name), fmt.Errorf("circuit open"))
	}
	if ok, retryAfter := a.limiter.Allow(now); !ok {
		a.breaker.Cancel()
		metrics.GatewayCalls.WithLabelValues(string(a.name), "rate_limited").Inc()
		return errors.NewRateLimitedError(string(a.name), retryAfter)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.GatewayLatency.WithLabelValues(string(a.name)).Observe(time.Since(start).Seconds())

	if err == nil {
		a.breaker.RecordSuccess()
		metrics.GatewayCalls.WithLabelValues(string(a.name), "ok").Inc()
		return nil
	}

	typed := classify(string(a.name), err)
	if ctx.Err() != nil {
		a.breaker.Cancel()
		metrics.GatewayCalls.WithLabelValues(string(a.name), "cancelled").Inc()
		return typed
	}
	// a quota answer from the agency says nothing about its health
	if errors.CodeOf(typed) != errors.ErrCodeRateLimited {
		a.breaker.RecordFailure(g.now())
	} else {
		a.breaker.Cancel()
	}
	metrics.GatewayCalls.WithLabelValues(string(a.name), string(errors.CodeOf(typed))).Inc()
	g.logger.Warn("agency call failed", map[string]interface{}{
		"agency": a.name,
		"code":   errors.CodeOf(typed),
		"error":  err.Error(),
	})
	return typed
}

func classify(service string, err error) error {
	var status *commonhttp.StatusError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError(service, err)
	case stderrors.As(err, &status) && status.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitedError(service, 0)
	case stderrors.As(err, &status) && status.StatusCode == http.StatusRequestTimeout:
		return errors.NewTimeoutError(service, err)
	}
	var timeout interface{ Timeout() bool }
	if stderrors.As(err, &timeout) && timeout.Timeout() {
		return errors.NewTimeoutError(service, err)
	}
	return errors.NewUnavailableError(service, err)
}
