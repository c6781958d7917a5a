package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/resilience"
)

// ResilientVerifier wraps a Verifier with retry and a circuit breaker. When
// the verification service flaps, the breaker sheds calls fast and the
// caller falls back to the store-backed retry queue.
type ResilientVerifier struct {
	inner   Verifier
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewResilientVerifier wraps inner. Zero-value configs take the package
// defaults.
func NewResilientVerifier(inner Verifier, retryCfg resilience.RetryConfig, breakerCfg resilience.CircuitBreakerConfig) *ResilientVerifier {
	retryCfg.OnRetry = resilience.RetryLogger("verification", "verify_email")
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("verification breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &ResilientVerifier{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		retry:   retryCfg,
	}
}

func (v *ResilientVerifier) Verify(ctx context.Context, email string) (model.VerificationStatus, error) {
	return resilience.DoVal(ctx, v.retry, func(ctx context.Context) (model.VerificationStatus, error) {
		return resilience.ExecuteVal(ctx, v.breaker, func(ctx context.Context) (model.VerificationStatus, error) {
			return v.inner.Verify(ctx, email)
		})
	})
}

// BreakerState exposes the circuit state for health reporting.
func (v *ResilientVerifier) BreakerState() resilience.CircuitState {
	return v.breaker.State()
}
