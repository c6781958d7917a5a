package notify

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/leadgrid/lead-engine/internal/model"
)

// Dispatcher fans notifications out over a transport with bounded
// concurrency. Every send is best-effort: failures are logged and counted
// but never fail the batch.
type Dispatcher struct {
	transport   Transport
	concurrency int
	limiter     *rate.Limiter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds how many sends run in parallel.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithRateLimit throttles sends to n per second. Zero or negative disables
// throttling.
func WithRateLimit(n float64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// NewDispatcher creates a dispatcher. Concurrency defaults to 5.
func NewDispatcher(transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{transport: transport, concurrency: 5}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends all requests concurrently and returns how many settled
// (were attempted to completion) and how many of those failed. The error
// from each send is swallowed after logging; only context cancellation cuts
// the run short.
func (d *Dispatcher) Dispatch(ctx context.Context, requests []model.NotificationRequest) (settled, failed int) {
	if len(requests) == 0 {
		return 0, 0
	}

	var settledCount, failedCount atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, req := range requests {
		g.Go(func() error {
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			if ctx.Err() != nil {
				return nil
			}

			settledCount.Add(1)
			if err := d.transport.Send(ctx, req); err != nil {
				failedCount.Add(1)
				zap.L().Warn("notify: delivery failed",
					zap.String("lead_id", req.LeadID),
					zap.String("subscriber_id", req.SubscriberID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(settledCount.Load()), int(failedCount.Load())
}
