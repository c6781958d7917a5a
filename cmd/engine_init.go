package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/notify"
	"github.com/leadgrid/lead-engine/internal/pipeline"
	"github.com/leadgrid/lead-engine/internal/resilience"
	"github.com/leadgrid/lead-engine/internal/routing"
	"github.com/leadgrid/lead-engine/internal/scoring"
	"github.com/leadgrid/lead-engine/internal/store"
	"github.com/leadgrid/lead-engine/internal/verify"
)

// engineEnv holds the initialized store and assembled pipeline needed by the
// ingest/serve/acquire commands.
type engineEnv struct {
	Store        store.Store
	Pipeline     *pipeline.Pipeline
	VerifyWorker *verify.Worker // nil when verification is disabled
	redis        *redis.Client
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadgrid.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, optional Redis cache and verifier, and
// builds the Pipeline. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &engineEnv{Store: st}

	var cache *identity.FingerprintCache
	if cfg.Redis.Addr != "" {
		env.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = identity.NewFingerprintCache(env.redis, time.Duration(cfg.Redis.TTLMinutes)*time.Minute)
	}

	validator := identity.NewValidator(cfg.Identity.Industries)

	resolverOpts := []identity.ResolverOption{
		identity.WithChunkSize(cfg.Identity.ChunkSize),
	}
	if cache != nil {
		resolverOpts = append(resolverOpts, identity.WithCache(cache))
	}
	resolver := identity.NewResolver(st, resolverOpts...)

	engine, err := initScoringEngine()
	if err != nil {
		env.Close()
		return nil, err
	}

	matcher := routing.NewMatcher(st,
		routing.WithNotifyLimits(cfg.Routing.NotifyPerTenant, cfg.Routing.NotifyPerRun),
	)

	var transport notify.Transport = notify.NopTransport{}
	if cfg.Notify.WebhookURL != "" {
		transport = notify.NewWebhookTransport(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutSecs)*time.Second)
	}
	dispatcher := notify.NewDispatcher(transport,
		notify.WithConcurrency(cfg.Notify.Concurrency),
		notify.WithRateLimit(cfg.Notify.RatePerSec),
	)

	pipeOpts := []pipeline.Option{}
	if cache != nil {
		pipeOpts = append(pipeOpts, pipeline.WithFingerprintCache(cache))
	}
	if cfg.Verify.BaseURL != "" {
		verifier, worker := initVerification(st)
		env.VerifyWorker = worker
		pipeOpts = append(pipeOpts, pipeline.WithVerification(verifier, worker))
	}

	env.Pipeline = pipeline.New(st, validator, resolver, engine, matcher, dispatcher, pipeOpts...)
	return env, nil
}

func initScoringEngine() (*scoring.Engine, error) {
	scoringCfg := scoring.Config{
		BasePrice:     cfg.Scoring.BasePrice,
		PhoneBonus:    cfg.Scoring.PhoneBonus,
		VerifiedBonus: cfg.Scoring.VerifiedBonus,
		Freshness: scoring.FreshnessParams{
			K:            cfg.Scoring.FreshnessK,
			MidpointDays: cfg.Scoring.FreshnessMidpoint,
			Floor:        cfg.Scoring.FreshnessFloor,
		},
	}

	opts := []scoring.EngineOption{}
	if path := cfg.Scoring.SeniorityRulesPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "read seniority rules")
		}
		rules, err := scoring.LoadSeniorityRules(data)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scoring.WithSeniorityRules(rules))
	}
	return scoring.NewEngine(scoringCfg, opts...), nil
}

func initVerification(st store.Store) (verify.Verifier, *verify.Worker) {
	httpVerifier := verify.NewHTTPVerifier(
		cfg.Verify.BaseURL, cfg.Verify.APIKey,
		time.Duration(cfg.Verify.TimeoutSecs)*time.Second,
	)

	backoff := resilience.RetryConfig{
		MaxAttempts:    cfg.Verify.RetryAttempts,
		InitialBackoff: time.Duration(cfg.Verify.BackoffSecs) * time.Second,
	}
	verifier := verify.NewResilientVerifier(httpVerifier, backoff, resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Verify.BreakerThreshold,
		ResetTimeout:     time.Duration(cfg.Verify.BreakerResetSecs) * time.Second,
	})

	worker := verify.NewWorker(st, verifier, cfg.Verify.MaxAttempts, backoff)
	return verifier, worker
}
