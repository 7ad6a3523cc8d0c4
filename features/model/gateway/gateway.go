// Package gateway provides the uniform chat operation over all supported
// model providers. Provider selection happens per call, credentials come from
// the live configuration snapshot, and a credential refresh swaps the snapshot
// atomically so key rotation does not require a process restart.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowd-dev/flowd/config"
	"github.com/flowd-dev/flowd/features/model"
	"github.com/flowd-dev/flowd/features/model/anthropic"
	"github.com/flowd-dev/flowd/features/model/ollama"
	"github.com/flowd-dev/flowd/features/model/openai"
	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/runtime/telemetry"
)

// defaultRequestsPerMinute bounds calls per provider when Options does not
// override it.
const defaultRequestsPerMinute = 60

type (
	// Factory builds a provider backend from a configuration snapshot.
	Factory func(cfg *config.Config) (model.Backend, error)

	// Options configures the Gateway.
	Options struct {
		// Source supplies the live configuration. Required.
		Source *config.Source
		// Logger receives retry and refresh diagnostics. Nil means silent.
		Logger telemetry.Logger
		// Backends overrides provider factories. Tests install fakes here;
		// missing entries fall back to the real adapters.
		Backends map[string]Factory
		// RequestsPerMinute caps per-provider call rate. Zero means the default;
		// negative disables limiting.
		RequestsPerMinute float64
	}

	// Gateway is the process-wide model gateway.
	Gateway struct {
		source    *config.Source
		logger    telemetry.Logger
		factories map[string]Factory

		mu       sync.Mutex
		limiters map[string]*rate.Limiter
		rpm      float64
	}
)

// New constructs a Gateway.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	rpm := opts.RequestsPerMinute
	if rpm == 0 {
		rpm = defaultRequestsPerMinute
	}
	factories := map[string]Factory{
		"openai": func(cfg *config.Config) (model.Backend, error) {
			return openai.New(cfg.APIKey("openai"))
		},
		"anthropic": func(cfg *config.Config) (model.Backend, error) {
			return anthropic.New(cfg.APIKey("anthropic"))
		},
		"groq": func(cfg *config.Config) (model.Backend, error) {
			return openai.NewGroq(cfg.APIKey("groq"))
		},
		"ollama": func(cfg *config.Config) (model.Backend, error) {
			return ollama.New(cfg.OllamaHost), nil
		},
	}
	for name, f := range opts.Backends {
		factories[name] = f
	}
	return &Gateway{
		source:    opts.Source,
		logger:    logger,
		factories: factories,
		limiters:  make(map[string]*rate.Limiter),
		rpm:       rpm,
	}
}

// Chat resolves the provider, applies the per-provider rate limit, and issues
// the completion with provider-level retry per the configured policy.
func (g *Gateway) Chat(ctx context.Context, req model.Request) (*model.Response, error) {
	cfg := g.source.Snapshot()
	if req.Provider == "" {
		req.Provider = cfg.DefaultProvider
	}
	if req.Model == "" {
		req.Model = cfg.DefaultModel
	}
	factory, ok := g.factories[req.Provider]
	if !ok {
		return nil, floerr.Newf(floerr.KindProviderUnconfigured, "unsupported provider %q", req.Provider)
	}
	backend, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if limiter := g.limiter(req.Provider); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, floerr.Wrap(floerr.KindCancelled, "rate limit wait aborted", err)
		}
	}

	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			g.logger.Warn(ctx, "retrying provider call",
				"provider", req.Provider, "attempt", attempt, "cause", lastErr.Error())
			select {
			case <-ctx.Done():
				return nil, floerr.Wrap(floerr.KindCancelled, "chat aborted", ctx.Err())
			case <-time.After(cfg.RetryDelay()):
			}
		}
		resp, err := backend.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

// retryable reports whether a provider failure is worth retrying. Missing
// credentials and cancellation never are.
func retryable(err error) bool {
	switch floerr.KindOf(err) {
	case floerr.KindProviderError, floerr.KindProviderTimeout:
		return true
	default:
		return false
	}
}

// Refresh re-reads the configuration so rotated credentials take effect on
// the next call.
func (g *Gateway) Refresh(ctx context.Context) error {
	if err := g.source.Refresh(); err != nil {
		return err
	}
	g.logger.Debug(ctx, "configuration refreshed")
	return nil
}

// Providers lists the providers the gateway can route to, with whether each
// currently has credential material.
func (g *Gateway) Providers() json.RawMessage {
	cfg := g.source.Snapshot()
	status := make(map[string]bool, len(g.factories))
	for name := range g.factories {
		if name == "ollama" {
			status[name] = true
			continue
		}
		status[name] = cfg.APIKey(name) != ""
	}
	doc, _ := json.Marshal(status)
	return doc
}

func (g *Gateway) limiter(provider string) *rate.Limiter {
	if g.rpm < 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.rpm/60.0), 1)
		g.limiters[provider] = l
	}
	return l
}
