package resilience

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OutboundConfig describes one upstream dependency.
type OutboundConfig struct {
	Target          string
	Timeout         time.Duration
	MaxAttempts     int
	BaseBackoff     time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	Logger          zerolog.Logger
	// Transport overrides the default transport. Tests pass httptest clients' transports.
	Transport http.RoundTripper
}

// NewOutbound builds a traced, retrying client with its own breaker.
func NewOutbound(cfg OutboundConfig) HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger.With().Str("target", cfg.Target).Logger()
	breaker := NewBreaker(cfg.BreakerFailures, 0.5, cfg.BreakerCooldown).
		WithTarget(cfg.Target).
		WithLogger(logger)
	return HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(base)},
		Breaker:     breaker,
		Target:      cfg.Target,
		BaseBackoff: cfg.BaseBackoff,
		MaxAttempts: cfg.MaxAttempts,
		Jitter:      0.2,
		Timeout:     cfg.Timeout,
		Logger:      &logger,
	}
}
