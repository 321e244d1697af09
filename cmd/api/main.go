package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-bundles/internal/api"
	"github.com/noah-isme/toko-bundles/internal/app"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/health"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/queue"
	"github.com/noah-isme/toko-bundles/internal/ratelimit"
	"github.com/noah-isme/toko-bundles/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("shop", cfg.StoreDomain).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "bundles")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	queue.RegisterMetrics(prometheus.DefaultRegisterer)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "toko-bundles-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisClient, err := app.NewRedis(ctx, cfg, logger, metricsEnabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}

	var (
		enqueuer  *queue.Enqueuer
		inspector *asynq.Inspector
	)
	opts := app.Options{Redis: redisClient, InstrumentMetrics: metricsEnabled}
	if redisClient != nil {
		taskClient := asynq.NewClientFromRedisClient(redisClient)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		inspector = asynq.NewInspectorFromRedisClient(redisClient)
		enqueuer = &queue.Enqueuer{
			Client:    taskClient,
			Queue:     queue.DefaultQueue,
			Timeout:   envDurationMillis("QUEUE_TASK_TIMEOUT_MS", 30000),
			Retention: envDurationMillis("QUEUE_TASK_RETENTION_MS", 60000),
		}
		opts.Enqueuer = enqueuer
	} else {
		logger.Warn().Msg("redis not configured: using in-process cache, refresh runs inline")
	}

	deps, err := app.Build(ctx, cfg, logger, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise bundle services")
	}
	if restored, err := deps.RestoreCache(cfg.CacheSnapshotPath); err != nil {
		logger.Error().Err(err).Str("path", cfg.CacheSnapshotPath).Msg("restore cache snapshot")
	} else if restored {
		logger.Info().Str("path", cfg.CacheSnapshotPath).Msg("cache snapshot restored")
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var idem func(http.Handler) http.Handler
	if redisClient != nil {
		idem = common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: cfg.CachePrefix}.Middleware
	} else {
		idem = common.Idem{}.Middleware
	}
	bundleHandler := api.NewHandler(api.HandlerConfig{Service: deps.Service, Idempotency: idem, Logger: &logger})

	var limiter ratelimit.Limiter
	if redisClient != nil && cfg.RateLimitPerMinute > 0 {
		if envOrDefault("RATE_LIMIT_STRATEGY", "sliding") == "fixed" {
			fixed, err := ratelimit.NewFixed(redisClient, cfg.CachePrefix+"rl:", time.Minute, cfg.RateLimitPerMinute)
			if err != nil {
				logger.Fatal().Err(err).Msg("initialise rate limiter")
			}
			limiter = fixed
		} else {
			limiter = ratelimit.SlidingWindow{
				Client: redisClient,
				Prefix: cfg.CachePrefix + "rl:",
				Window: time.Minute,
				Max:    cfg.RateLimitPerMinute,
			}
		}
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Key:     ratelimit.KeyByShopAndIP,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                envBool("SECURITY_HEADERS_ENABLE", true),
		EnableHSTS:            envBool("SECURITY_HSTS_ENABLE", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURITY_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURITY_HSTS_INCLUDE_SUBDOMAINS", false),
		NoStorePrefixes:       []string{"/api/", "/admin/"},
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURITY_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Shop-Domain", common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:         health.Deps{Upstream: deps.Storefront, Redis: redisClient},
		UpstreamTimeout: envDurationMillis("HEALTH_READY_UPSTREAM_TIMEOUT_MS", 2000),
		RedisTimeout:    envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.With(rateLimit.Middleware).Mount("/api/v1", bundleHandler.Routes())

	if inspector != nil {
		adminUser := envOrDefault("ADMIN_BASIC_AUTH_USER", "")
		adminPass := envOrDefault("ADMIN_BASIC_AUTH_PASS", "")
		queueAdmin := queue.AdminHandler{Inspector: inspector, Queue: queue.DefaultQueue, Logger: logger}
		r.Route("/admin/queue", func(a chi.Router) {
			a.Use(func(next http.Handler) http.Handler { return protectPprof(next, adminUser, adminPass) })
			a.Get("/stats", queueAdmin.Stats)
			a.Get("/archived", queueAdmin.ListArchived)
			a.Post("/archived/replay", queueAdmin.ReplayArchived)
		})
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-sigCtx.Done()
		health.SetReady(false)
		grace := envDurationMillis("SHUTDOWN_GRACE_MS", 10000)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		logger.Info().Dur("grace", grace).Msg("server draining")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Bool("hosted_backend", cfg.Store.UsesHostedBackend()).
		Bool("redis", redisClient != nil).
		Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	<-drained
	if err := deps.SnapshotCache(cfg.CacheSnapshotPath); err != nil {
		logger.Error().Err(err).Str("path", cfg.CacheSnapshotPath).Msg("write cache snapshot")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

// protectPprof guards handler with basic auth when user is set.
func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
