package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"apex-preview/internal/cache"
	"apex-preview/internal/config"
	"apex-preview/internal/handlers"
	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
	"apex-preview/internal/middleware"
	"apex-preview/internal/parser"
	"apex-preview/internal/preview"
	"apex-preview/internal/publish"
	"apex-preview/internal/sandbox"
	"apex-preview/internal/store"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preview HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, c *config.Config) error {
	log := logging.Named("server")
	m := metrics.Get()
	m.SetBuildInfo(version, commit, buildDate)

	tiered := cache.NewTiered(cacheConfig(c))
	defer tiered.Close()
	service := newService(c, tiered)

	stack, err := preview.NewStack(preview.FactoryConfig{
		Strategy: c.Preview.Strategy,
		BaseURL:  c.Preview.BaseURL,
		Secret:   c.Preview.Secret,
		LinkTTL:  c.Preview.LinkTTL,
		Service:  service,
		WorkDir:  c.DevServe.WorkDir,

		PreviousSecret: c.Preview.PreviousSecret,
		DevServer: sandbox.DevServerConfig{
			InstallCmd: c.DevServe.InstallCmd,
			DevCmd:     c.DevServe.DevCmd,
			ReadyWait:  c.DevServe.ReadyWait,
		},
		CheckOrigin: originChecker(c.AllowedOrigins),
	})
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	defer stack.Shutdown()

	// An empty DATABASE_URL disables project persistence.
	var st *store.Store
	if c.DatabaseURL != "" {
		st, err = store.Open(c.DatabaseURL, cache.NewProjectCache(tiered))
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		defer st.Close()
	}

	pub, err := publish.New(ctx, c.Publish)
	if err != nil {
		log.Warn("publishing disabled", zap.Error(err))
		pub = nil
	}

	limiter := middleware.NewIPRateLimiter(c.Limits.RequestsPerMinute, c.Limits.Burst)
	defer limiter.Stop()

	h := handlers.NewHandler(parser.New(), service, stack, st, pub)
	if tiered.HasRedis() {
		h.Redis = tiered
	}
	router := newRouter(c, h, limiter)

	collector := metrics.NewCollector(15 * time.Second)
	collector.Start()
	defer collector.Stop()

	srv := &http.Server{
		Addr:              ":" + c.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	log.Info("preview service started",
		zap.String("port", c.Port),
		zap.String("environment", c.Environment),
		zap.String("strategy", stack.Host.Strategy().Name()),
		zap.Bool("redis", tiered.HasRedis()),
		zap.Bool("persistence", st != nil),
		zap.Bool("publishing", pub != nil))

	select {
	case err := <-serverErrors:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	// Reload sockets are hijacked and outlive Shutdown; close them first.
	stack.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

func newRouter(c *config.Config, h *handlers.Handler, limiter *middleware.IPRateLimiter) *gin.Engine {
	if c.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger("/health", "/metrics"),
		middleware.CORS(c.AllowedOrigins),
		metrics.PrometheusMiddleware(),
		middleware.RateLimit(limiter),
		middleware.SecurityHeaders(),
	)

	cdn := []string{c.Bundle.ReactURL, c.Bundle.ReactDOMURL, c.Bundle.BabelURL}
	h.RegisterRoutes(router, middleware.PreviewHeaders(cdn))
	return router
}

// originChecker guards the reload websocket with the CORS allow list.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
