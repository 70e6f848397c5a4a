package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/meridian-ai/agentcore/pkg/breaker"
	"github.com/meridian-ai/agentcore/pkg/cache"
	"github.com/meridian-ai/agentcore/pkg/config"
	"github.com/meridian-ai/agentcore/pkg/credential"
	"github.com/meridian-ai/agentcore/pkg/domain"
	"github.com/meridian-ai/agentcore/pkg/gateway"
	"github.com/meridian-ai/agentcore/pkg/llmservice"
	"github.com/meridian-ai/agentcore/pkg/memory/meta"
	"github.com/meridian-ai/agentcore/pkg/metrics"
	"github.com/meridian-ai/agentcore/pkg/orchestrator"
	"github.com/meridian-ai/agentcore/pkg/providers"
	"github.com/meridian-ai/agentcore/pkg/providers/anthropic"
	"github.com/meridian-ai/agentcore/pkg/providers/gemini"
	"github.com/meridian-ai/agentcore/pkg/providers/openai"
	"github.com/meridian-ai/agentcore/pkg/ratelimit"
	"github.com/meridian-ai/agentcore/pkg/sandbox/docker"
	"github.com/meridian-ai/agentcore/pkg/tools"
)

// newServeCmd wires the orchestration core and starts the gateway server,
// following the teacher's cmd/operative/main.go composition: slog setup,
// env-driven construction of every collaborator, background goroutines for
// long-running loops, and a single blocking serve call in the foreground.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration core and websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides AGENTCORE_PORT")

	return cmd
}

func runServe(ctx context.Context, addr string) error {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	cfg := config.Load()
	if addr == "" {
		addr = ":" + strconv.Itoa(cfg.Port)
	}

	creds := newCredentialProvider(cfg)

	models, adapters := registerModels(ctx, creds)

	buckets := ratelimit.NewRegistry()
	buckets.Configure("gemini", cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond/1000)
	buckets.Configure("anthropic", cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond/1000)
	buckets.Configure("openai", cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond/1000)

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		MonitoringPeriod: cfg.Breaker.MonitoringPeriod,
	})

	respCache := cache.New(cache.Config{
		Enabled:       cfg.Cache.Enabled,
		TTL:           cfg.Cache.TTL,
		MaxSize:       cfg.Cache.MaxSize,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer respCache.Close()

	negotiator := tools.NewNegotiator()

	svc := llmservice.New(models, adapters, buckets, breakers, respCache, negotiator)
	svc.OnFallback(func(from, to string) {
		slog.Info("model fallback", "from", from, "to", to)
		metrics.ModelFallbacks.WithLabelValues(from, to).Inc()
	})

	metaMemory := meta.New()
	orch := orchestrator.New(svc, metaMemory, breakers)
	gw := gateway.New(orch)

	sbMgr, err := docker.New()
	if err != nil {
		slog.Warn("sandbox manager unavailable, tool execution sandbox disabled", "error", err)
	} else {
		defer sbMgr.Close()
		go func() {
			if err := sbMgr.Run(ctx, gw); err != nil && ctx.Err() == nil {
				slog.Error("sandbox manager stopped", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		gw.ServeHTTP(w, r, r.URL.Query().Get("user_id"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("agentcore listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-serveCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// newCredentialProvider selects the credential backend per cfg.
// CredentialBackend "file" requires AGENTCORE_CREDENTIAL_SECRET and an
// encrypted file at AGENTCORE_CREDENTIAL_FILE; anything else falls back to
// resolving credential refs as AGENTCORE_CRED_-prefixed environment variable
// names.
func newCredentialProvider(cfg *config.Config) credential.Provider {
	if cfg.CredentialBackend != "file" {
		return credential.EnvProvider{}
	}
	path := os.Getenv("AGENTCORE_CREDENTIAL_FILE")
	fp, err := credential.NewFileProvider(path, cfg.CredentialSecret)
	if err != nil {
		slog.Error("failed to load encrypted credential file, falling back to env", "error", err)
		return credential.EnvProvider{}
	}
	return fp
}

// registerModels builds the provider adapter registry and a model registry
// seeded with one logical model per configured provider, each falling back
// to the next. Providers whose credential ref cannot be resolved are simply
// skipped, matching the teacher's "exit only if the one provider it needs is
// missing" check generalized to "register whichever providers are
// available."
func registerModels(ctx context.Context, creds credential.Provider) (*llmservice.ModelRegistry, *providers.Registry) {
	adapters := providers.NewRegistry()
	models := llmservice.NewModelRegistry()

	if key, err := creds.Resolve("GEMINI_API_KEY"); err == nil {
		if a, err := gemini.New(ctx, key); err == nil {
			adapters.Register(a)
			models.Register(domain.ModelConfig{
				Model: "gemini-2.0-flash", Provider: "gemini",
				APIName: "gemini-2.0-flash", ContextWindowTokens: 1_000_000,
			})
		} else {
			slog.Warn("gemini provider unavailable", "error", err)
		}
	}

	if key, err := creds.Resolve("ANTHROPIC_API_KEY"); err == nil {
		adapters.Register(anthropic.New(key))
		models.Register(domain.ModelConfig{
			Model: "claude-sonnet-4", Provider: "anthropic",
			APIName: "claude-sonnet-4-20250514", ContextWindowTokens: 200_000,
		})
	}

	if key, err := creds.Resolve("OPENAI_API_KEY"); err == nil {
		adapters.Register(openai.New(key, os.Getenv("OPENAI_BASE_URL")))
		models.Register(domain.ModelConfig{
			Model: "gpt-4o", Provider: "openai",
			APIName: "gpt-4o", ContextWindowTokens: 128_000,
		})
	}

	models.SetFallbackChain("gemini-2.0-flash", "claude-sonnet-4", "gpt-4o")
	models.SetFallbackChain("claude-sonnet-4", "gpt-4o", "gemini-2.0-flash")
	models.SetFallbackChain("gpt-4o", "claude-sonnet-4", "gemini-2.0-flash")

	return models, adapters
}

