package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpmw "github.com/smartsports/sportsgate/middleware/http"
	"github.com/smartsports/sportsgate/pkg/api"
	"github.com/smartsports/sportsgate/pkg/config"
	"github.com/smartsports/sportsgate/pkg/sportsgate"
	"github.com/smartsports/sportsgate/pkg/sportsgate/breaker/gobreaker"
	prommetrics "github.com/smartsports/sportsgate/pkg/sportsgate/metrics/prometheus"
	"github.com/smartsports/sportsgate/upstream/apisports"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			gw, err := newGateway(ctx, cfg, logger, prommetrics.NewMetrics(reg, "sportsgate"))
			if err != nil {
				return err
			}
			defer gw.close()

			router, err := gw.router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err != nil {
				return err
			}
			return serve(ctx, &http.Server{
				Addr:              cfg.Listen,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}, logger)
		},
	}
}

// gateway holds the long-lived singletons shared by every request.
type gateway struct {
	cache   *sportsgate.LRUCache
	tracker *sportsgate.BudgetTracker
	fetcher *sportsgate.Fetcher
	store   *ledgerStore
	logger  sportsgate.Logger
}

func newGateway(ctx context.Context, cfg *config.Config, logger sportsgate.Logger, metrics sportsgate.Metrics) (*gateway, error) {
	store, err := openLedgerStore(ctx, cfg.Budget.Ledger, logger)
	if err != nil {
		return nil, err
	}
	tracker, err := newTracker(ctx, cfg, store.LedgerStore, logger, metrics)
	if err != nil {
		store.close()
		return nil, err
	}

	client, err := apisports.New(apisports.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		APIKey:      cfg.Upstream.APIKey,
		RapidAPI:    cfg.Upstream.RapidAPI,
		Timeout:     cfg.Upstream.Timeout,
		MaxAttempts: cfg.Upstream.MaxAttempts,
		RetryDelay:  cfg.Upstream.RetryDelay,
		Logger:      logger,
	})
	if err != nil {
		store.close()
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	cache := sportsgate.NewLRUCache(sportsgate.CacheConfig{
		MaxEntries:      cfg.Cache.MaxEntries,
		EvictionBatch:   cfg.Cache.EvictionBatch,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Logger:          logger,
		Metrics:         metrics,
	})

	fc := &sportsgate.FetcherConfig{
		TTLs:           cfg.CategoryTTLs(),
		FormMatches:    cfg.Fetcher.FormMatches,
		FetchTimeout:   cfg.Fetcher.FetchTimeout,
		RequestTimeout: cfg.Fetcher.RequestTimeout,
		Resolver:       client,
		Logger:         logger,
		Metrics:        metrics,
	}
	if cfg.Breaker.Enabled {
		fc.CircuitBreaker = newBreaker(cfg.Breaker, logger, metrics)
	}
	fetcher, err := sportsgate.NewFetcher(client, cache, tracker, fc)
	if err != nil {
		store.close()
		return nil, err
	}

	return &gateway{cache: cache, tracker: tracker, fetcher: fetcher, store: store, logger: logger}, nil
}

func newBreaker(cfg config.BreakerConfig, logger sportsgate.Logger, metrics sportsgate.Metrics) sportsgate.CircuitBreaker {
	if cfg.Kind == config.BreakerBuiltin {
		return sportsgate.NewDefaultCircuitBreaker(cfg.ConsecutiveFailures, cfg.OpenTimeout,
			func(state sportsgate.CircuitBreakerState) {
				if metrics != nil {
					metrics.RecordCircuitBreakerStateChange(string(state))
				}
				logger.Warn("upstream circuit breaker state changed", sportsgate.Field{Key: "to", Value: string(state)})
			})
	}
	return gobreaker.New(gobreaker.Config{
		ConsecutiveFailures: uint32(cfg.ConsecutiveFailures),
		OpenTimeout:         cfg.OpenTimeout,
		Metrics:             metrics,
		Logger:              logger,
	})
}

func (g *gateway) close() {
	g.store.close()
}

// router mounts the API behind the tier middleware, with metrics alongside.
func (g *gateway) router(metrics http.Handler) (http.Handler, error) {
	h, err := api.NewHandler(api.Config{
		Budget:  g.tracker,
		Cache:   g.cache,
		Fetcher: g.fetcher,
		Logger:  g.logger,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Handle("/metrics", metrics)
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Middleware(httpmw.Config{
			Budget: g.tracker,
			OnDowngrade: func(_ http.ResponseWriter, r *http.Request, d sportsgate.RequestTierDecision) {
				g.logger.Info("premium request downgraded",
					sportsgate.Field{Key: "path", Value: r.URL.Path},
					sportsgate.Field{Key: "requested", Value: string(d.Requested)},
				)
			},
		}))
		r.Mount("/", h.Routes())
	})
	return r, nil
}

func serve(ctx context.Context, srv *http.Server, logger sportsgate.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("sportsgate listening", sportsgate.Field{Key: "addr", Value: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
