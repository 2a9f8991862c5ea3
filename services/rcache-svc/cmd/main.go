// Command rcache-svc owns the shared response cache: it serves the
// Control Plane REST surface (switches, quota, invalidation, status,
// report export), the Config Queries surface coordinator-svc dials, and
// runs the Invalidator/Precomputer/Averager background loops against the
// same Postgres database coordinator-svc's Rcache Store client reads and
// writes directly. Grounded on gateway-svc's cmd/main.go wiring shape,
// re-pointed at rcache-svc's REST-only ingress (no gRPC business surface,
// only the health-only GRPCServer coordinator-svc's siblings also run).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"afc-coordinator/pkg/audit"
	"afc-coordinator/pkg/config"
	"afc-coordinator/pkg/database"
	"afc-coordinator/pkg/dispatchhistory"
	"afc-coordinator/pkg/healthstate"
	"afc-coordinator/pkg/httpmw"
	"afc-coordinator/pkg/logger"
	"afc-coordinator/pkg/ratelimit"
	"afc-coordinator/pkg/rcache"
	"afc-coordinator/pkg/report"
	"afc-coordinator/pkg/server"
	"afc-coordinator/services/rcache-svc/internal/configapi"
	"afc-coordinator/services/rcache-svc/internal/configstore"
	"afc-coordinator/services/rcache-svc/internal/controlplane"
	"afc-coordinator/services/rcache-svc/internal/precompute"
)

const serviceName = "rcache-svc"

func main() {
	cfg, err := config.LoadWithServiceDefaults(serviceName, 50062)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rcache-svc: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Log.Error("rcache-svc: failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrationsFS, "migrations"); err != nil {
		logger.Log.Error("rcache-svc: migrations failed", "error", err)
		os.Exit(1)
	}

	store := rcache.NewPostgresStore(db)
	configs := configstore.New(db)
	health := healthstate.New()

	invalidator := rcache.NewInvalidator(store, maxMaxLinkDistanceKM(configs), health)
	go invalidator.Run(ctx)
	defer invalidator.Close()

	precomputeClient := precompute.New(
		"http://"+cfg.Services.Coordinator.Address()+"/inquiry",
		cfg.Services.Coordinator.Timeout,
	)
	precomputer := rcache.NewPrecomputer(store, precomputeClient.Compute, cfg.Rcache.PrecomputeQuota, health)
	go precomputer.Run(ctx, time.Second)
	defer precomputer.Close()

	averager := rcache.NewAverager(store, health, nil, precomputer.Count, nil)
	go averager.Run(ctx)
	defer averager.Close()

	historyRepo := dispatchhistory.NewPostgresRepository(db)

	controlplaneHandler := controlplane.New(
		store, invalidator, precomputer, averager, health, historyRepo,
		map[string]report.Generator{
			"xlsx": report.NewExcelGenerator(),
			"pdf":  report.NewPDFGenerator(),
		},
	)
	configapiHandler := configapi.New(configs)

	runHTTPServer(cfg, controlplaneHandler, configapiHandler)

	grpcServer := server.NewWithOptions(cfg, &server.ServerOptions{
		AuditLogger: audit.Get(),
	})
	if err := grpcServer.Run(); err != nil {
		logger.Log.Error("rcache-svc: grpc server exited with error", "error", err)
		os.Exit(1)
	}
}

func runHTTPServer(cfg *config.Config, controlplaneHandler *controlplane.Handler, configapiHandler *configapi.Handler) {
	mux := http.NewServeMux()
	controlplaneHandler.Register(mux)
	configapiHandler.Register(mux)

	limiter, err := ratelimit.New(&ratelimit.Config{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
		Backend:  cfg.RateLimit.Backend,
	})
	if err != nil {
		logger.Log.Error("rcache-svc: failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	chain := httpmw.Chain(
		httpmw.Logging(),
		httpmw.Metrics(nil),
		httpmw.RateLimit(limiter, nil),
		httpmw.Audit(&httpmw.AuditConfig{ServiceName: serviceName}),
	)

	var rootHandler http.Handler = chain(mux)
	if cfg.HTTP.CORS.Enabled {
		rootHandler = httpmw.CORS(cfg.HTTP.CORS)(rootHandler)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      rootHandler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Log.Info("rcache-svc: starting control plane HTTP server", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("rcache-svc: http server failed", "error", err)
		}
	}()

	go shutdownHTTPOnSignal(httpServer, cfg.HTTP.ShutdownTimeout)
}

// shutdownHTTPOnSignal closes httpServer on SIGINT/SIGTERM, independent of
// pkg/server.GRPCServer.Run's own signal handling for the health server.
func shutdownHTTPOnSignal(httpServer *http.Server, timeout time.Duration) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Log.Warn("rcache-svc: http server shutdown error", "error", err)
	}
}

// maxMaxLinkDistanceKM returns a func reporting the largest
// MaxLinkDistanceKM across every known ruleset's config, falling back to
// rcache.DefaultMaxMaxLinkDistanceKM if none can be read.
func maxMaxLinkDistanceKM(configs *configstore.Store) func(ctx context.Context) float64 {
	return func(ctx context.Context) float64 {
		ids, err := configs.RulesetIDs(ctx)
		if err != nil || len(ids) == 0 {
			return rcache.DefaultMaxMaxLinkDistanceKM
		}

		maxKM := 0.0
		for _, id := range ids {
			cfg, err := configs.Config(ctx, id)
			if err != nil || cfg == nil {
				continue
			}
			if cfg.MaxLinkDistanceKM > maxKM {
				maxKM = cfg.MaxLinkDistanceKM
			}
		}
		if maxKM == 0 {
			return rcache.DefaultMaxMaxLinkDistanceKM
		}
		return maxKM
	}
}
