// Command coordinator-svc is the ingress for AFC Inquiry Requests: it
// runs the HTTP JSON entry point (the Message-Processor Shell and
// Request Coordinator) alongside a health-only gRPC server, so
// orchestrators and peer-service dialers get a uniform liveness probe
// regardless of which protocol actually carries business traffic.
// Grounded on gateway-svc's cmd/main.go shutdown shape, re-expressed
// against pkg/server.GRPCServer's blocking, self-contained Run().
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/audit"
	"afc-coordinator/pkg/bus"
	"afc-coordinator/pkg/cache"
	"afc-coordinator/pkg/certauth"
	"afc-coordinator/pkg/config"
	"afc-coordinator/pkg/configdispenser"
	"afc-coordinator/pkg/database"
	"afc-coordinator/pkg/dispatchhistory"
	"afc-coordinator/pkg/httpmw"
	"afc-coordinator/pkg/logger"
	"afc-coordinator/pkg/objstore"
	"afc-coordinator/pkg/ratelimit"
	"afc-coordinator/pkg/rcache"
	"afc-coordinator/pkg/server"
	"afc-coordinator/pkg/taskqueue"
	"afc-coordinator/pkg/workerpool"
	"afc-coordinator/services/coordinator-svc/internal/configclient"
	"afc-coordinator/services/coordinator-svc/internal/coordinator"
	"afc-coordinator/services/coordinator-svc/internal/ingress"
	"afc-coordinator/services/coordinator-svc/internal/shell"
)

const serviceName = "coordinator-svc"

func main() {
	cfg, err := config.LoadWithServiceDefaults(serviceName, 50061)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinator-svc: failed to load config: %v\n", err)
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
		logger.Log.Error("coordinator-svc: failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrationsFS, "migrations"); err != nil {
		logger.Log.Error("coordinator-svc: migrations failed", "error", err)
		os.Exit(1)
	}

	store := rcache.NewPostgresStore(db)
	certRepo := certauth.NewPostgresRepository(db)
	authorizer := certauth.New(certRepo)
	historyRepo := dispatchhistory.NewPostgresRepository(db)

	configHTTP := configclient.New(
		"http://"+cfg.Services.Rcache.Address(),
		cfg.Services.Rcache.Timeout,
	)
	configCache, err := cache.New(&cache.Options{
		Backend:    cfg.Cache.Driver,
		RedisAddr:  cfg.Cache.Address(),
		DefaultTTL: cfg.Cache.DefaultTTL,
	})
	if err != nil {
		logger.Log.Error("coordinator-svc: failed to build config cache", "error", err)
		os.Exit(1)
	}
	configs := configdispenser.New(configHTTP, configCache, configdispenser.DefaultTTL)

	correlator, err := bus.Dial(cfg.Bus.URL)
	if err != nil {
		logger.Log.Error("coordinator-svc: failed to dial dispatch bus", "error", err)
		os.Exit(1)
	}
	defer correlator.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.TaskQueue.RedisAddr})
	tasks := taskqueue.New(redisClient, cfg.TaskQueue.ResultTTL, cfg.TaskQueue.BlockPeriod)

	objects, err := objstore.NewFilesystemStore(cfg.ObjectStore.HistoryDir)
	if err != nil {
		logger.Log.Error("coordinator-svc: failed to open history object store", "error", err)
		os.Exit(1)
	}

	pool := workerpool.New(cfg.Coordinator.WorkerPoolSize, cfg.Coordinator.WorkerQueueLen)
	defer pool.Close()

	rules := afcmodels.NewVendorExtensionRules(nil)

	coord := coordinator.New(
		authorizer,
		configs,
		store,
		correlator,
		tasks,
		objects,
		historyRepo,
		pool,
		rules,
		coordinator.Deadlines{
			Normal: cfg.Coordinator.DeadlineNormal,
			Edebug: cfg.Coordinator.DeadlineEdebug,
		},
		correlator.QueueName(),
		cfg.Coordinator.Mntroot,
		cfg.Coordinator.RequestType,
	)
	msgShell := shell.New(coord, rules)

	runHTTPIngress(cfg, msgShell)

	grpcServer := server.NewWithOptions(cfg, &server.ServerOptions{
		AuditLogger: audit.Get(),
	})
	if err := grpcServer.Run(); err != nil {
		logger.Log.Error("coordinator-svc: grpc server exited with error", "error", err)
		os.Exit(1)
	}
}

func runHTTPIngress(cfg *config.Config, msgShell *shell.Shell) {
	handler := ingress.New(msgShell)

	mux := http.NewServeMux()
	mux.Handle("/inquiry", handler)

	limiter, err := ratelimit.New(&ratelimit.Config{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
		Backend:  cfg.RateLimit.Backend,
	})
	if err != nil {
		logger.Log.Error("coordinator-svc: failed to build rate limiter", "error", err)
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
		logger.Log.Info("coordinator-svc: starting HTTP ingress", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("coordinator-svc: http ingress failed", "error", err)
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
		logger.Log.Warn("coordinator-svc: http ingress shutdown error", "error", err)
	}
}
