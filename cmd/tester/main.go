// cmd/tester/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	api "eol-tester/internal/api/http"
	"eol-tester/internal/config"
	"eol-tester/internal/configsvc"
	"eol-tester/internal/domain"
	"eol-tester/internal/evaluation"
	"eol-tester/internal/infra/etcd"
	"eol-tester/internal/infra/memory"
	"eol-tester/internal/infra/mes"
	"eol-tester/internal/infra/simulated"
	"eol-tester/internal/metrics"
	"eol-tester/internal/recovery"
	"eol-tester/internal/scheduler"
	"eol-tester/internal/tracing"
	"eol-tester/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Init logger, config, tracing
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracer, err := tracing.InitTracer("eol-tester")
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metrics.Register()

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 3. Test repository: etcd when endpoints are configured, in-memory otherwise
	var repo domain.TestRepository
	if len(cfg.EtcdEndpoints) > 0 {
		etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			log.Fatalf("Failed to create etcd client: %v", err)
		}
		defer etcdClient.Close()
		repo = etcd.NewEtcdTestRepository(etcdClient, logger)
		log.Println("Connected to etcd.")
	} else {
		repo = memory.NewTestRepository()
		log.Println("No etcd endpoints configured, using in-memory test repository.")
	}

	// 4. Hardware: the simulated station
	facade := simulated.NewFacade(logger)
	estop := simulated.NewEmergencyStop(facade, logger)

	// 5. MES notifier
	var notifier domain.MESNotifier = mes.NopNotifier{}
	if cfg.MESBaseURL != "" {
		notifier = mes.NewHTTPNotifier(cfg.MESBaseURL, logger)
	}

	// 6. Configuration service and validator
	configService := configsvc.NewService(cfg.ProfilesDir, logger)
	configValidator := configsvc.NewValidator()

	// 7. Recovery handler with facade-bound strategies
	handler := recovery.NewHandler(logger)
	hwConfig := func(ctx context.Context) *domain.HardwareConfig {
		hw, err := configService.LoadHardwareConfiguration(ctx)
		if err != nil {
			return nil
		}
		return hw
	}
	handler.RegisterStrategy(recovery.StrategyReconnectHardware, func(ctx context.Context, cause error) error {
		return facade.ConnectAll(ctx, hwConfig(ctx))
	})
	handler.RegisterStrategy(recovery.StrategyEmergencyStop, func(ctx context.Context, cause error) error {
		return estop.ExecuteEmergencyStop(ctx)
	})
	handler.RegisterStrategy(recovery.StrategySafeShutdown, func(ctx context.Context, cause error) error {
		if err := facade.PowerOff(ctx); err != nil {
			return err
		}
		return facade.Shutdown(ctx)
	})
	if cfg.HardwareRetryAttempts > 0 {
		if rule, ok := handler.Rule(domain.KindHardwareConnection); ok {
			rule.MaxRetryAttempts = cfg.HardwareRetryAttempts
			handler.SetRule(domain.KindHardwareConnection, rule)
		}
	}

	// 8. Use-case services and the orchestrator
	loader := usecase.NewConfigLoader(configService, configValidator, logger)
	factory := usecase.NewEntityFactory(repo, logger)
	executor := usecase.NewHardwareExecutor(facade, logger)
	stateMgr := usecase.NewStateManager(repo, logger)
	resultEval := usecase.NewResultEvaluator(evaluation.NewEvaluator(logger), logger)

	orchestrator := usecase.NewOrchestrator(
		loader, factory, executor, stateMgr, resultEval,
		handler, facade, estop, notifier, logger,
	)

	// 9. Hardware health-check scheduler
	healthSched := scheduler.NewHealthScheduler(facade, orchestrator.IsRunning, logger)
	if err := healthSched.Schedule(cfg.HealthCheckSchedule); err != nil {
		log.Fatalf("Failed to schedule health check: %v", err)
	}
	go func() {
		if err := healthSched.Start(rootCtx); err != nil && rootCtx.Err() == nil {
			logger.Error("health scheduler stopped unexpectedly", "error", err)
		}
	}()

	// 10. HTTP API
	mux := http.NewServeMux()
	testHandler := api.NewTestHandler(orchestrator, repo, configService, logger)
	testHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 11. Block until shutdown signal
	<-rootCtx.Done()
	log.Println("Shutting down station gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	log.Println("Station shut down.")
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v. Initiating graceful shutdown...", sig)
		cancel()
	}()
}
