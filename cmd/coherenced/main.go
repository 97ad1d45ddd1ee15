package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/regenloop/coherence-engine/internal/config"
	"github.com/regenloop/coherence-engine/internal/driver"
	"github.com/regenloop/coherence-engine/internal/escalate"
	"github.com/regenloop/coherence-engine/internal/gates"
	"github.com/regenloop/coherence-engine/internal/ledger"
	"github.com/regenloop/coherence-engine/internal/server"
)

// coherenceFloor is the minimum recorded coherence demanded before the
// understanding phase may complete.
const coherenceFloor = 0.5

// #region main

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("coherenced exited", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}

	trail, err := ledger.New(context.Background(), backend)
	if err != nil {
		return fmt.Errorf("open trail: %w", err)
	}
	defer trail.Close()

	notifier, cleanup, err := buildNotifier(cfg.Escalation, logger)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	defer cleanup()

	machine := gates.NewMachine(trail, notifier, logger)
	machine.Register(gates.PhaseUnderstanding,
		gates.RequireCoherentEntry(trail, coherenceFloor))
	machine.Register(gates.PhaseKnowledge,
		gates.RequirePriorPass(trail, gates.PhaseUnderstanding, gates.PhaseKnowledge))
	machine.Register(gates.PhaseIntention,
		gates.RequirePriorPass(trail, gates.PhaseKnowledge, gates.PhaseIntention))
	machine.Register(gates.PhaseExecution,
		gates.RequirePriorPass(trail, gates.PhaseIntention, gates.PhaseExecution))
	machine.Register(gates.PhaseLearning,
		gates.RequirePriorPass(trail, gates.PhaseExecution, gates.PhaseLearning))

	srv := server.New(trail, machine, server.Options{
		Thresholds: cfg.Thresholds,
		Recursion: driver.Config{
			Target:        cfg.Recursion.Target,
			MaxIterations: cfg.Recursion.MaxIterations,
			Window:        cfg.Recursion.Window,
			RecordRuns:    true,
		},
		AuthToken: cfg.Server.AuthToken,
	}, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coherence engine listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("backend", cfg.Storage.Backend),
			zap.String("path", cfg.Storage.Path))
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// #endregion main

// #region wiring

func openBackend(cfg config.StorageConfig) (ledger.Backend, error) {
	switch cfg.Backend {
	case "jsonl":
		return ledger.NewJSONLBackend(cfg.Path)
	default:
		return ledger.NewSQLiteBackend(cfg.Path)
	}
}

func buildNotifier(cfg config.EscalationConfig, logger *zap.Logger) (escalate.Notifier, func(), error) {
	if cfg.NATSURL == "" {
		return escalate.NewLogNotifier(logger), func() {}, nil
	}
	n, err := escalate.NewNATSNotifier(cfg.NATSURL, cfg.Subject, logger)
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}

// #endregion wiring
