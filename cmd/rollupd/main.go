package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/treeline/rollup/internal/config"
	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/ledger"
	"github.com/treeline/rollup/internal/domain/publisher"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/domain/worker"
	"github.com/treeline/rollup/internal/engine"
	"github.com/treeline/rollup/internal/formula"
	"github.com/treeline/rollup/internal/predicate"
	"github.com/treeline/rollup/internal/sqlite"
	"github.com/treeline/rollup/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	tenantRepo := sqlite.NewTenantRepository(db)
	nodeRepo := sqlite.NewNodeRepository(db)
	valueRepo := sqlite.NewValueRepository(db)
	defRepo := sqlite.NewDefinitionRepository(db)
	queueRepo := sqlite.NewQueueRepository(db)
	dataRepo := sqlite.NewPredicateDataRepository(db)
	apiKeyRepo := sqlite.NewAPIKeyRepository(db)

	ledgerSvc := ledger.NewService(sqlite.NewLedgerRepository(db), logger)
	hierarchy := tree.NewHierarchy(nodeRepo, logger)
	predicates := predicate.NewEvaluator(dataRepo, valueRepo)
	formulas := formula.NewEngine(valueRepo)
	evaluator := aggregate.NewEvaluator(hierarchy, valueRepo, predicates, defRepo, formulas, tenantRepo, logger)
	pub := publisher.NewService(hierarchy, nodeRepo, defRepo, ledgerSvc, queueRepo, logger)
	wrk := worker.NewWorker(queueRepo, nodeRepo, defRepo, valueRepo, ledgerSvc, evaluator, formulas, pub, tenantRepo, logger)
	proc := worker.NewProcessor(queueRepo, nodeRepo, defRepo, ledgerSvc, logger)

	eng := engine.New(pub, wrk, proc, ledgerSvc, nodeRepo, valueRepo, defRepo, logger)

	resolver := &apiKeyResolver{keys: apiKeyRepo}
	handler := transport.NewHandler(eng, logger)
	router := transport.NewServer(handler, resolver, logger)

	drainCtx, stopDrain := context.WithCancel(context.Background())
	go runDrainLoop(drainCtx, eng, cfg.Queue, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer, stopDrain)
}

// runDrainLoop drains the queues on a fixed interval until ctx is canceled.
// The RPC surface enqueues work; this loop is what actually recomputes.
func runDrainLoop(ctx context.Context, eng *engine.Engine, cfg config.QueueConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := eng.Drain(ctx, cfg.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("drain failed", "error", err)
				continue
			}
			if processed > 0 {
				logger.Debug("drain complete", "processed", processed)
			}
		}
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server, stopDrain context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopDrain()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type apiKeyResolver struct {
	keys *sqlite.APIKeyRepository
}

func (r *apiKeyResolver) ResolveTenant(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	tenantID, err := r.keys.ResolveTenant(ctx, hash)
	if err != nil {
		return "", transport.ErrUnauthorized
	}
	_ = r.keys.TouchLastUsed(ctx, hash)
	return tenantID, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
