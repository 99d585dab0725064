// Command jobqueue-worker demonstrates the ambient stack end to end:
// config load, logger construction, startup banner, and wiring a Queue
// plus Executor against the Postgres backend for one concrete family. It
// is not part of the library's public surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/jobqueue"
	"github.com/bobmcallan/jobqueue/internal/common"
	"github.com/bobmcallan/jobqueue/storage/postgres"
)

func main() {
	configPath := os.Getenv("JOBQUEUE_CONFIG")

	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := jobqueue.NewLogger(cfg.Logging.Level)
	common.PrintBanner(cfg, logger)

	db, err := sql.Open("pgx", cfg.Storage.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database handle")
	}
	defer db.Close()

	reg := newRegistry()
	provider := postgres.New[WorkerContext](db, reg)
	queue := jobqueue.NewQueue[WorkerContext](provider)

	workerCtx := WorkerContext{EODHDBaseURL: "https://eodhd.com/api"}

	executors := make([]*jobqueue.RunningExecutor, 0, cfg.Worker.Concurrency)
	runCtx, cancel := context.WithCancel(context.Background())

	for i := 0; i < cfg.Worker.Concurrency; i++ {
		executor := jobqueue.NewExecutor[WorkerContext](
			provider,
			workerCtx,
			jobqueue.WithLogger(logger),
			jobqueue.WithBackoffLimiter(rate.NewLimiter(rate.Limit(1), 1)),
		)
		executors = append(executors, executor.Start(runCtx))
	}

	if _, err := queue.Push(runCtx, &FetchQuoteJob{Ticker: "BHP.AX"}); err != nil {
		logger.Error().Err(err).Msg("seed push failed")
	}

	logger.Info().Int("executors", len(executors)).Msg("jobqueue-worker ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	for _, re := range executors {
		if err := re.Stop(stopCtx); err != nil && !errors.Is(err, jobqueue.ErrAlreadyStopped) {
			logger.Error().Err(err).Msg("executor stop failed")
		}
	}

	common.PrintShutdownBanner(logger)
}
