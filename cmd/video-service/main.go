// main package for the video-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/config"
	"github.com/book-expert/video-service/internal/fsutil"
	"github.com/book-expert/video-service/internal/jobs"
	"github.com/book-expert/video-service/internal/objectstore"
	"github.com/book-expert/video-service/internal/service"
	"github.com/book-expert/video-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "video-service-bootstrap.log"
	serviceLogFile   = "video-service.log"
	natsClientName   = "video-service"
	reconnectWait    = 2 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	dirErr := fsutil.EnsureDir(logPath)
	if dirErr != nil {
		return nil, dirErr
	}

	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

// serve connects to NATS and handles render requests until SIGINT or SIGTERM.
func serve(cfg *config.Config, log *logger.Logger) error {
	svc, err := service.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build renderer: %w", err)
	}
	defer svc.Close()

	_, sweepErr := svc.Sweep(time.Now())
	if sweepErr != nil {
		log.Warn("Failed to sweep leftover renders: %v", sweepErr)
	}

	ledger, err := jobs.Open(cfg.Paths.JobsDB, log)
	if err != nil {
		return fmt.Errorf("failed to open job ledger: %w", err)
	}

	defer func() {
		closeErr := ledger.Close()
		if closeErr != nil {
			log.Warn("Failed to close job ledger: %v", closeErr)
		}
	}()

	_, markErr := ledger.MarkInterrupted(context.Background())
	if markErr != nil {
		log.Warn("Failed to fail interrupted jobs: %v", markErr)
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL,
		nats.Name(natsClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	scripts, err := objectstore.New(jetstreamContext, cfg.NATS.ScriptObjectBucket)
	if err != nil {
		return fmt.Errorf("failed to open script bucket: %w", err)
	}

	videos, err := objectstore.New(jetstreamContext, cfg.NATS.VideoObjectBucket)
	if err != nil {
		return fmt.Errorf("failed to open video bucket: %w", err)
	}

	renderWorker, err := worker.NewNatsWorker(
		natsConnection, cfg.NATS.RenderRequestedSubject, scripts, videos, svc.Assembler(), ledger, log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	renderWorker.WithJobTimeout(time.Duration(cfg.NATS.JobTimeoutSeconds) * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.System("Video-Service successfully initialized. Listening for jobs on subject: %s",
		cfg.NATS.RenderRequestedSubject)

	runErr := renderWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	log.System("Video-Service shut down.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
