package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"datagen_platform/client"
	"datagen_platform/datagen"
	"datagen_platform/datagen/config"
	"datagen_platform/datagen/schema"
	"datagen_platform/datagen/storage"
	"datagen_platform/utils/logging"

	env "github.com/caarlos0/env/v10"
)

type DatagenJobEnv struct {
	ConfigPath string           `env:"CONFIG_PATH,required"`
	JobToken   string           `env:"JOB_TOKEN"`
	GenAiKey   string           `env:"GENAI_KEY"`
	S3         storage.S3Config `env:""`
}

/**
 * ==========================================================================
 * ==== All variables used by the datagen job must be loaded here.       ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*DatagenJobEnv, error) {
	cfg := &DatagenJobEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// The reason we have a separate runApp function is because the defer calls don't
// run if we exit with log.Fatalf, so instead we return an err here and fail outside
func runApp() error {
	jobEnv, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg, err := config.LoadDatagenConfig(jobEnv.ConfigPath)
	if err != nil {
		return fmt.Errorf("could not read datagen config: %w", err)
	}

	jobToken := jobEnv.JobToken
	if jobToken == "" {
		jobToken = cfg.JobAuthToken
	}

	var reporter *client.Reporter
	if cfg.PlatformEndpoint != "" && jobToken != "" {
		rep := client.NewReporter(cfg.PlatformEndpoint, jobToken)
		reporter = &rep
	}

	reportStatus := func(status, message string) {
		if reporter == nil {
			return
		}
		if err := reporter.UpdateRunStatus(status, message); err != nil {
			slog.Error("error reporting run status", "status", status, "error", err)
		}
	}

	logDir := filepath.Join(cfg.StorageDir, "logs", cfg.RunId.String())
	if err := os.MkdirAll(logDir, 0777); err != nil {
		reportStatus(schema.Failed, "error creating log dir")
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, "datagen.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		reportStatus(schema.Failed, "error opening log file")
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	logging.InitLogging(logFile, slog.String("run_id", cfg.RunId.String()))

	store := storage.NewSharedDisk(cfg.StorageDir)

	var exporter *storage.S3Exporter
	if jobEnv.S3.Enabled() {
		exporter, err = storage.NewS3Exporter(jobEnv.S3)
		if err != nil {
			reportStatus(schema.Failed, "error creating s3 exporter")
			return fmt.Errorf("error creating s3 exporter: %w", err)
		}
	}

	runner := datagen.NewRunner(cfg, store, datagen.RunnerOptions{
		ApiKey:   jobEnv.GenAiKey,
		Exporter: exporter,
	})

	/* We need to listen for an interrupt in this way so the run is cancelled
	cleanly, the defer calls go through, and the job status is updated to
	"stopped" instead of being left as "running" forever. */
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutdown signal received")
		cancel()
	}()

	reportStatus(schema.Running, "")

	report, err := runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("generation run cancelled")
		reportStatus(schema.Stopped, "")
		return nil
	}
	if err != nil {
		reportStatus(schema.Failed, err.Error())
		return fmt.Errorf("generation run failed: %w", err)
	}

	if reporter != nil {
		for _, branch := range report.FailedBranches() {
			logErr := reporter.Log(schema.EventWarning, fmt.Sprintf("branch %v produced no examples: %v", branch, report.Branches[branch].Error))
			if logErr != nil {
				slog.Error("error reporting branch failure", "branch", branch, "error", logErr)
			}
		}
	}

	reportStatus(schema.Complete, "")
	slog.Info("generation run complete", "examples", report.TotalExamples)
	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}
