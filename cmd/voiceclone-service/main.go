// main package for the voiceclone-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/config"
	"github.com/book-expert/voiceclone/internal/engine"
	"github.com/book-expert/voiceclone/internal/objectstore"
	"github.com/book-expert/voiceclone/internal/synth"
	"github.com/book-expert/voiceclone/internal/worker"
	"github.com/nats-io/nats.go"
)

const serviceName = "voiceclone-service"

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run(ctx context.Context) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), serviceName+"-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceName+".log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Connect to NATS and the audio bucket
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	log.Info("Audio object store bucket %s ready", store.Bucket())

	// 5. Build the synthesis pipeline
	ttsEngine, err := engine.New(cfg, log)
	if err != nil {
		return err
	}

	healthCtx, cancelHealth := context.WithTimeout(ctx, cfg.Engine.HealthTimeout())

	healthErr := ttsEngine.HealthCheck(healthCtx)

	cancelHealth()

	if healthErr != nil {
		log.Warn("Engine is not healthy yet, requests will fail until it is: %v", healthErr)
	}

	synthesizer, err := synth.New(ttsEngine, synth.Settings{
		SampleRate:     cfg.Synthesizer.SampleRate,
		OutputDir:      cfg.Paths.OutputDir,
		MinOutputBytes: cfg.Synthesizer.MinOutputSize(),
		NormalizeText:  cfg.Synthesizer.NormalizeText,
	}, log)
	if err != nil {
		return err
	}

	defaultQuality, err := synth.ParseQuality(cfg.Synthesizer.DefaultQuality)
	if err != nil {
		return fmt.Errorf("invalid default quality: %w", err)
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisSubject,
		store,
		synthesizer,
		worker.Options{
			VoicesDir:      cfg.Paths.VoicesDir,
			DefaultQuality: defaultQuality,
			Timeout:        cfg.Synthesizer.Timeout(),
		},
		log,
	)
	if err != nil {
		return err
	}

	log.System("Voiceclone service initialized. Listening for jobs on subject: %s", cfg.NATS.SynthesisSubject)

	return natsWorker.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
