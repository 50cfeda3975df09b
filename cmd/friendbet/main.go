// Command friendbet is the backend entry point for the friend market engine.
// It loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/friendbet/internal/app"
	"github.com/alanyoungcy/friendbet/internal/chain"
	"github.com/alanyoungcy/friendbet/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKeyPath := flag.String("encrypt-key", "", "encrypt the operator key from the environment, write it to this path, and exit")
	flag.Parse()

	if *encryptKeyPath != "" {
		if err := encryptOperatorKey(*encryptKeyPath); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypted operator key written to %s\n", *encryptKeyPath)
		return
	}

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("friend market engine starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("friend market engine stopped")
}

// encryptOperatorKey reads the plaintext operator key and a password from the
// environment, encrypts the key, and writes the JSON blob that
// chain.encrypted_key_path points at. Done once at deploy time so the
// plaintext key never has to live in config.
func encryptOperatorKey(path string) error {
	key := os.Getenv("FRIENDBET_CHAIN_PRIVATE_KEY")
	if key == "" {
		return fmt.Errorf("FRIENDBET_CHAIN_PRIVATE_KEY is not set")
	}
	password := os.Getenv("FRIENDBET_CHAIN_KEY_PASSWORD")
	if password == "" {
		return fmt.Errorf("FRIENDBET_CHAIN_KEY_PASSWORD is not set")
	}

	blob, err := chain.EncryptKey(key, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}
