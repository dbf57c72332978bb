// Command strikebot is the entry point for the fight-odds pipeline. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/strikeodds/strikebot/internal/app"
	"github.com/strikeodds/strikebot/internal/config"
	"github.com/strikeodds/strikebot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (sync, analyze, monitor, full)")
	encryptKey := flag.String("encrypt-key", "", "write an encrypted credential file to this path and exit")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *encryptKey != "" {
		if err := runEncryptKey(*encryptKey); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypted credential written to %s\n", *encryptKey)
		return
	}

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
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

	logger.Info("strikebot starting",
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

	logger.Info("strikebot stopped")
}

// runEncryptKey produces an encrypted credential file for use with a source's
// encrypted_key_path setting. The credential and password come from the
// STRIKEBOT_CREDENTIAL and STRIKEBOT_KEY_PASSWORD environment variables, or
// are read as lines from stdin when unset.
func runEncryptKey(path string) error {
	stdin := bufio.NewReader(os.Stdin)

	credential := os.Getenv("STRIKEBOT_CREDENTIAL")
	if credential == "" {
		fmt.Fprint(os.Stderr, "credential: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading credential: %w", err)
		}
		credential = strings.TrimSpace(line)
	}
	if credential == "" {
		return fmt.Errorf("credential must not be empty")
	}

	password := os.Getenv("STRIKEBOT_KEY_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	blob, err := crypto.EncryptCredential(credential, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}
