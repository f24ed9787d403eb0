package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/roman-kulish/hv-mask/cmd/hvmask/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	options, err := app.ParseOptions(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Error(err.Error())
		os.Exit(2)
	}

	if err = godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn(fmt.Sprintf("failed to load .env file: %s", err.Error()))
	}

	config, err := app.LoadConfig(options.ConfigPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", options.ConfigPath))
		os.Exit(1)
	}

	logLevel.Set(config.LogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, options, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
