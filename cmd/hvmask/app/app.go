package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roman-kulish/hv-mask/internal/storage"
)

// Run generates the mask documents of the requested runs, in order. A failed
// run is logged and does not stop the others; the failures are returned
// together.
func Run(ctx context.Context, config *Config, options *Options, logger *slog.Logger) error {
	orchestratorOptions := []func(*Orchestrator){WithRefetch(options.Refetch)}

	if config.Storage.Database != "" {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("failed to close storage: %s", err.Error()))
			}
		}()

		orchestratorOptions = append(orchestratorOptions, WithStore(store))
	}

	if config.Plots.Enabled || options.Plots {
		plots, err := NewPlotSink(&config.Plots, config.Analysis.Threshold)
		if err != nil {
			return fmt.Errorf("failed to create plot sink: %w", err)
		}
		orchestratorOptions = append(orchestratorOptions, WithPlots(plots))
	}

	orchestrator, err := NewOrchestrator(config, logger, orchestratorOptions...)
	if err != nil {
		return err
	}

	var errs []error
	for _, request := range options.Runs {
		if _, err = orchestrator.Process(ctx, request); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errors.Join(append(errs, ctxErr)...)
			}

			logger.Error(fmt.Sprintf("failed to generate mask document: %s", err.Error()), slog.Int("run", request.Run))
			errs = append(errs, fmt.Errorf("run %d: %w", request.Run, err))
		}
	}

	return errors.Join(errs...)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := filepath.Dir(config.Database)

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(config.Database), nil
}
