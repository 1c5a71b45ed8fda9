package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/studysprint/go/internal/config"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/memory"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/postgres"
	"github.com/mcdev12/studysprint/go/internal/studysession/repository/sqlite"
	"github.com/rs/zerolog/log"
)

// setupStore opens the configured session store. The returned func
// releases it.
func setupStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close sqlite store")
			}
		}, nil

	case config.StorePostgres:
		store, err := postgres.Connect(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		log.Info().
			Str("host", cfg.DB.Host).
			Int("port", cfg.DB.Port).
			Str("database", cfg.DB.Database).
			Msg("connected to postgres")
		return store, store.Close, nil

	default:
		log.Warn().Msg("using in-memory store, sessions are lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}
