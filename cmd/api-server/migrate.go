package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/db"
)

func runMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator, err := db.NewMigrator(pool, logger.Named("migrate"))
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("error closing migrator", zap.Error(err))
		}
	}()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	return migrator.Up(migrateCtx)
}
