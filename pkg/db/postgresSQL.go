package db

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"bazaar/pkg/config"
)

//go:embed schema.sql
var embeddedSchema string

func Connect(ctx context.Context, settings config.DatabaseSettings, logger *zap.Logger) (*pgxpool.Pool, error) {
	if settings.URL == "" {
		return nil, fmt.Errorf("database url not set")
	}

	cfg, err := pgxpool.ParseConfig(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	cfg.MaxConns = int32(settings.MaxConns)
	cfg.MinConns = int32(settings.MinConns)
	cfg.MaxConnIdleTime = settings.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("connected to postgres", zap.Int32("max_conns", cfg.MaxConns))

	if settings.ApplySchema {
		schemaCtx, cancelSchema := context.WithTimeout(ctx, 30*time.Second)
		defer cancelSchema()
		if err := ApplySchema(schemaCtx, pool, settings.SchemaPath); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("schema applied", zap.String("path", schemaSource(settings.SchemaPath)))
	}

	return pool, nil
}

// ApplySchema executes the SQL schema against the pool. An empty path uses the
// schema compiled into the binary.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, schemaPath string) error {
	sql := embeddedSchema
	if schemaPath != "" {
		bytes, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		sql = string(bytes)
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		return fmt.Errorf("schema is empty: %s", schemaSource(schemaPath))
	}

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func schemaSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
