package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	zap.L().Info("database created", zap.String("database", dbName))
	return nil
}

func openMigrator(databaseURL string) (*sql.DB, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return db, nil
}

// MigrateUp creates the database if needed and applies every pending migration.
func MigrateUp(ctx context.Context, databaseURL string) error {
	if err := ensureDatabase(databaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	db, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	before, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("current version: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("up: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("current version: %w", err)
	}
	if before == after {
		zap.L().Info("migrate: no pending migrations", zap.Int64("version", after))
	} else {
		zap.L().Info("migrate: up ok", zap.Int64("from", before), zap.Int64("to", after))
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, databaseURL string) error {
	db, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("down: %w", err)
	}
	return nil
}

// MigrateStatus prints the applied state of every migration.
func MigrateStatus(ctx context.Context, databaseURL string) error {
	db, err := openMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.StatusContext(ctx, db, migrationsDir)
}

// AutoMigrate creates the schema from the models. Used for SQLite in tests and
// local runs; PostgreSQL deployments use the SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Municipality{}, &model.Ticket{})
}
