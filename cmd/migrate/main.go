package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"flightdeck/internal/config"
	"flightdeck/internal/database"
	"flightdeck/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, true); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	lg := logger.Named("migrate")

	command := os.Args[1]
	if command == "create" {
		if len(os.Args) < 3 {
			lg.Fatal("usage: migrate create <migration_name>")
		}
		createMigration(lg, cfg.MigrationsPath, os.Args[2])
		return
	}

	db, err := database.New(cfg.Database.DSN())
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	path := cfg.MigrationsPath
	switch command {
	case "up":
		lg.Info("running migrations", zap.String("path", path))
		if err := database.RunMigrations(db.DB(), path); err != nil {
			lg.Fatal("migration failed", zap.Error(err))
		}
		lg.Info("migrations completed")

	case "down":
		lg.Info("rolling back last migration", zap.String("path", path))
		if err := database.RollbackMigration(db.DB(), path); err != nil {
			lg.Fatal("rollback failed", zap.Error(err))
		}
		lg.Info("rollback completed")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db.DB(), path)
		if err != nil {
			lg.Fatal("failed to get version", zap.Error(err))
		}
		if dirty {
			lg.Warn("schema is dirty and needs manual intervention", zap.Uint("version", version))
		} else {
			lg.Info("current version", zap.Uint("version", version))
		}

	default:
		lg.Error("unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func createMigration(lg *zap.Logger, dir, name string) {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		lg.Fatal("failed to read migrations directory", zap.Error(err))
	}
	next := len(files) + 1

	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", next, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", next, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		lg.Fatal("failed to create up migration", zap.Error(err))
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		lg.Fatal("failed to create down migration", zap.Error(err))
	}

	lg.Info("created migration files", zap.String("up", upFile), zap.String("down", downFile))
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BLUEPRINT_DB_HOST       Database host (default: localhost)")
	fmt.Println("  BLUEPRINT_DB_PORT       Database port (default: 5432)")
	fmt.Println("  BLUEPRINT_DB_DATABASE   Database name (default: crashdb)")
	fmt.Println("  BLUEPRINT_DB_USERNAME   Database user (default: postgres)")
	fmt.Println("  BLUEPRINT_DB_PASSWORD   Database password (default: postgres)")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: ./migrations)")
}
