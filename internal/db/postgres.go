package db

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/migrations"
)

// NewPostgres создаёт подключение к PostgreSQL с заданным DSN.
func NewPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось подключиться: %w", err)
	}

	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, nil
}

// MigrationsSource возвращает каталог миграций: внешний, если он существует, иначе встроенный.
func MigrationsSource(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

// RunMigrations выполняет SQL файлы из источника миграций и возвращает число применённых.
func RunMigrations(ctx context.Context, conn *sqlx.DB, source fs.FS) (int, error) {
	if err := initMigrationsTable(ctx, conn); err != nil {
		return 0, fmt.Errorf("postgres: не удалось инициализировать таблицу миграций: %w", err)
	}

	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return 0, fmt.Errorf("postgres: не удалось прочитать каталог миграций: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()
		done, err := isMigrationApplied(ctx, conn, name)
		if err != nil {
			return applied, fmt.Errorf("postgres: не удалось проверить статус миграции %s: %w", name, err)
		}
		if done {
			continue
		}

		if err := applyMigration(ctx, conn, source, name); err != nil {
			return applied, err
		}
		applied++
		logger.Log.WithField("migration", name).Info("миграция применена")
	}

	return applied, nil
}

// initMigrationsTable создаёт таблицу для отслеживания выполненных миграций.
func initMigrationsTable(ctx context.Context, conn *sqlx.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := conn.ExecContext(ctx, query)
	return err
}

func isMigrationApplied(ctx context.Context, conn *sqlx.DB, name string) (bool, error) {
	var exists bool
	err := conn.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, name)
	return exists, err
}

// applyMigration читает и выполняет конкретный SQL файл в транзакции.
func applyMigration(ctx context.Context, conn *sqlx.DB, source fs.FS, name string) error {
	sqlBytes, err := fs.ReadFile(source, name)
	if err != nil {
		return fmt.Errorf("postgres: не удалось прочитать миграцию %s: %w", name, err)
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: не удалось начать транзакцию для миграции %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("postgres: не удалось выполнить миграцию %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("postgres: не удалось отметить миграцию %s как выполненную: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: не удалось зафиксировать транзакцию для миграции %s: %w", name, err)
	}

	return nil
}
