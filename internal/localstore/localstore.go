// Package localstore opens the device-local SQLite database, applies the
// embedded migrations and wires up the repositories.
package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/akuznecov/whisperkit/internal/migrations"
	"github.com/akuznecov/whisperkit/internal/repositories/chatkeys"
	"github.com/akuznecov/whisperkit/internal/repositories/chats"
	"github.com/akuznecov/whisperkit/internal/repositories/metadata"
	"github.com/akuznecov/whisperkit/internal/repositories/outbox"
)

// Repositories bundles every repository backed by the local database.
type Repositories struct {
	Metadata metadata.Repository
	Chats    chats.Repository
	ChatKeys chatkeys.Repository
	Outbox   outbox.Repository
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if necessary) the local database at dsn, migrates it
// and returns the db handle together with the repositories.
func Open(ctx context.Context, dsn string) (*sql.DB, *Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	repos := &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Chats:    chats.NewSQLiteRepository(db),
		ChatKeys: chatkeys.NewSQLiteRepository(db),
		Outbox:   outbox.NewSQLiteRepository(db),
	}
	return db, repos, nil
}
