package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ernie/minebridge/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// SQLiteBackend stores one row per member. Rows are inserted or
// overwritten, never deleted.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and creates) the database at dbPath
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load returns every stored record
func (b *SQLiteBackend) Load(ctx context.Context) (domain.Mappings, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT discord_id, minecraft_name, timestamp FROM mappings
	`)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	m := domain.Mappings{}
	for rows.Next() {
		var id string
		var rec domain.MappingRecord
		if err := rows.Scan(&id, &rec.MinecraftName, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		rec.DiscordID = domain.Snowflake(id)
		m[id] = rec
	}
	return m, rows.Err()
}

// Save upserts every record in one transaction
func (b *SQLiteBackend) Save(ctx context.Context, m domain.Mappings) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mappings (discord_id, minecraft_name, timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(discord_id) DO UPDATE SET
			minecraft_name = excluded.minecraft_name,
			timestamp = excluded.timestamp
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for id, rec := range m {
		if _, err := stmt.ExecContext(ctx, id, rec.MinecraftName, rec.Timestamp); err != nil {
			return fmt.Errorf("upserting %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
