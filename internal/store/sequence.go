package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kommetio/kommet-core/internal/types"
)

// SequenceTable holds the per-prefix identifier counters.
const SequenceTable = "kid_sequences"

// SequenceAllocator hands out monotonically increasing identifiers per key
// prefix, backed by a counter table so identifiers survive restarts.
type SequenceAllocator struct {
	db *sql.DB
}

// NewSequenceAllocator creates an allocator over the given handle.
func NewSequenceAllocator(db *sql.DB) *SequenceAllocator {
	return &SequenceAllocator{db: db}
}

// SequenceSchema returns the DDL of the counter table.
func SequenceSchema() string {
	return `CREATE TABLE IF NOT EXISTS ` + SequenceTable + ` (
		prefix TEXT PRIMARY KEY,
		value BIGINT NOT NULL DEFAULT 0
	)`
}

// Next allocates the next identifier for the prefix. The counter row is
// created lazily on first use.
func (a *SequenceAllocator) Next(ctx context.Context, prefix string) (types.KID, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var value int64
	err = tx.QueryRowContext(ctx,
		"UPDATE "+SequenceTable+" SET value = value + 1 WHERE prefix = $1 RETURNING value",
		prefix).Scan(&value)
	if err == sql.ErrNoRows {
		value = 1
		_, err = tx.ExecContext(ctx,
			"INSERT INTO "+SequenceTable+" (prefix, value) VALUES ($1, 1)", prefix)
	}
	if err != nil {
		return "", ConvertDBError(err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return types.NewKID(prefix, value)
}
