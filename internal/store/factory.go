package store

import (
	"context"
	"strings"
)

// New creates a postgres-backed store when a database URL is configured,
// otherwise a SQLite store at the given path.
func New(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewSQLiteStore(sqlitePath)
}
