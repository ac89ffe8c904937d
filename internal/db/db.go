// Package db persists photo records in SQLite or PostgreSQL.
package db

import (
	"context"
	"strings"

	"github.com/zeebo/errs"

	"fotacos/internal/models"
)

// Error is the default db errs class.
var Error = errs.Class("db")

// DefaultURL is used when no database url is configured.
const DefaultURL = "sqlite://fotacos.db"

// PhotoStore is the record store used by the photo service.
type PhotoStore interface {
	// Create inserts a record and returns it with id and creation time set.
	Create(ctx context.Context, photo models.NewPhoto) (*models.Photo, error)
	// Get returns nil without error when id does not exist.
	Get(ctx context.Context, id int64) (*models.Photo, error)
	// List returns all records, newest first.
	List(ctx context.Context) ([]models.Photo, error)
	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error
}

// DB is a PhotoStore that owns its connection.
type DB interface {
	PhotoStore

	// Migrate creates the schema when it does not exist yet.
	Migrate(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// Open connects to the database described by url.
// Supported schemes are sqlite:// and postgres:// (or postgresql://).
func Open(ctx context.Context, url string) (DB, error) {
	if url == "" {
		url = DefaultURL
	}

	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return nil, Error.New("invalid database url %q", url)
	}

	switch scheme {
	case "sqlite", "sqlite3":
		return OpenSQLite(rest)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, url)
	default:
		return nil, Error.New("unsupported database scheme %q", scheme)
	}
}
