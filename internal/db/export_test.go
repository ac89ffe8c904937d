package db

import (
	"context"
	"fmt"
)

// Reset removes every photo record so a shared test database starts empty.
func (db *Postgres) Reset(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `TRUNCATE photos RESTART IDENTITY`); err != nil {
		return Error.Wrap(fmt.Errorf("failed to reset photos: %w", err))
	}
	return nil
}
