package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fotacos/internal/models"
)

// SQLite stores photos in a single SQLite file.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, Error.New("missing sqlite path")
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to open database: %w", err))
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return &SQLite{conn: conn}, nil
}

// Migrate creates the photos table.
func (db *SQLite) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		original_url TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_photos_created_at ON photos(created_at);
	`

	_, err := db.conn.ExecContext(ctx, schema)
	if err != nil {
		return Error.Wrap(fmt.Errorf("failed to migrate database: %w", err))
	}
	return nil
}

// Create inserts a photo record.
func (db *SQLite) Create(ctx context.Context, photo models.NewPhoto) (*models.Photo, error) {
	createdAt := time.Now().UTC()

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO photos (filename, original_url, thumbnail_url, file_size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, photo.Filename, photo.OriginalURL, photo.ThumbnailURL, photo.FileSize, createdAt)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to insert photo: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to get last insert id: %w", err))
	}

	return &models.Photo{
		ID:           id,
		Filename:     photo.Filename,
		OriginalURL:  photo.OriginalURL,
		ThumbnailURL: photo.ThumbnailURL,
		FileSize:     photo.FileSize,
		CreatedAt:    createdAt,
	}, nil
}

// Get retrieves a photo by id.
func (db *SQLite) Get(ctx context.Context, id int64) (*models.Photo, error) {
	var photo models.Photo
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, filename, original_url, thumbnail_url, file_size, created_at
		FROM photos WHERE id = ?
	`, id).Scan(&photo.ID, &photo.Filename, &photo.OriginalURL, &photo.ThumbnailURL, &photo.FileSize, &photo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, Error.Wrap(fmt.Errorf("failed to query photo: %w", err))
	}
	return &photo, nil
}

// List returns every photo, newest first.
func (db *SQLite) List(ctx context.Context) ([]models.Photo, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, filename, original_url, thumbnail_url, file_size, created_at
		FROM photos ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to query photos: %w", err))
	}
	defer func() { _ = rows.Close() }()

	photos := []models.Photo{}
	for rows.Next() {
		var photo models.Photo
		if err := rows.Scan(&photo.ID, &photo.Filename, &photo.OriginalURL, &photo.ThumbnailURL, &photo.FileSize, &photo.CreatedAt); err != nil {
			return nil, Error.Wrap(fmt.Errorf("failed to scan photo: %w", err))
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return photos, nil
}

// Delete removes a photo record.
func (db *SQLite) Delete(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id); err != nil {
		return Error.Wrap(fmt.Errorf("failed to delete photo: %w", err))
	}
	return nil
}

// Close closes the database connection.
func (db *SQLite) Close() error {
	return Error.Wrap(db.conn.Close())
}
