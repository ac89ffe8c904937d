package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fotacos/internal/models"
)

// Postgres stores photos in PostgreSQL through a connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres initializes the PostgreSQL connection pool.
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("unable to parse connection string: %w", err))
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("unable to create connection pool: %w", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Error.Wrap(fmt.Errorf("unable to ping database: %w", err))
	}

	return &Postgres{pool: pool}, nil
}

// Migrate creates the photos table.
func (db *Postgres) Migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS photos (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL UNIQUE,
			original_url TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_photos_created_at ON photos(created_at);
	`)
	if err != nil {
		return Error.Wrap(fmt.Errorf("failed to migrate database: %w", err))
	}
	return nil
}

func (db *Postgres) Create(ctx context.Context, photo models.NewPhoto) (*models.Photo, error) {
	created := models.Photo{
		Filename:     photo.Filename,
		OriginalURL:  photo.OriginalURL,
		ThumbnailURL: photo.ThumbnailURL,
		FileSize:     photo.FileSize,
	}

	query := `INSERT INTO photos (filename, original_url, thumbnail_url, file_size) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := db.pool.QueryRow(ctx, query, photo.Filename, photo.OriginalURL, photo.ThumbnailURL, photo.FileSize).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to insert photo: %w", err))
	}
	return &created, nil
}

func (db *Postgres) Get(ctx context.Context, id int64) (*models.Photo, error) {
	var photo models.Photo
	query := `SELECT id, filename, original_url, thumbnail_url, file_size, created_at FROM photos WHERE id = $1`
	err := db.pool.QueryRow(ctx, query, id).
		Scan(&photo.ID, &photo.Filename, &photo.OriginalURL, &photo.ThumbnailURL, &photo.FileSize, &photo.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, Error.Wrap(fmt.Errorf("failed to query photo: %w", err))
	}
	return &photo, nil
}

func (db *Postgres) List(ctx context.Context) ([]models.Photo, error) {
	query := `SELECT id, filename, original_url, thumbnail_url, file_size, created_at FROM photos ORDER BY created_at DESC, id DESC`
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to query photos: %w", err))
	}
	defer rows.Close()

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

func (db *Postgres) Delete(ctx context.Context, id int64) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id); err != nil {
		return Error.Wrap(fmt.Errorf("failed to delete photo: %w", err))
	}
	return nil
}

// Close closes the pool.
func (db *Postgres) Close() error {
	db.pool.Close()
	return nil
}
