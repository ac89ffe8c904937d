package models

import (
	"io"
	"time"
)

// Photo represents a stored photo and its thumbnail
type Photo struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalURL  string    `json:"original_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewPhoto holds the fields needed to create a Photo record.
// ID and CreatedAt are assigned by the record store.
type NewPhoto struct {
	Filename     string
	OriginalURL  string
	ThumbnailURL string
	FileSize     int64
}

// Upload is a single client upload as handed over by a transport
type Upload struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

type PhotoListResponse struct {
	Photos []Photo `json:"photos"`
	Total  int     `json:"total"`
}

type DeleteResponse struct {
	Message string `json:"message"`
}
