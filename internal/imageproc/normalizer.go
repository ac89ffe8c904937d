// Package imageproc turns uploaded image bytes into upright, canonical WebP
// originals and thumbnails. It performs no I/O and keeps no state, so every
// function is safe to call from any goroutine.
package imageproc

import (
	"bytes"
	"image"

	// Decoders for the accepted upload formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
	"github.com/zeebo/errs"
)

var (
	// DecodeError is returned when the input is not a readable image.
	DecodeError = errs.Class("decode")
	// EncodeError is returned when WebP encoding fails.
	EncodeError = errs.Class("encode")
)

const (
	DefaultOriginalQuality  = 90
	DefaultThumbnailSize    = 300
	DefaultThumbnailQuality = 85

	// DefaultMaxPixels bounds the declared canvas of a decoded image.
	DefaultMaxPixels = 89478485
)

// Options fixes the encoding parameters of a Normalizer.
type Options struct {
	OriginalQuality  int
	ThumbnailSize    int
	ThumbnailQuality int
	// MaxPixels rejects images whose header declares more pixels.
	MaxPixels int64
}

// DefaultOptions returns quality 90 originals and 300px thumbnails at quality 85.
func DefaultOptions() Options {
	return Options{
		OriginalQuality:  DefaultOriginalQuality,
		ThumbnailSize:    DefaultThumbnailSize,
		ThumbnailQuality: DefaultThumbnailQuality,
		MaxPixels:        DefaultMaxPixels,
	}
}

// Normalizer binds Options to the package level transforms.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer. A non-positive thumbnail size or pixel limit
// falls back to the default.
func New(opts Options) *Normalizer {
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = DefaultThumbnailSize
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	opts.OriginalQuality = clampQuality(opts.OriginalQuality)
	opts.ThumbnailQuality = clampQuality(opts.ThumbnailQuality)
	return &Normalizer{opts: opts}
}

// Options returns the effective options.
func (n *Normalizer) Options() Options { return n.opts }

// Original re-encodes data as the canonical full resolution image.
func (n *Normalizer) Original(data []byte) ([]byte, error) {
	return normalizeOriginal(data, n.opts.OriginalQuality, n.opts.MaxPixels)
}

// Thumbnail derives the bounded, opaque thumbnail from data.
func (n *Normalizer) Thumbnail(data []byte) ([]byte, error) {
	return generateThumbnail(data, n.opts.ThumbnailSize, n.opts.ThumbnailQuality, n.opts.MaxPixels)
}

// NormalizeOriginal decodes data, corrects its EXIF orientation, canonicalizes
// the color mode and encodes it as lossy WebP at quality (0-100).
// Transparency is preserved for paletted and alpha-bearing sources.
// Images larger than DefaultMaxPixels are rejected with a DecodeError.
func NormalizeOriginal(data []byte, quality int) ([]byte, error) {
	return normalizeOriginal(data, quality, DefaultMaxPixels)
}

func normalizeOriginal(data []byte, quality int, maxPixels int64) ([]byte, error) {
	img, _, err := load(data, maxPixels)
	if err != nil {
		return nil, err
	}
	return encodeWebP(img, quality)
}

// GenerateThumbnail works like NormalizeOriginal but flattens transparency
// onto white and scales the result so neither side exceeds maxDimension.
// Images that already fit are not enlarged.
func GenerateThumbnail(data []byte, maxDimension, quality int) ([]byte, error) {
	return generateThumbnail(data, maxDimension, quality, DefaultMaxPixels)
}

func generateThumbnail(data []byte, maxDimension, quality int, maxPixels int64) ([]byte, error) {
	if maxDimension <= 0 {
		return nil, EncodeError.New("invalid thumbnail size %d", maxDimension)
	}

	img, mode, err := load(data, maxPixels)
	if err != nil {
		return nil, err
	}
	if mode == ModeRGBA {
		img = flatten(img)
	}
	return encodeWebP(imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos), quality)
}

// load decodes data and returns the upright, canonical image and its mode.
// The header is checked first so that empty or oversized canvases are
// refused before any pixel buffer is allocated.
func load(data []byte, maxPixels int64) (*image.NRGBA, ColorMode, error) {
	if len(data) == 0 {
		return nil, ModeRGB, DecodeError.New("empty input")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ModeRGB, DecodeError.Wrap(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ModeRGB, DecodeError.New("empty image %dx%d", cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, ModeRGB, DecodeError.New("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ModeRGB, DecodeError.Wrap(err)
	}
	if img.Bounds().Empty() {
		return nil, ModeRGB, DecodeError.New("empty image")
	}

	mode := ColorModeOf(img)
	img = ApplyOrientation(img, ReadOrientation(data))
	return canonicalize(img, mode), mode, nil
}

func clampQuality(q int) int {
	switch {
	case q < 0:
		return 0
	case q > 100:
		return 100
	}
	return q
}
