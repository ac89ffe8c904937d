package imageproc

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ColorMode is the canonical channel layout an image is normalized to.
type ColorMode int

const (
	// ModeRGB is three-channel color; any alpha is dropped.
	ModeRGB ColorMode = iota
	// ModeRGBA keeps the alpha channel (paletted and alpha-bearing sources).
	ModeRGBA
)

func (m ColorMode) String() string {
	if m == ModeRGBA {
		return "RGBA"
	}
	return "RGB"
}

// ColorModeOf classifies a decoded image by its storage type.
func ColorModeOf(img image.Image) ColorMode {
	switch img.(type) {
	case *image.Paletted, *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64,
		*image.Alpha, *image.Alpha16, *image.NYCbCrA:
		return ModeRGBA
	default:
		return ModeRGB
	}
}

// canonicalize converts img to NRGBA in the given mode.
func canonicalize(img image.Image, mode ColorMode) *image.NRGBA {
	out := imaging.Clone(img)
	if mode == ModeRGB {
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = 0xff
		}
	}
	return out
}

// flatten composites img onto an opaque white canvas of the same size.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}
