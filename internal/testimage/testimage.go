// Package testimage builds small deterministic images for tests.
package testimage

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

// Quadrant colors, far enough apart to survive lossy encoding.
var (
	Red    = color.NRGBA{R: 255, A: 255}
	Green  = color.NRGBA{G: 255, A: 255}
	Blue   = color.NRGBA{B: 255, A: 255}
	Yellow = color.NRGBA{R: 255, G: 255, A: 255}
)

// Quadrants returns a w×h image split into red (top left), green (top right),
// blue (bottom left) and yellow (bottom right) blocks.
func Quadrants(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, QuadrantColor(x, y, w, h))
		}
	}
	return img
}

// QuadrantColor returns the color Quadrants uses at (x, y).
func QuadrantColor(x, y, w, h int) color.NRGBA {
	left, top := x < w/2, y < h/2
	switch {
	case left && top:
		return Red
	case !left && top:
		return Green
	case left && !top:
		return Blue
	default:
		return Yellow
	}
}

// Translucent returns a w×h image whose left half is fully transparent and
// right half is opaque blue.
func Translucent(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetNRGBA(x, y, Blue)
		}
	}
	return img
}

// JPEG encodes img as a quality 95 JPEG.
func JPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// PNG encodes img losslessly.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// GIF encodes img as a GIF whose palette holds exactly the quadrant colors,
// black and white, so no dithering takes place.
func GIF(t testing.TB, img image.Image) []byte {
	t.Helper()
	palette := color.Palette{Red, Green, Blue, Yellow, color.Black, color.White}
	paletted := image.NewPaletted(img.Bounds(), palette)
	draw.Draw(paletted, paletted.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, paletted, nil))
	return buf.Bytes()
}

// TaggedJPEG encodes img as JPEG carrying the given EXIF orientation.
func TaggedJPEG(t testing.TB, img image.Image, orientation int) []byte {
	t.Helper()
	return WithOrientation(t, JPEG(t, img), orientation)
}

// WithOrientation inserts an APP1 Exif segment holding a single Orientation
// tag directly after the SOI marker of a JPEG stream.
func WithOrientation(t testing.TB, jpegData []byte, orientation int) []byte {
	t.Helper()
	require.True(t, len(jpegData) > 2 && jpegData[0] == 0xFF && jpegData[1] == 0xD8, "not a JPEG stream")

	payload := append([]byte("Exif\x00\x00"), orientationTIFF(orientation)...)

	var out bytes.Buffer
	out.Write(jpegData[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpegData[2:])
	return out.Bytes()
}

// orientationTIFF returns a big endian TIFF header whose IFD0 holds only the
// Orientation tag.
func orientationTIFF(orientation int) []byte {
	var tiff bytes.Buffer
	tiff.WriteString("MM")
	_ = binary.Write(&tiff, binary.BigEndian, uint16(42))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(8)) // IFD0 offset
	_ = binary.Write(&tiff, binary.BigEndian, uint16(1)) // entry count
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(3)) // SHORT
	_ = binary.Write(&tiff, binary.BigEndian, uint32(1))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(orientation))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(0)) // no next IFD
	return tiff.Bytes()
}

// pngIHDREnd is the offset just past the IHDR chunk, which always follows
// the 8 byte signature and carries 13 bytes of data.
const pngIHDREnd = 8 + 4 + 4 + 13 + 4

func pngChunk(typ string, data []byte) []byte {
	var out bytes.Buffer
	_ = binary.Write(&out, binary.BigEndian, uint32(len(data)))
	out.WriteString(typ)
	out.Write(data)
	_ = binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	return out.Bytes()
}

// PNGWithOrientation inserts an eXIf chunk holding the Orientation tag
// right after the IHDR chunk of a PNG stream.
func PNGWithOrientation(t testing.TB, pngData []byte, orientation int) []byte {
	t.Helper()
	require.True(t, len(pngData) > pngIHDREnd && string(pngData[12:16]) == "IHDR", "not a PNG stream")

	var out bytes.Buffer
	out.Write(pngData[:pngIHDREnd])
	out.Write(pngChunk("eXIf", orientationTIFF(orientation)))
	out.Write(pngData[pngIHDREnd:])
	return out.Bytes()
}

// PNGHeader rewrites the dimensions declared in the IHDR chunk of a PNG
// stream and fixes up its checksum. The pixel data is left untouched.
func PNGHeader(t testing.TB, pngData []byte, width, height uint32) []byte {
	t.Helper()
	require.True(t, len(pngData) > pngIHDREnd && string(pngData[12:16]) == "IHDR", "not a PNG stream")

	out := append([]byte(nil), pngData...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

// WebPWithOrientation rewrites a WebP stream into the extended layout with
// an EXIF chunk holding the Orientation tag.
func WebPWithOrientation(t testing.TB, webpData []byte, orientation int) []byte {
	t.Helper()
	require.True(t, len(webpData) > 20 && string(webpData[:4]) == "RIFF" && string(webpData[8:12]) == "WEBP", "not a WebP stream")

	cfg, err := webp.DecodeConfig(bytes.NewReader(webpData))
	require.NoError(t, err)

	var chunks bytes.Buffer
	body := webpData[12:]
	if string(body[:4]) == "VP8X" {
		vp8x := append([]byte(nil), body[:18]...)
		vp8x[8] |= 0x08
		chunks.Write(vp8x)
		chunks.Write(body[18:])
	} else {
		header := make([]byte, 10)
		header[0] = 0x08
		putUint24(header[4:7], uint32(cfg.Width-1))
		putUint24(header[7:10], uint32(cfg.Height-1))
		chunks.Write(riffChunk("VP8X", header))
		chunks.Write(body)
	}
	chunks.Write(riffChunk("EXIF", orientationTIFF(orientation)))

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+chunks.Len()))
	out.WriteString("WEBP")
	out.Write(chunks.Bytes())
	return out.Bytes()
}

func riffChunk(fourcc string, data []byte) []byte {
	var out bytes.Buffer
	out.WriteString(fourcc)
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(data)))
	out.Write(data)
	if len(data)%2 == 1 {
		out.WriteByte(0)
	}
	return out.Bytes()
}

func putUint24(b []byte, v uint32) {
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}

// BMPHeader returns a 24-bit BMP consisting of headers only. It is a
// complete file when width or height is zero.
func BMPHeader(width, height int32) []byte {
	var out bytes.Buffer
	out.WriteString("BM")
	_ = binary.Write(&out, binary.LittleEndian, uint32(54)) // file size
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))  // reserved
	_ = binary.Write(&out, binary.LittleEndian, uint32(54)) // pixel offset
	_ = binary.Write(&out, binary.LittleEndian, uint32(40)) // BITMAPINFOHEADER
	_ = binary.Write(&out, binary.LittleEndian, width)
	_ = binary.Write(&out, binary.LittleEndian, height)
	_ = binary.Write(&out, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&out, binary.LittleEndian, uint16(24)) // bits per pixel
	// no compression, default sizes and palette
	out.Write(make([]byte, 24))
	return out.Bytes()
}

// DecodeWebP decodes WebP output produced by the normalizer.
func DecodeWebP(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := webp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// Near reports whether every channel of a and b differs by at most tolerance.
func Near(a, b color.Color, tolerance uint8) bool {
	na := color.NRGBAModel.Convert(a).(color.NRGBA)
	nb := color.NRGBAModel.Convert(b).(color.NRGBA)
	return diff(na.R, nb.R) <= tolerance &&
		diff(na.G, nb.G) <= tolerance &&
		diff(na.B, nb.B) <= tolerance &&
		diff(na.A, nb.A) <= tolerance
}

func diff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
