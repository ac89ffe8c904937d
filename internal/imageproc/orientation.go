package imageproc

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is the value of the EXIF Orientation tag (1-8).
type Orientation int

const (
	OrientationNormal     Orientation = 1
	OrientationFlipH      Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipV      Orientation = 4
	OrientationTranspose  Orientation = 5
	OrientationRotate270  Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRotate90   Orientation = 8
)

type transform func(image.Image) *image.NRGBA

// orientationOps lists the corrections for each tag, applied in order.
// imaging rotates counter-clockwise, so Rotate270 turns the image 90 degrees clockwise.
var orientationOps = map[Orientation][]transform{
	OrientationFlipH:      {imaging.FlipH},
	OrientationRotate180:  {imaging.Rotate180},
	OrientationFlipV:      {imaging.FlipV},
	OrientationTranspose:  {imaging.FlipH, imaging.Rotate90},
	OrientationRotate270:  {imaging.Rotate270},
	OrientationTransverse: {imaging.FlipH, imaging.Rotate270},
	OrientationRotate90:   {imaging.Rotate90},
}

// Valid reports whether o is one of the eight defined EXIF values.
func (o Orientation) Valid() bool {
	return o >= OrientationNormal && o <= OrientationRotate90
}

// SwapsAxes reports whether correcting o exchanges width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientationTranspose && o <= OrientationRotate90
}

// ReadOrientation returns the EXIF orientation embedded in data, which may be
// a JPEG, TIFF, PNG (eXIf chunk) or WebP (EXIF chunk) stream.
// Missing, unreadable or out of range values yield OrientationNormal.
func ReadOrientation(data []byte) (o Orientation) {
	o = OrientationNormal

	// goexif can panic on truncated IFDs; treat that like a missing tag.
	defer func() {
		if recover() != nil {
			o = OrientationNormal
		}
	}()

	payload := exifPayload(data)
	if len(payload) == 0 {
		return OrientationNormal
	}

	x, err := exif.Decode(bytes.NewReader(payload))
	if err != nil {
		return OrientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal
	}
	v, err := tag.Int(0)
	if err != nil || !Orientation(v).Valid() {
		return OrientationNormal
	}
	return Orientation(v)
}

// ApplyOrientation returns img turned upright according to o.
func ApplyOrientation(img image.Image, o Orientation) image.Image {
	ops, ok := orientationOps[o]
	if !ok {
		return img
	}
	for _, op := range ops {
		img = op(img)
	}
	return img
}
