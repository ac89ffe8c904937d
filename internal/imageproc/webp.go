package imageproc

import (
	"bytes"
	"image"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Extension is the file extension of every stored derivative.
const Extension = ".webp"

// webpMethod trades encoding speed for size; 6 is the slowest and smallest.
const webpMethod = 6

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(clampQuality(quality)))
	if err != nil {
		return nil, EncodeError.Wrap(err)
	}
	options.Method = webpMethod

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, EncodeError.Wrap(err)
	}
	return buf.Bytes(), nil
}
