package imageproc

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/image/riff"
)

const pngSignature = "\x89PNG\r\n\x1a\n"

var (
	fccWEBP = riff.FourCC{'W', 'E', 'B', 'P'}
	fccEXIF = riff.FourCC{'E', 'X', 'I', 'F'}
)

// exifPayload returns the bytes goexif should read for data. PNG and WebP
// keep EXIF in a chunk of their own; anything else is passed through and
// searched as JPEG or TIFF. A nil result means the container has no EXIF.
func exifPayload(data []byte) []byte {
	switch {
	case bytes.HasPrefix(data, []byte(pngSignature)):
		return pngExif(data[len(pngSignature):])
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return webpExif(data)
	}
	return data
}

// pngExif walks the chunk list looking for eXIf. The chunk may only appear
// before the image data, so the walk stops at IDAT.
func pngExif(chunks []byte) []byte {
	for len(chunks) >= 12 {
		n := binary.BigEndian.Uint32(chunks[:4])
		typ := string(chunks[4:8])
		if uint64(n)+12 > uint64(len(chunks)) {
			return nil
		}
		switch typ {
		case "eXIf":
			return chunks[8 : 8+n]
		case "IDAT", "IEND":
			return nil
		}
		chunks = chunks[12+n:]
	}
	return nil
}

func webpExif(data []byte) []byte {
	form, r, err := riff.NewReader(bytes.NewReader(data))
	if err != nil || form != fccWEBP {
		return nil
	}
	for {
		id, _, chunk, err := r.Next()
		if err != nil {
			return nil
		}
		if id == fccEXIF {
			payload, err := io.ReadAll(chunk)
			if err != nil {
				return nil
			}
			return payload
		}
	}
}
