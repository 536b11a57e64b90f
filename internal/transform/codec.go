package transform

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const jpegQuality = 85
const webpQuality = 85

// isWebP sniffs the RIFF/WEBP container magic.
func isWebP(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP"
}

// Load reads and decodes the image at path. WEBP sources are decoded
// explicitly; everything else goes through the imaging decoder.
func Load(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read image: %w", err)
	}
	if isWebP(b) {
		img, err := webp.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("unable to decode webp image: %w", err)
		}
		return img, nil
	}
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}
	return img, nil
}

// Encode serializes the image into a Blob in the target format.
func Encode(img image.Image, format Format) (*Blob, error) {
	var buf bytes.Buffer
	switch format {
	case JPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("jpeg encoding failed: %w", err)
		}
	case PNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("png encoding failed: %w", err)
		}
	case GIF:
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, fmt.Errorf("gif encoding failed: %w", err)
		}
	case WEBP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: webpQuality}); err != nil {
			return nil, fmt.Errorf("webp encoding failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("undefined image type")
	}
	return NewBlob(buf.Bytes()), nil
}
