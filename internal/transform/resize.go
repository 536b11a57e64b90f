package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// TotalPixelLimit caps the pixel count of a resize result.
const TotalPixelLimit uint64 = 25_000_000

// scaleSecondComponent scales secondLen with the same ratio as
// destLen/sourceLen, never returning less than 1.
func scaleSecondComponent(sourceLen, destLen, secondLen int) (int, error) {
	if destLen == 0 {
		return 0, fmt.Errorf("scale error: dest len cannot be 0")
	}
	scale := float64(destLen) / float64(sourceLen)
	scaled := int(math.Round(float64(secondLen) * scale))
	if scaled < 1 {
		scaled = 1
	}
	return scaled, nil
}

// CalculateResultSize computes the geometry of the resize result.
func CalculateResultSize(srcW, srcH int, params ResizeParams) (w, h int, err error) {
	switch params.Mode {
	case ByWidth:
		w = int(params.Value)
		h, err = scaleSecondComponent(srcW, w, srcH)
	case ByHeight:
		h = int(params.Value)
		w, err = scaleSecondComponent(srcH, h, srcW)
	case ByLongestSide:
		if srcW > srcH {
			w = int(params.Value)
			h, err = scaleSecondComponent(srcW, w, srcH)
		} else {
			h = int(params.Value)
			w, err = scaleSecondComponent(srcH, h, srcW)
		}
	default:
		err = fmt.Errorf("bad resize parameters: none of the parameters is defined")
	}
	return w, h, err
}

// Resize produces the resized image for the given params. The result
// geometry is validated against TotalPixelLimit before any pixel work.
func Resize(src image.Image, params ResizeParams) (image.Image, error) {
	bounds := src.Bounds()
	w, h, err := CalculateResultSize(bounds.Dx(), bounds.Dy(), params)
	if err != nil {
		return nil, err
	}
	if pixels := uint64(w) * uint64(h); pixels > TotalPixelLimit {
		return nil, fmt.Errorf("exceeding total_pixels_limit: (%d,%d) ~ %d pixels (limit: %d)",
			h, w, pixels, TotalPixelLimit)
	}
	return imaging.Resize(src, w, h, imaging.Lanczos), nil
}
