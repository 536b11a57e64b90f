// Package transform holds the image-transformation domain: request keys,
// resize parameters, geometry math, and the encode/decode codecs.
package transform

import (
	"fmt"
	"strings"
)

// Format is a target image format supported by shrimp.
type Format int

const (
	JPEG Format = iota
	PNG
	GIF
	WEBP
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpg"
	case PNG:
		return "png"
	case GIF:
		return "gif"
	case WEBP:
		return "webp"
	}
	return "unknown"
}

// ContentType returns the value for the Content-Type header field.
func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case WEBP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// FormatFromExtension detects a format from a file extension or a
// target-format query value, case-insensitively.
func FormatFromExtension(ext string) (Format, bool) {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return JPEG, true
	case "png":
		return PNG, true
	case "gif":
		return GIF, true
	case "webp":
		return WEBP, true
	}
	return 0, false
}

// Mode selects how the target geometry is derived from a single value.
type Mode int

const (
	// KeepOriginal re-encodes without resizing.
	KeepOriginal Mode = iota
	ByWidth
	ByHeight
	ByLongestSide
)

func (m Mode) String() string {
	switch m {
	case ByWidth:
		return "width"
	case ByHeight:
		return "height"
	case ByLongestSide:
		return "max_side"
	case KeepOriginal:
		return "keep_original"
	}
	return "unknown"
}

// MaxSide is the largest value accepted for any resize dimension.
const MaxSide uint32 = 5000

// ResizeParams is the resize mode plus its single dimension value.
// Value is meaningless in KeepOriginal mode.
type ResizeParams struct {
	Mode  Mode
	Value uint32
}

// MakeResizeParams builds params from the optional width/height/max query
// values. All absent means keep the original size; more than one set is an
// error.
func MakeResizeParams(width, height, maxSide *uint32) (ResizeParams, error) {
	count := 0
	for _, v := range []*uint32{width, height, maxSide} {
		if v != nil {
			count++
		}
	}
	switch {
	case count == 0:
		return ResizeParams{Mode: KeepOriginal}, nil
	case count > 1:
		return ResizeParams{}, fmt.Errorf("resize params error: exactly one parameter must be defined")
	}

	switch {
	case width != nil:
		return ResizeParams{Mode: ByWidth, Value: *width}, nil
	case height != nil:
		return ResizeParams{Mode: ByHeight, Value: *height}, nil
	default:
		return ResizeParams{Mode: ByLongestSide, Value: *maxSide}, nil
	}
}

// CheckConstraints validates the dimension value against (0, MaxSide].
func (p ResizeParams) CheckConstraints() error {
	if p.Mode == KeepOriginal {
		return nil
	}
	if p.Value == 0 {
		return fmt.Errorf("resize params error: %s cannot be 0", p.Mode)
	}
	if p.Value > MaxSide {
		return fmt.Errorf("resize params error: specified %s (%d) is too big, max possible value is %d",
			p.Mode, p.Value, MaxSide)
	}
	return nil
}

func (p ResizeParams) String() string {
	if p.Mode == KeepOriginal {
		return "{keep_original}"
	}
	var tag string
	switch p.Mode {
	case ByWidth:
		tag = "w"
	case ByHeight:
		tag = "h"
	case ByLongestSide:
		tag = "m"
	}
	return fmt.Sprintf("{%s %d}", tag, p.Value)
}

// RequestKey uniquely identifies a transformation output. Equality is
// structural; the type is comparable and usable as a map key.
type RequestKey struct {
	Path   string
	Format Format
	Params ResizeParams
}

func (k RequestKey) String() string {
	return fmt.Sprintf("{{path %s} {format: %s} {params: %s}}", k.Path, k.Format, k.Params)
}
