// Package render rasterizes document nodes into PNG or JPEG bytes.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/gaspardpetit/figbridge/internal/protocol"
)

const (
	// MaxDimension caps either side of a rendered image.
	MaxDimension = 16384
	// MaxPixels caps the area of a rendered image, 128 MiB of RGBA.
	MaxPixels = 1 << 25
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrTooLarge          = errors.New("rendered image too large")
	ErrEmptyNode         = errors.New("node has no area")
)

// Shape is what gets drawn for a node.
type Shape struct {
	Width, Height float64
	Fill          color.RGBA
	// Stroke outlines the node when the export includes surrounding content.
	Stroke color.RGBA
}

// DefaultFill is used for nodes without a parseable fill.
var DefaultFill = color.RGBA{R: 0xe5, G: 0xe5, B: 0xe5, A: 0xff}

// Size resolves the pixel size of a w x h node under constraint c.
func Size(w, h float64, c protocol.Constraint) (int, int, error) {
	if w <= 0 || h <= 0 {
		return 0, 0, ErrEmptyNode
	}
	scale := 1.0
	switch c.Type {
	case protocol.ConstraintScale:
		scale = c.Value
	case protocol.ConstraintWidth:
		scale = c.Value / w
	case protocol.ConstraintHeight:
		scale = c.Value / h
	default:
		return 0, 0, fmt.Errorf("%w: constraint %q", protocol.ErrInvalidSettings, c.Type)
	}
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return 0, 0, fmt.Errorf("%w: scale %v", protocol.ErrInvalidSettings, scale)
	}
	fw := math.Max(1, math.Round(w*scale))
	fh := math.Max(1, math.Round(h*scale))
	if fw > MaxDimension || fh > MaxDimension || fw*fh > MaxPixels {
		return 0, 0, fmt.Errorf("%w: %gx%g", ErrTooLarge, fw, fh)
	}
	return int(fw), int(fh), nil
}

// Render draws s with the export settings and encodes the result.
func Render(ctx context.Context, s Shape, settings protocol.ExportSettings) ([]byte, error) {
	format := strings.ToUpper(settings.Format)
	if format == protocol.FormatSVG || format == protocol.FormatPDF {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	w, h, err := Size(s.Width, s.Height, settings.Constraint)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: s.Fill}, image.Point{}, draw.Src)
	if !settings.ContentsOnly && s.Stroke.A > 0 {
		outline(img, s.Stroke)
	}

	var buf bytes.Buffer
	switch format {
	case protocol.FormatPNG:
		err = png.Encode(&buf, img)
	case protocol.FormatJPG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, settings.Format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func outline(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		img.SetRGBA(x, b.Min.Y, c)
		img.SetRGBA(x, b.Max.Y-1, c)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		img.SetRGBA(b.Min.X, y, c)
		img.SetRGBA(b.Max.X-1, y, c)
	}
}

// ParseColor reads #rgb, #rrggbb or #rrggbbaa.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
