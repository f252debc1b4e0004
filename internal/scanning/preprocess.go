package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// TargetSize is the length of the longer edge of every preprocessed frame
const TargetSize = 1200

// Preprocess forces a frame to opaque RGB and scales it so the longer edge
// is exactly TargetSize, keeping the aspect ratio.
func Preprocess(img image.Image) *image.RGBA {
	rgb := toRGB(img)

	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	newW, newH := targetDimensions(w, h)
	if newW == w && newH == h {
		return rgb
	}

	// CatmullRom keeps text edges sharp; nearest-neighbour aliasing hurts recognition
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)
	return dst
}

// targetDimensions scales (w, h) so that max(w, h) == TargetSize, rounding
// the shorter edge to the nearest pixel.
func targetDimensions(w, h int) (int, int) {
	if w <= 0 || h <= 0 || max(w, h) == TargetSize {
		return w, h
	}
	if w >= h {
		return TargetSize, scaleEdge(h, w)
	}
	return scaleEdge(w, h), TargetSize
}

func scaleEdge(short, long int) int {
	return max(1, int(math.Round(float64(short)*TargetSize/float64(long))))
}

// toRGB flattens any image onto a white background, yielding an opaque
// RGBA image anchored at the origin. Transparency, palettes and grayscale
// all end up as plain three-channel color.
func toRGB(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && rgba.Opaque() {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// EncodeFrame encodes a preprocessed frame as PNG. Opaque frames are written
// as 8-bit RGB.
func EncodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
