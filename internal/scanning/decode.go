package scanning

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Source tags where an upload came from
type Source string

const (
	SourceMultipartFile Source = "multipart-file"
	SourceInlineCapture Source = "inline-capture"
)

const (
	// pdfRenderDPI is the fixed output resolution for rendered PDF pages
	pdfRenderDPI = 200
	// pdfPointsPerInch is the unit of fitz page bounds
	pdfPointsPerInch = 72

	// maxFramePixels caps width*height of any frame before it is decoded or
	// rendered. Same ceiling PIL uses for its decompression-bomb check.
	maxFramePixels = 89_478_485
)

var pdfMagic = []byte("%PDF")

// DecodeUpload turns raw upload bytes into frames, one per page for PDFs and
// exactly one for images. Inline captures are base64 text, optionally behind
// a data-URL header. Every failure wraps ErrUnsupportedInput; a payload with
// no bytes left after decoding also wraps ErrEmptyPayload.
func DecodeUpload(data []byte, source Source) ([]image.Image, error) {
	if source == SourceInlineCapture {
		decoded, err := DecodeDataURL(string(data))
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedInput, ErrEmptyPayload)
	}

	if isPDFFormat(data) {
		return pdfToFrames(data)
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return []image.Image{toRGB(img)}, nil
}

// DecodeDataURL decodes an inline capture such as "data:image/png;base64,...".
// Everything up to the first comma is a metadata header and is discarded.
func DecodeDataURL(payload string) ([]byte, error) {
	if _, encoded, ok := strings.Cut(payload, ","); ok {
		payload = encoded
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64: %v", ErrUnsupportedInput, err)
	}
	return data, nil
}

// pdfToFrames renders every page of a PDF, preserving page order
func pdfToFrames(pdfData []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrUnsupportedInput, err)
	}
	defer doc.Close()

	frames := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		bound, err := doc.Bound(n)
		if err != nil {
			return nil, fmt.Errorf("%w: reading PDF page %d: %v", ErrUnsupportedInput, n+1, err)
		}
		width := bound.Dx() * pdfRenderDPI / pdfPointsPerInch
		height := bound.Dy() * pdfRenderDPI / pdfPointsPerInch
		if err := checkFrameSize(width, height); err != nil {
			return nil, fmt.Errorf("PDF page %d: %w", n+1, err)
		}

		img, err := doc.ImageDPI(n, pdfRenderDPI)
		if err != nil {
			return nil, fmt.Errorf("%w: rendering PDF page %d: %v", ErrUnsupportedInput, n+1, err)
		}
		frames = append(frames, toRGB(img))
	}
	return frames, nil
}

// decodeImage decodes any supported raster format, HEIC included
func decodeImage(imageData []byte) (image.Image, error) {
	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) {
		cfg, err := heic.DecodeConfig(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrUnsupportedInput, err)
		}
		if err := checkFrameSize(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrUnsupportedInput, err)
		}
		return img, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %v", ErrUnsupportedInput, err)
	}
	if err := checkFrameSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %v", ErrUnsupportedInput, err)
	}
	return img, nil
}

// checkFrameSize rejects frames whose pixel count exceeds maxFramePixels
func checkFrameSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: frame has no pixels (%dx%d)", ErrUnsupportedInput, width, height)
	}
	if int64(width)*int64(height) > maxFramePixels {
		return fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrUnsupportedInput, width, height, maxFramePixels)
	}
	return nil
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIF-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
