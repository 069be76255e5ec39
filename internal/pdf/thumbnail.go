package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Renderer draws page thumbnails with MuPDF (go-fitz).
type Renderer struct {
	DPI     int
	Quality int
}

func NewRenderer(dpi, quality int) *Renderer {
	if dpi <= 0 {
		dpi = 24
	}
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	return &Renderer{DPI: dpi, Quality: quality}
}

// Thumbnail renders page (0-based) of data as JPEG.
func (r *Renderer) Thumbnail(data []byte, page int, mode ColorMode) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", page+1, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, float64(r.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}

	var final image.Image = img
	if mode == ColorGray {
		bounds := img.Bounds()
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: r.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", page+1).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Str("color", string(mode)).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page thumbnail")
	return buf.Bytes(), nil
}
