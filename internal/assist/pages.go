package assist

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

const DefaultDPI = 144

// PageRenderer turns a PDF document into one PNG per page, in page order.
type PageRenderer interface {
	Render(pdf []byte) ([][]byte, error)
}

type FitzRenderer struct {
	DPI float64
}

func NewFitzRenderer(dpi float64) *FitzRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRenderer{DPI: dpi}
}

func (r *FitzRenderer) Render(pdf []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, errors.New("pdf has no pages")
	}
	pages := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, r.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
