package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/pdfmerger/internal/merge"
)

var ErrEmptyOutput = errors.New("no pages copied")

// Assembler builds merge outputs with pdfcpu. Each CopyPages call trims the
// source down to the requested pages; Serialize joins the trimmed parts in
// order.
type Assembler struct{}

func NewAssembler() *Assembler { return &Assembler{} }

func (a *Assembler) NewAccumulator() (merge.Accumulator, error) {
	return &Accumulator{}, nil
}

// Accumulator collects trimmed single-source PDFs.
type Accumulator struct {
	parts [][]byte
	pages int
}

// Pages returns the number of pages copied so far.
func (a *Accumulator) Pages() int { return a.pages }

// CopyPages appends pages (0-based, strictly ascending) of src.
func (a *Accumulator) CopyPages(ctx context.Context, src []byte, pages []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	total, err := api.PageCount(bytes.NewReader(src), newConfig())
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	sel := make([]string, len(pages))
	for i, p := range pages {
		if p < 0 || p >= total {
			return fmt.Errorf("page %d out of range (document has %d pages)", p+1, total)
		}
		if i > 0 && p <= pages[i-1] {
			return fmt.Errorf("pages must be strictly ascending, got %d after %d", p, pages[i-1])
		}
		sel[i] = strconv.Itoa(p + 1)
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(src), &buf, sel, newConfig()); err != nil {
		return fmt.Errorf("copy pages: %w", err)
	}
	a.parts = append(a.parts, buf.Bytes())
	a.pages += len(pages)
	return nil
}

// Serialize returns the final document bytes.
func (a *Accumulator) Serialize(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch len(a.parts) {
	case 0:
		return nil, ErrEmptyOutput
	case 1:
		return a.parts[0], nil
	}
	rsc := make([]io.ReadSeeker, len(a.parts))
	for i, p := range a.parts {
		rsc[i] = bytes.NewReader(p)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, newConfig()); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return out.Bytes(), nil
}
