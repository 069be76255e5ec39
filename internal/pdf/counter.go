package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Counter reports page counts with pdfcpu.
type Counter struct{}

func NewCounter() *Counter { return &Counter{} }

// CountPages returns the number of pages in data. data is only read.
func (c *Counter) CountPages(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(data), newConfig())
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
