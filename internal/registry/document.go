package registry

import (
	"fmt"
	"time"

	"github.com/local/pdfmerger/internal/source"
)

// Identity is the dedupe key of a loaded document.
type Identity struct {
	Name string
	Size int64
}

func (i Identity) String() string { return fmt.Sprintf("%s (%d bytes)", i.Name, i.Size) }

// Document is one loaded source PDF with a known page count.
type Document struct {
	// ID is an opaque handle for addressing the document over the API.
	ID        string
	Identity  Identity
	PageCount int
	AddedAt   time.Time
	Source    source.Source
}

func (d Document) Name() string { return d.Identity.Name }
