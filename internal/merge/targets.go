package merge

import (
	"fmt"
	"sort"

	"github.com/local/pdfmerger/internal/registry"
)

// SelectionReader is the read side of the selection state.
type SelectionReader interface {
	IsActive(id registry.Identity) bool
	Pages(id registry.Identity) ([]int, error)
}

// Target is an active document and the pages it contributes, ascending.
type Target struct {
	Document registry.Document
	Pages    []int
	// AllPages is set when the selection was empty and the whole document is
	// used instead.
	AllPages bool
}

// Targets filters docs to the active set, keeping registry order, and resolves
// each document's pages. Pages are always copied in ascending order regardless
// of selection order. An empty selection contributes every page: clearing a
// selection does not exclude a document, only deactivating it does.
func Targets(docs []registry.Document, sel SelectionReader) ([]Target, error) {
	var out []Target
	for _, d := range docs {
		if !sel.IsActive(d.Identity) {
			continue
		}
		pages, err := sel.Pages(d.Identity)
		if err != nil {
			return nil, fmt.Errorf("selection for %s: %w", d.Identity, err)
		}
		t := Target{Document: d}
		if len(pages) == 0 {
			t.AllPages = true
			pages = make([]int, d.PageCount)
			for i := range pages {
				pages[i] = i
			}
		} else {
			sort.Ints(pages)
		}
		t.Pages = pages
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrNoDocumentsSelected
	}
	return out, nil
}
