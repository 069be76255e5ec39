package selection

import (
	"errors"
	"fmt"

	"github.com/local/pdfmerger/internal/registry"
)

var (
	ErrUnknownDocument = errors.New("unknown document")
	ErrInvalidRange    = errors.New("invalid page range")
)

// entry is one document's page selection. Pages keep the order in which they
// were selected; the merge step sorts them.
type entry struct {
	pageCount int
	pages     []int
}

func (e *entry) has(p int) bool {
	for _, q := range e.pages {
		if q == p {
			return true
		}
	}
	return false
}

func (e *entry) selectAll() {
	e.pages = make([]int, e.pageCount)
	for i := range e.pages {
		e.pages[i] = i
	}
}

// State holds page selections and the active set, keyed by document identity.
// An empty page selection is kept as-is: it means "nothing picked", and the
// merge treats it as the whole document.
type State struct {
	entries map[registry.Identity]*entry
	active  map[registry.Identity]bool
}

func New() *State {
	return &State{
		entries: make(map[registry.Identity]*entry),
		active:  make(map[registry.Identity]bool),
	}
}

// Init enrolls a document with every page selected and marks it active.
func (s *State) Init(id registry.Identity, pageCount int) {
	e := &entry{pageCount: pageCount}
	e.selectAll()
	s.entries[id] = e
	s.active[id] = true
}

// Drop removes the document's selection entry and active membership.
func (s *State) Drop(id registry.Identity) {
	delete(s.entries, id)
	delete(s.active, id)
}

// Reset drops every entry.
func (s *State) Reset() {
	s.entries = make(map[registry.Identity]*entry)
	s.active = make(map[registry.Identity]bool)
}

func (s *State) lookup(id registry.Identity) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	return e, nil
}

// SelectAll selects [0, pageCount).
func (s *State) SelectAll(id registry.Identity) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.selectAll()
	return nil
}

// Clear empties the selection.
func (s *State) Clear(id registry.Identity) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.pages = []int{}
	return nil
}

// Toggle flips page (0-based) and reports whether it is now selected.
// Out-of-range pages are ignored.
func (s *State) Toggle(id registry.Identity, page int) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	if page < 0 || page >= e.pageCount {
		return false, nil
	}
	for i, q := range e.pages {
		if q == page {
			e.pages = append(e.pages[:i], e.pages[i+1:]...)
			return false, nil
		}
	}
	e.pages = append(e.pages, page)
	return true, nil
}

// SelectRange adds the 1-based inclusive range [from, to] to the selection.
func (s *State) SelectRange(id registry.Identity, from, to int) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if from > to || from < 1 || to > e.pageCount {
		return fmt.Errorf("%w: %d-%d of %d pages", ErrInvalidRange, from, to, e.pageCount)
	}
	for p := from - 1; p <= to-1; p++ {
		if !e.has(p) {
			e.pages = append(e.pages, p)
		}
	}
	return nil
}

// Pages returns a copy of the selection in selection order.
func (s *State) Pages(id registry.Identity) ([]int, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(e.pages))
	copy(out, e.pages)
	return out, nil
}

func (s *State) PageCount(id registry.Identity) (int, error) {
	e, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return e.pageCount, nil
}

// SetActive controls whether the document takes part in the next merge.
func (s *State) SetActive(id registry.Identity, active bool) error {
	if _, err := s.lookup(id); err != nil {
		return err
	}
	if active {
		s.active[id] = true
	} else {
		delete(s.active, id)
	}
	return nil
}

func (s *State) IsActive(id registry.Identity) bool { return s.active[id] }

// ActivateAll marks every enrolled document active.
func (s *State) ActivateAll() {
	for id := range s.entries {
		s.active[id] = true
	}
}

// DeactivateAll empties the active set. Page selections are untouched.
func (s *State) DeactivateAll() {
	s.active = make(map[registry.Identity]bool)
}

// ActiveCount returns the size of the active set.
func (s *State) ActiveCount() int { return len(s.active) }
