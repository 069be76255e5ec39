package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateDocument = errors.New("duplicate document")
	ErrNotFound          = errors.New("document not found")
	ErrInvalidPosition   = errors.New("invalid position")
)

// Options configures a Registry.
type Options struct {
	// Locale drives ByName collation. Empty means "en".
	Locale string
	// Now overrides the registration clock (tests).
	Now func() time.Time
}

// Registry is the ordered sequence of loaded documents. It is not safe for
// concurrent use; the workspace serializes access.
type Registry struct {
	docs   []Document
	locale string
	now    func() time.Time
}

func New(opts Options) *Registry {
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{locale: opts.Locale, now: opts.Now}
}

// Add appends doc to the end of the sequence, stamping ID and AddedAt.
func (r *Registry) Add(doc Document) (Document, error) {
	if r.indexOf(doc.Identity) >= 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.Identity)
	}
	doc.ID = uuid.NewString()
	doc.AddedAt = r.now()
	r.docs = append(r.docs, doc)
	return doc, nil
}

// Contains reports whether a document with the given identity is registered.
func (r *Registry) Contains(id Identity) bool { return r.indexOf(id) >= 0 }

// Remove deletes the document. It reports false when absent.
func (r *Registry) Remove(id Identity) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.docs = append(r.docs[:i], r.docs[i+1:]...)
	return true
}

// Clear empties the sequence.
func (r *Registry) Clear() { r.docs = nil }

func (r *Registry) Len() int { return len(r.docs) }

func (r *Registry) Get(id Identity) (Document, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return Document{}, false
	}
	return r.docs[i], true
}

// Lookup finds a document by its API handle.
func (r *Registry) Lookup(handle string) (Document, bool) {
	for _, d := range r.docs {
		if d.ID == handle {
			return d, true
		}
	}
	return Document{}, false
}

// Documents returns a copy of the sequence in registry order.
func (r *Registry) Documents() []Document {
	out := make([]Document, len(r.docs))
	copy(out, r.docs)
	return out
}

// Visible returns the documents whose name contains filter, case-insensitively,
// in registry order. An empty filter yields the full sequence.
func (r *Registry) Visible(filter string) []Document {
	if filter == "" {
		return r.Documents()
	}
	needle := strings.ToLower(filter)
	out := make([]Document, 0, len(r.docs))
	for _, d := range r.docs {
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			out = append(out, d)
		}
	}
	return out
}

// Reorder moves one document to target. Other documents keep their relative
// order. Targets past either end are clamped.
func (r *Registry) Reorder(id Identity, target int) error {
	from := r.indexOf(id)
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.move(from, clamp(target, 0, len(r.docs)-1))
	return nil
}

// MoveVisible moves the document at position from of the filtered projection to
// position to of that projection. The absolute placement is derived from the
// identities of the moved document's new neighbours in the projection, so
// documents hidden by the filter keep their places.
func (r *Registry) MoveVisible(filter string, from, to int) error {
	view := r.Visible(filter)
	if from < 0 || from >= len(view) {
		return fmt.Errorf("%w: %d of %d visible", ErrInvalidPosition, from, len(view))
	}
	to = clamp(to, 0, len(view)-1)
	if from == to {
		return nil
	}
	moved := view[from]

	reordered := make([]Document, 0, len(view))
	reordered = append(reordered, view[:from]...)
	reordered = append(reordered, view[from+1:]...)
	reordered = append(reordered[:to], append([]Document{moved}, reordered[to:]...)...)

	src := r.indexOf(moved.Identity)
	d := r.docs[src]
	r.docs = append(r.docs[:src], r.docs[src+1:]...)

	var at int
	if to > 0 {
		at = r.indexOf(reordered[to-1].Identity) + 1
	} else {
		at = r.indexOf(reordered[1].Identity)
	}
	r.docs = append(r.docs[:at], append([]Document{d}, r.docs[at:]...)...)
	return nil
}

// SortBy reorders the whole sequence in place.
func (r *Registry) SortBy(m SortMethod) error {
	less, err := m.less(r.locale)
	if err != nil {
		return err
	}
	sortStable(r.docs, less)
	return nil
}

func (r *Registry) move(from, to int) {
	if from == to {
		return
	}
	d := r.docs[from]
	r.docs = append(r.docs[:from], r.docs[from+1:]...)
	r.docs = append(r.docs[:to], append([]Document{d}, r.docs[to:]...)...)
}

func (r *Registry) indexOf(id Identity) int {
	for i, d := range r.docs {
		if d.Identity == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
