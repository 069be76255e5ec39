package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/progress"
	"github.com/local/pdfmerger/internal/registry"
	"github.com/local/pdfmerger/internal/selection"
)

var (
	// ErrBusy is returned by every mutating call while a load or merge runs.
	ErrBusy                 = errors.New("workspace busy: a load or merge is in progress")
	ErrUnsupportedType      = errors.New("unsupported document type")
	ErrPageCountUnavailable = errors.New("page count unavailable")
	ErrNotFound             = registry.ErrNotFound
)

// PageCounter reports the number of pages of a raw document. It must not
// modify data.
type PageCounter interface {
	CountPages(ctx context.Context, data []byte) (int, error)
}

// TypeChecker decides whether raw bytes are a supported document type.
type TypeChecker interface {
	Supported(data []byte) (mime string, ok bool)
}

// Merger runs a merge over prepared targets.
type Merger interface {
	Run(ctx context.Context, targets []merge.Target, rep progress.Reporter) (merge.Result, error)
}

type Dependencies struct {
	Counter PageCounter
	Types   TypeChecker
}

type Options struct {
	Locale     string
	SortMethod registry.SortMethod
	Now        func() time.Time
}

// Entry is a registered document with its selection state.
type Entry struct {
	registry.Document
	Active bool
	Pages  []int
}

// Workspace owns the registry, the selection state and the active set of one
// session. All methods are safe for concurrent use; mutations are atomic and
// rejected with ErrBusy while a load or merge is in flight.
type Workspace struct {
	deps Dependencies

	mu         sync.Mutex
	busy       bool
	reg        *registry.Registry
	sel        *selection.State
	sortMethod registry.SortMethod
}

func New(deps Dependencies, opts Options) *Workspace {
	if opts.SortMethod == "" {
		opts.SortMethod = registry.DefaultSortMethod
	}
	return &Workspace{
		deps:       deps,
		reg:        registry.New(registry.Options{Locale: opts.Locale, Now: opts.Now}),
		sel:        selection.New(),
		sortMethod: opts.SortMethod,
	}
}

// acquire marks the workspace busy for the duration of a load or merge.
func (w *Workspace) acquire() (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return nil, ErrBusy
	}
	w.busy = true
	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			w.busy = false
			w.mu.Unlock()
		})
	}, nil
}

// mutate runs fn under the lock unless the workspace is busy.
func (w *Workspace) mutate(fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	return fn()
}

// Busy reports whether a load or merge is in flight.
func (w *Workspace) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

func (w *Workspace) lookup(handle string) (registry.Document, error) {
	d, ok := w.reg.Lookup(handle)
	if !ok {
		return registry.Document{}, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return d, nil
}

// Resolve maps an API handle to the document identity.
func (w *Workspace) Resolve(handle string) (registry.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lookup(handle)
}

// Visible returns the filtered projection in registry order.
func (w *Workspace) Visible(filter string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	docs := w.reg.Visible(filter)
	out := make([]Entry, 0, len(docs))
	for _, d := range docs {
		pages, _ := w.sel.Pages(d.Identity)
		out = append(out, Entry{Document: d, Active: w.sel.IsActive(d.Identity), Pages: pages})
	}
	return out
}

// Len returns the number of registered documents.
func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.Len()
}

func (w *Workspace) SortMethod() registry.SortMethod {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortMethod
}

// Remove deletes a document and its selection state. Unknown identities are
// ignored.
func (w *Workspace) Remove(id registry.Identity) error {
	return w.mutate(func() error {
		if w.reg.Remove(id) {
			w.sel.Drop(id)
			metrics.SetWorkspaceDocuments(w.reg.Len())
		}
		return nil
	})
}

// ClearAll empties the registry and all derived state.
func (w *Workspace) ClearAll() error {
	return w.mutate(func() error {
		w.reg.Clear()
		w.sel.Reset()
		metrics.SetWorkspaceDocuments(0)
		return nil
	})
}

func (w *Workspace) Reorder(id registry.Identity, target int) error {
	return w.mutate(func() error { return w.reg.Reorder(id, target) })
}

// MoveVisible performs a move expressed in positions of the filtered view.
func (w *Workspace) MoveVisible(filter string, from, to int) error {
	return w.mutate(func() error { return w.reg.MoveVisible(filter, from, to) })
}

// SortBy sorts the registry and remembers the method for later loads.
func (w *Workspace) SortBy(m registry.SortMethod) error {
	return w.mutate(func() error {
		if err := w.reg.SortBy(m); err != nil {
			return err
		}
		w.sortMethod = m
		return nil
	})
}

func (w *Workspace) SelectAll(id registry.Identity) error {
	return w.mutate(func() error { return w.sel.SelectAll(id) })
}

func (w *Workspace) ClearPages(id registry.Identity) error {
	return w.mutate(func() error { return w.sel.Clear(id) })
}

func (w *Workspace) Toggle(id registry.Identity, page int) (bool, error) {
	var selected bool
	err := w.mutate(func() error {
		var err error
		selected, err = w.sel.Toggle(id, page)
		return err
	})
	return selected, err
}

func (w *Workspace) SelectRange(id registry.Identity, from, to int) error {
	return w.mutate(func() error { return w.sel.SelectRange(id, from, to) })
}

func (w *Workspace) SetActive(id registry.Identity, active bool) error {
	return w.mutate(func() error { return w.sel.SetActive(id, active) })
}

func (w *Workspace) IsActive(id registry.Identity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sel.IsActive(id)
}

// Pages returns the document's selection in selection order.
func (w *Workspace) Pages(id registry.Identity) ([]int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sel.Pages(id)
}

// ActivateAll adds every document to the active set.
func (w *Workspace) ActivateAll() error {
	return w.mutate(func() error { w.sel.ActivateAll(); return nil })
}

// DeactivateAll empties the active set.
func (w *Workspace) DeactivateAll() error {
	return w.mutate(func() error { w.sel.DeactivateAll(); return nil })
}

// StartMerge locks the workspace against mutation and computes the merge
// targets. The caller must invoke release once the merge has finished. On
// error the workspace is left unlocked.
func (w *Workspace) StartMerge() ([]merge.Target, func(), error) {
	release, err := w.acquire()
	if err != nil {
		return nil, nil, err
	}
	w.mu.Lock()
	targets, err := merge.Targets(w.reg.Documents(), w.sel)
	w.mu.Unlock()
	if err != nil {
		release()
		return nil, nil, err
	}
	return targets, release, nil
}

// Merge runs a full merge with m while holding the workspace.
func (w *Workspace) Merge(ctx context.Context, m Merger, rep progress.Reporter) (merge.Result, error) {
	targets, release, err := w.StartMerge()
	if err != nil {
		return merge.Result{}, err
	}
	defer release()
	return m.Run(ctx, targets, rep)
}
