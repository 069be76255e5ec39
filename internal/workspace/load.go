package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/progress"
	"github.com/local/pdfmerger/internal/registry"
	"github.com/local/pdfmerger/internal/source"
)

// Candidate is one document offered for loading. Size may be zero when it is
// not known up front; it is then taken from the bytes read.
type Candidate struct {
	Name   string
	Size   int64
	Source source.Source
}

// Skip records a candidate that was not registered.
type Skip struct {
	Name   string
	Reason string
	Err    error
}

// LoadResult summarizes a batch load.
type LoadResult struct {
	Accepted []registry.Document
	Skipped  []Skip
}

// Register loads a single candidate and appends it to the registry.
func (w *Workspace) Register(ctx context.Context, c Candidate) (registry.Document, error) {
	release, err := w.acquire()
	if err != nil {
		return registry.Document{}, err
	}
	defer release()
	return w.register(ctx, c)
}

// Load registers candidates strictly in input order. Duplicates, unsupported
// files and files whose page count cannot be read are skipped; they never
// abort the batch. Once the batch is done the current sort method is applied
// again.
func (w *Workspace) Load(ctx context.Context, cands []Candidate, rep progress.Reporter) (LoadResult, error) {
	rep = progress.OrNop(rep)
	release, err := w.acquire()
	if err != nil {
		return LoadResult{}, err
	}
	defer release()

	var res LoadResult
	total := len(cands)
	for i, c := range cands {
		rep.Report(progress.Event{
			Stage:    progress.StageLoading,
			Done:     i,
			Total:    total,
			Percent:  progress.Scale(i, total, 100),
			Document: c.Name,
		})
		doc, err := w.register(ctx, c)
		if err != nil {
			reason := skipReason(err)
			metrics.IncLoaded(reason)
			log.Warn().Err(err).Str("document", c.Name).Str("reason", reason).Msg("load candidate skipped")
			res.Skipped = append(res.Skipped, Skip{Name: c.Name, Reason: reason, Err: err})
			continue
		}
		metrics.IncLoaded("accepted")
		res.Accepted = append(res.Accepted, doc)
	}

	w.mu.Lock()
	if err := w.reg.SortBy(w.sortMethod); err != nil {
		log.Warn().Err(err).Str("method", string(w.sortMethod)).Msg("re-sort after load failed")
	}
	w.mu.Unlock()

	log.Info().
		Int("candidates", total).
		Int("accepted", len(res.Accepted)).
		Int("skipped", len(res.Skipped)).
		Msg("batch load finished")
	rep.Report(progress.Event{Stage: progress.StageComplete, Done: total, Total: total, Percent: 100})
	return res, nil
}

// register runs the load pipeline for one candidate. The caller holds the
// busy flag.
func (w *Workspace) register(ctx context.Context, c Candidate) (registry.Document, error) {
	if c.Source == nil {
		return registry.Document{}, fmt.Errorf("%w: %s has no source", ErrPageCountUnavailable, c.Name)
	}
	if c.Size > 0 && w.contains(registry.Identity{Name: c.Name, Size: c.Size}) {
		return registry.Document{}, fmt.Errorf("%w: %s", registry.ErrDuplicateDocument, c.Name)
	}

	data, err := c.Source.Read(ctx)
	if err != nil {
		return registry.Document{}, fmt.Errorf("%w: read %s: %w", ErrPageCountUnavailable, c.Name, err)
	}
	size := c.Size
	if size <= 0 {
		size = int64(len(data))
	}
	if w.deps.Types != nil {
		if mime, ok := w.deps.Types.Supported(data); !ok {
			return registry.Document{}, fmt.Errorf("%w: %s is %s", ErrUnsupportedType, c.Name, mime)
		}
	}
	n, err := w.deps.Counter.CountPages(ctx, data)
	if err != nil {
		return registry.Document{}, fmt.Errorf("%w: %s: %v", ErrPageCountUnavailable, c.Name, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	doc, err := w.reg.Add(registry.Document{
		Identity:  registry.Identity{Name: c.Name, Size: size},
		PageCount: n,
		Source:    c.Source,
	})
	if err != nil {
		return registry.Document{}, err
	}
	w.sel.Init(doc.Identity, n)
	metrics.SetWorkspaceDocuments(w.reg.Len())
	log.Debug().Str("document", c.Name).Int64("size", size).Int("pages", n).Msg("document registered")
	return doc, nil
}

func (w *Workspace) contains(id registry.Identity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.Contains(id)
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, registry.ErrDuplicateDocument):
		return "duplicate"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported"
	case errors.Is(err, source.ErrTooLarge):
		return "too_large"
	default:
		return "page_count_unavailable"
	}
}
