package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/logger"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/progress"
)

const (
	OutputName = "merged.pdf"
	OutputMIME = "application/pdf"
)

// Assembler creates output accumulators.
type Assembler interface {
	NewAccumulator() (Accumulator, error)
}

// Accumulator is an output document under construction.
type Accumulator interface {
	// CopyPages appends the given 0-based pages of src, in the given order,
	// after everything copied so far.
	CopyPages(ctx context.Context, src []byte, pages []int) error
	Serialize(ctx context.Context) ([]byte, error)
}

// Deliverer hands the finished output to its consumer and returns where it went.
type Deliverer interface {
	Deliver(ctx context.Context, data []byte, name, mime string) (string, error)
}

type Dependencies struct {
	Assembler Assembler
	Deliverer Deliverer
}

// Orchestrator turns a list of targets into one delivered output document.
type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Result describes a delivered merge.
type Result struct {
	Data      []byte
	Documents int
	Pages     int
	Location  string
}

// Run copies every target's pages in order into one accumulator, serializes
// it, and delivers it. Targets are processed strictly one at a time. The first
// failure aborts the merge and nothing is delivered.
func (o *Orchestrator) Run(ctx context.Context, targets []Target, rep progress.Reporter) (res Result, err error) {
	rep = progress.OrNop(rep)
	if len(targets) == 0 {
		return Result{}, ErrNoDocumentsSelected
	}
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "failed"
			rep.Report(progress.Event{Stage: progress.StageFailed, Message: err.Error()})
		}
		metrics.ObserveMerge(result, time.Since(start))
	}()

	acc, err := o.deps.Assembler.NewAccumulator()
	if err != nil {
		return Result{}, &Error{Phase: PhaseCopy, Err: fmt.Errorf("create accumulator: %w", err)}
	}

	total := len(targets)
	rep.Report(progress.Event{Stage: progress.StageCopying, Done: 0, Total: total})
	pages := 0
	for i, t := range targets {
		id := t.Document.Identity
		dl := logger.WithDocument(log.Logger, id.Name, id.Size)
		dl.Debug().
			Int("index", i+1).
			Int("total", total).
			Ints("pages", t.Pages).
			Bool("all_pages", t.AllPages).
			Msg("copying pages")

		data, err := t.Document.Source.Read(ctx)
		if err != nil {
			return Result{}, &Error{Phase: PhaseRead, Document: &id, Err: err}
		}
		if err := acc.CopyPages(ctx, data, t.Pages); err != nil {
			return Result{}, &Error{Phase: PhaseCopy, Document: &id, Err: err}
		}
		pages += len(t.Pages)
		rep.Report(progress.Event{
			Stage:    progress.StageCopying,
			Done:     i + 1,
			Total:    total,
			Percent:  progress.Scale(i+1, total, 90),
			Document: id.Name,
		})
	}

	rep.Report(progress.Event{Stage: progress.StageSerializing, Done: total, Total: total, Percent: 95})
	out, err := acc.Serialize(ctx)
	if err != nil {
		return Result{}, &Error{Phase: PhaseSerialize, Err: err}
	}

	rep.Report(progress.Event{Stage: progress.StageDelivering, Done: total, Total: total, Percent: 98})
	loc, err := o.deps.Deliverer.Deliver(ctx, out, OutputName, OutputMIME)
	if err != nil {
		return Result{}, &Error{Phase: PhaseDeliver, Err: err}
	}

	metrics.AddMergedPages(pages)
	log.Info().
		Int("documents", total).
		Int("pages", pages).
		Int("bytes", len(out)).
		Str("location", loc).
		Dur("took", time.Since(start)).
		Msg("merge delivered")
	rep.Report(progress.Event{Stage: progress.StageComplete, Done: total, Total: total, Percent: 100, Message: loc})
	return Result{Data: out, Documents: total, Pages: pages, Location: loc}, nil
}

// IsMergeFailure reports whether err is a terminal merge failure, returning it.
func IsMergeFailure(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
