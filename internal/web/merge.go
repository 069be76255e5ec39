package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/local/pdfmerger/internal/logger"
	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/progress"
	"github.com/local/pdfmerger/internal/store"
)

const (
	jobQueued     = "queued"
	jobProcessing = "processing"
	jobSuccess    = "success"
	jobFailed     = "failed"
)

// handleMerge snapshots the merge targets and runs the merge in the
// background. Busy and empty-selection errors are reported synchronously.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	targets, release, err := s.deps.Workspace.StartMerge()
	if err != nil {
		writeErr(w, err)
		return
	}

	jobID := uuid.NewString()
	start := time.Now()
	meta := map[string]interface{}{"documents": len(targets)}
	if err := s.deps.Status.Set(r.Context(), jobID, store.Status{
		Status: jobQueued, Message: "queued", Start: &start, Metadata: meta,
	}); err != nil {
		release()
		writeError(w, http.StatusInternalServerError, "status store unavailable")
		return
	}
	jl := logger.WithJob(jobID)
	jl.Info().Int("documents", len(targets)).Msg("merge job created")

	// The merge outlives the request and cannot be cancelled.
	ctx := context.WithoutCancel(r.Context())
	go s.runMerge(ctx, jobID, start, targets, release)

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": jobQueued})
}

func (s *Server) runMerge(ctx context.Context, jobID string, start time.Time, targets []merge.Target, release func()) {
	rep := &statusReporter{ctx: ctx, store: s.deps.Status, jobID: jobID, start: start, log: logger.WithJob(jobID)}
	res, err := s.deps.Merger.Run(ctx, targets, rep)
	// the workspace is free again before the terminal status becomes visible
	release()
	end := time.Now()
	if err != nil {
		meta := map[string]interface{}{"documents": len(targets)}
		if me, ok := merge.IsMergeFailure(err); ok {
			meta["phase"] = string(me.Phase)
			if me.Document != nil {
				meta["failed_document"] = me.Document.Name
			}
		}
		rep.log.Error().Err(err).Msg("merge job failed")
		rep.set(store.Status{Status: jobFailed, Progress: rep.last, Message: err.Error(), Start: &start, End: &end, Metadata: meta})
		return
	}
	rep.set(store.Status{
		Status:   jobSuccess,
		Progress: 100,
		Message:  "completed",
		Start:    &start,
		End:      &end,
		Metadata: map[string]interface{}{
			"documents":       res.Documents,
			"pages":           res.Pages,
			"bytes":           len(res.Data),
			"result_location": res.Location,
		},
	})
}

// statusReporter mirrors merge progress into the status store.
type statusReporter struct {
	ctx   context.Context
	store StatusStore
	jobID string
	start time.Time
	last  int
	log   zerolog.Logger
}

func (p *statusReporter) Report(e progress.Event) {
	if e.Stage == progress.StageComplete || e.Stage == progress.StageFailed {
		// terminal states are written by runMerge with full metadata
		return
	}
	p.last = e.Percent
	p.set(store.Status{
		Status:   jobProcessing,
		Progress: e.Percent,
		Message:  progress.Format(e),
		Start:    &p.start,
		Metadata: map[string]interface{}{"stage": string(e.Stage), "done": e.Done, "total": e.Total},
	})
}

func (p *statusReporter) set(st store.Status) {
	if err := p.store.Set(p.ctx, p.jobID, st); err != nil {
		p.log.Warn().Err(err).Msg("failed to persist merge status")
	}
}

func (s *Server) handleMergeStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job"]
	st, ok, err := s.deps.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status store unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    st.Status == jobSuccess,
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	})
}

// handleDownload serves the merged document when it was delivered to the
// local result directory.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job"]
	st, ok, err := s.deps.Status.Get(r.Context(), id)
	if err != nil || !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if st.Status != jobSuccess {
		writeError(w, http.StatusConflict, "merge not finished")
		return
	}
	loc, _ := st.Metadata["result_location"].(string)
	if loc == "" || strings.Contains(loc, "://") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "result not available locally", "location": loc})
		return
	}
	b, err := os.ReadFile(loc)
	if err != nil {
		writeError(w, http.StatusGone, "result expired")
		return
	}
	w.Header().Set("Content-Type", merge.OutputMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", merge.OutputName))
	_, _ = w.Write(b)
}
