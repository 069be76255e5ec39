package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/pdf"
	"github.com/local/pdfmerger/internal/registry"
	"github.com/local/pdfmerger/internal/selection"
	"github.com/local/pdfmerger/internal/source"
	"github.com/local/pdfmerger/internal/workspace"
)

type documentView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	PageCount int       `json:"page_count"`
	AddedAt   time.Time `json:"added_at"`
	Active    bool      `json:"active"`
	Pages     []int     `json:"selected_pages"`
}

type skipView struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

type loadResp struct {
	Accepted []documentView `json:"accepted"`
	Skipped  []skipView     `json:"skipped"`
}

func viewOf(e workspace.Entry) documentView {
	pages := e.Pages
	if pages == nil {
		pages = []int{}
	}
	return documentView{
		ID:        e.ID,
		Name:      e.Name(),
		Size:      e.Identity.Size,
		PageCount: e.PageCount,
		AddedAt:   e.AddedAt,
		Active:    e.Active,
		Pages:     pages,
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	entries := s.deps.Workspace.Visible(filter)
	out := make([]documentView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": out,
		"total":     s.deps.Workspace.Len(),
		"sort":      s.deps.Workspace.SortMethod(),
	})
}

// handleUpload loads every file of the multipart field "files" as one batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing files")
		return
	}
	cands := make([]workspace.Candidate, 0, len(files))
	for _, hdr := range files {
		f, err := hdr.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot open %s", hdr.Filename))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot read %s", hdr.Filename))
			return
		}
		cands = append(cands, workspace.Candidate{
			Name:   hdr.Filename,
			Size:   hdr.Size,
			Source: source.Bytes(data),
		})
	}
	s.load(w, r, cands, nil)
}

type importReq struct {
	Refs []string `json:"refs"`
}

// handleImport loads documents by reference (s3://, http(s):// or a path
// below the configured import root).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Refs) == 0 {
		writeError(w, http.StatusBadRequest, "missing refs")
		return
	}
	var (
		cands []workspace.Candidate
		bad   []skipView
	)
	for _, ref := range req.Refs {
		src, name, err := s.deps.Resolver.Resolve(ref)
		if err != nil {
			reason := "invalid_reference"
			if errors.Is(err, source.ErrPathNotAllowed) {
				reason = "path_not_allowed"
			}
			bad = append(bad, skipView{Name: ref, Reason: reason, Error: err.Error()})
			continue
		}
		cands = append(cands, workspace.Candidate{Name: name, Source: src})
	}
	s.load(w, r, cands, bad)
}

func (s *Server) load(w http.ResponseWriter, r *http.Request, cands []workspace.Candidate, skipped []skipView) {
	res, err := s.deps.Workspace.Load(r.Context(), cands, nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := loadResp{Accepted: make([]documentView, 0, len(res.Accepted)), Skipped: skipped}
	for _, d := range res.Accepted {
		pages, _ := s.deps.Workspace.Pages(d.Identity)
		out.Accepted = append(out.Accepted, viewOf(workspace.Entry{
			Document: d,
			Active:   s.deps.Workspace.IsActive(d.Identity),
			Pages:    pages,
		}))
	}
	for _, sk := range res.Skipped {
		v := skipView{Name: sk.Name, Reason: sk.Reason}
		if sk.Err != nil {
			v.Error = sk.Err.Error()
		}
		out.Skipped = append(out.Skipped, v)
	}
	if out.Skipped == nil {
		out.Skipped = []skipView{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Workspace.ClearAll(); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (registry.Document, bool) {
	doc, err := s.deps.Workspace.Resolve(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return registry.Document{}, false
	}
	return doc, true
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if err := s.deps.Workspace.Remove(doc.Identity); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveReq struct {
	Position int    `json:"position"`
	Filter   string `json:"filter"`
}

// handleMove moves a document to a position of the (optionally filtered)
// visible list.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var req moveReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	from := -1
	for i, e := range s.deps.Workspace.Visible(req.Filter) {
		if e.Identity == doc.Identity {
			from = i
			break
		}
	}
	if from < 0 {
		writeError(w, http.StatusBadRequest, "document is not visible under filter")
		return
	}
	if err := s.deps.Workspace.MoveVisible(req.Filter, from, req.Position); err != nil {
		writeErr(w, err)
		return
	}
	s.handleList(w, r)
}

type sortReq struct {
	Method string `json:"method"`
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req sortReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := registry.ParseSortMethod(req.Method)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.deps.Workspace.SortBy(m); err != nil {
		writeErr(w, err)
		return
	}
	s.handleList(w, r)
}

type activeReq struct {
	Active *bool `json:"active"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var req activeReq
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "missing active flag")
		return
	}
	if err := s.deps.Workspace.SetActive(doc.Identity, *req.Active); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": doc.ID, "active": *req.Active})
}

func (s *Server) handleActivateAll(w http.ResponseWriter, r *http.Request) {
	var req activeReq
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "missing active flag")
		return
	}
	var err error
	if *req.Active {
		err = s.deps.Workspace.ActivateAll()
	} else {
		err = s.deps.Workspace.DeactivateAll()
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	s.handleList(w, r)
}

func (s *Server) writePages(w http.ResponseWriter, doc registry.Document) {
	pages, err := s.deps.Workspace.Pages(doc.Identity)
	if err != nil {
		writeErr(w, err)
		return
	}
	if pages == nil {
		pages = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             doc.ID,
		"page_count":     doc.PageCount,
		"selected_pages": pages,
	})
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if err := s.deps.Workspace.SelectAll(doc.Identity); err != nil {
		writeErr(w, err)
		return
	}
	s.writePages(w, doc)
}

func (s *Server) handleClearPages(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if err := s.deps.Workspace.ClearPages(doc.Identity); err != nil {
		writeErr(w, err)
		return
	}
	s.writePages(w, doc)
}

// handleToggle flips a 0-based page. Out-of-range pages are a no-op.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if _, err := s.deps.Workspace.Toggle(doc.Identity, page); err != nil {
		writeErr(w, err)
		return
	}
	s.writePages(w, doc)
}

type rangeReq struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// handleSelectRange adds an inclusive 1-based range to the selection.
// Missing bounds default to the first and last page.
func (s *Server) handleSelectRange(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var req rangeReq
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	from, to := 1, doc.PageCount
	if req.From != nil {
		from = *req.From
	}
	if req.To != nil {
		to = *req.To
	}
	if err := s.deps.Workspace.SelectRange(doc.Identity, from, to); err != nil {
		writeErr(w, err)
		return
	}
	s.writePages(w, doc)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if s.deps.Thumbs == nil {
		writeError(w, http.StatusNotImplemented, "thumbnails not configured")
		return
	}
	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil || page < 0 || page >= doc.PageCount {
		writeErr(w, fmt.Errorf("%w: page %s", selection.ErrInvalidRange, mux.Vars(r)["page"]))
		return
	}
	mode := pdf.ColorRGB
	if r.URL.Query().Get("color") == string(pdf.ColorGray) {
		mode = pdf.ColorGray
	}
	data, err := doc.Source.Read(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	img, err := s.deps.Thumbs.Thumbnail(data, page, mode)
	if err != nil {
		log.Warn().Err(err).Str("document", doc.Name()).Int("page", page).Msg("thumbnail failed")
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(img)
}
