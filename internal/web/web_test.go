package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfmerger/internal/delivery"
	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/pdf"
	"github.com/local/pdfmerger/internal/registry"
	"github.com/local/pdfmerger/internal/selection"
	"github.com/local/pdfmerger/internal/statuscheck"
	"github.com/local/pdfmerger/internal/store"
	"github.com/local/pdfmerger/internal/workspace"
)

// lengthCounter treats each byte of content as one page.
type lengthCounter struct{}

func (lengthCounter) CountPages(_ context.Context, data []byte) (int, error) { return len(data), nil }

type pdfOnly struct{}

func (pdfOnly) Supported(data []byte) (string, bool) {
	if bytes.HasPrefix(data, []byte("txt")) {
		return "text/plain", false
	}
	return "application/pdf", true
}

// joinAssembler concatenates the selected page bytes of each source.
type joinAssembler struct{}

func (joinAssembler) NewAccumulator() (merge.Accumulator, error) { return &joinAcc{}, nil }

type joinAcc struct{ buf bytes.Buffer }

func (a *joinAcc) CopyPages(_ context.Context, src []byte, pages []int) error {
	for _, p := range pages {
		a.buf.WriteByte(src[p])
	}
	return nil
}

func (a *joinAcc) Serialize(context.Context) ([]byte, error) { return a.buf.Bytes(), nil }

type stubThumbs struct{}

func (stubThumbs) Thumbnail(data []byte, page int, _ pdf.ColorMode) ([]byte, error) {
	return []byte{0xff, 0xd8, data[page]}, nil
}

type healthy struct{}

func (healthy) Summary(context.Context) statuscheck.Summary {
	ok := statuscheck.Status{OK: true, Message: "ok"}
	return statuscheck.Summary{Redis: ok, S3: ok, Results: ok, MuPDF: ok}
}

func newTestServer(t *testing.T) (*httptest.Server, *workspace.Workspace) {
	t.Helper()
	ws := workspace.New(workspace.Dependencies{Counter: lengthCounter{}, Types: pdfOnly{}}, workspace.Options{})
	orch := merge.New(merge.Dependencies{
		Assembler: joinAssembler{},
		Deliverer: delivery.NewLocal(t.TempDir(), 0),
	})
	s := New(Dependencies{
		Workspace: ws,
		Merger:    orch,
		Status:    store.NewMemoryStatus(time.Hour),
		Thumbs:    stubThumbs{},
		Health:    healthy{},
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, ws
}

func upload(t *testing.T, srv *httptest.Server, files map[string]string, order ...string) loadResp {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range order {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/documents", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out loadResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func do(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type listResp struct {
	Documents []documentView `json:"documents"`
	Total     int            `json:"total"`
	Sort      string         `json:"sort"`
}

func TestUploadAndList(t *testing.T) {
	srv, _ := newTestServer(t)

	out := upload(t, srv, map[string]string{
		"a.pdf":     "AAA",
		"notes.txt": "txt",
		"b.pdf":     "BB",
	}, "a.pdf", "notes.txt", "b.pdf", "a.pdf")

	require.Len(t, out.Accepted, 2)
	assert.Equal(t, "a.pdf", out.Accepted[0].Name)
	assert.Equal(t, 3, out.Accepted[0].PageCount)
	assert.True(t, out.Accepted[0].Active)
	assert.Equal(t, []int{0, 1, 2}, out.Accepted[0].Pages)
	require.Len(t, out.Skipped, 2)
	assert.Equal(t, "unsupported", out.Skipped[0].Reason)
	assert.Equal(t, "duplicate", out.Skipped[1].Reason)

	var list listResp
	decode(t, do(t, http.MethodGet, srv.URL+"/api/v1/documents?filter=B.", nil), &list)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, "b.pdf", list.Documents[0].Name)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "date", list.Sort)
}

func TestUpload_MissingFiles(t *testing.T) {
	srv, _ := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/documents", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImport_InvalidReferenceIsSkipped(t *testing.T) {
	srv, _ := newTestServer(t)
	var out loadResp
	resp := do(t, http.MethodPost, srv.URL+"/api/v1/documents/import", importReq{Refs: []string{"s3://bucket"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Empty(t, out.Accepted)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "invalid_reference", out.Skipped[0].Reason)
}

func TestImport_PathRefsRejectedWithoutRoot(t *testing.T) {
	srv, ws := newTestServer(t)
	var out loadResp
	resp := do(t, http.MethodPost, srv.URL+"/api/v1/documents/import", importReq{Refs: []string{
		"/etc/hosts",
		"file:///etc/passwd",
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Empty(t, out.Accepted)
	require.Len(t, out.Skipped, 2)
	for _, sk := range out.Skipped {
		assert.Equal(t, "path_not_allowed", sk.Reason)
	}
	assert.Equal(t, 0, ws.Len())
}

func TestPageSelectionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	out := upload(t, srv, map[string]string{"a.pdf": "ABCDE"}, "a.pdf")
	id := out.Accepted[0].ID
	base := srv.URL + "/api/v1/documents/" + id

	var pages struct {
		Selected []int `json:"selected_pages"`
	}
	resp := do(t, http.MethodDelete, base+"/pages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &pages)
	assert.Empty(t, pages.Selected)

	decode(t, do(t, http.MethodPost, base+"/pages/3/toggle", nil), &pages)
	assert.Equal(t, []int{3}, pages.Selected)

	decode(t, do(t, http.MethodPost, base+"/pages/range", map[string]int{"from": 1, "to": 2}), &pages)
	assert.Equal(t, []int{3, 0, 1}, pages.Selected)

	resp = do(t, http.MethodPost, base+"/pages/range", map[string]int{"from": 4, "to": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	decode(t, do(t, http.MethodPost, base+"/pages/all", nil), &pages)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, pages.Selected)

	resp = do(t, http.MethodGet, base+"/pages/1/thumbnail", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	img, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 'B'}, img)

	resp = do(t, http.MethodGet, base+"/pages/9/thumbnail", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/api/v1/documents/nope/pages/all", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e map[string]string
	decode(t, resp, &e)
	assert.Contains(t, e["error"], "not found")
}

func TestSortAndMove(t *testing.T) {
	srv, _ := newTestServer(t)
	out := upload(t, srv, map[string]string{"c.pdf": "C", "a.pdf": "A", "b.pdf": "B"}, "c.pdf", "a.pdf", "b.pdf")

	var list listResp
	decode(t, do(t, http.MethodPost, srv.URL+"/api/v1/documents/sort", sortReq{Method: "name"}), &list)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, viewNames(list.Documents))

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/documents/sort", sortReq{Method: "size"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c := out.Accepted[0].ID
	decode(t, do(t, http.MethodPost, srv.URL+"/api/v1/documents/"+c+"/move", moveReq{Position: 0}), &list)
	assert.Equal(t, []string{"c.pdf", "a.pdf", "b.pdf"}, viewNames(list.Documents))
}

func viewNames(docs []documentView) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Name
	}
	return out
}

func TestMerge_NothingActive(t *testing.T) {
	srv, _ := newTestServer(t)
	upload(t, srv, map[string]string{"a.pdf": "A"}, "a.pdf")

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/documents/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/merge", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestMerge_EndToEnd(t *testing.T) {
	srv, ws := newTestServer(t)
	out := upload(t, srv, map[string]string{"a.pdf": "ABC", "b.pdf": "XY", "c.pdf": "Q"}, "a.pdf", "b.pdf", "c.pdf")
	a, b, c := out.Accepted[0].ID, out.Accepted[1].ID, out.Accepted[2].ID

	// b before a, drop page 2 of a, leave c out
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/v1/documents/"+b+"/move", moveReq{Position: 0}).StatusCode)
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/v1/documents/"+a+"/pages/1/toggle", nil).StatusCode)
	require.Equal(t, http.StatusOK, do(t, http.MethodPut, srv.URL+"/api/v1/documents/"+c+"/active", map[string]bool{"active": false}).StatusCode)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/merge", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var job map[string]string
	decode(t, resp, &job)
	jobID := job["job_id"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		var st map[string]interface{}
		r := do(t, http.MethodGet, srv.URL+"/api/v1/merge/"+jobID, nil)
		if r.StatusCode != http.StatusOK {
			return false
		}
		decode(t, r, &st)
		return st["status"] == jobSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, ws.Busy())

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/merge/"+jobID+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "XYAC", string(data))

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/merge/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/health", nil).StatusCode)

	var sum statuscheck.Summary
	resp := do(t, http.MethodGet, srv.URL+"/health/details", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &sum)
	assert.True(t, sum.MuPDF.OK)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", workspace.ErrBusy), http.StatusConflict},
		{registry.ErrNotFound, http.StatusNotFound},
		{selection.ErrUnknownDocument, http.StatusNotFound},
		{selection.ErrInvalidRange, http.StatusBadRequest},
		{registry.ErrUnknownSortMethod, http.StatusBadRequest},
		{merge.ErrNoDocumentsSelected, http.StatusUnprocessableEntity},
		{&merge.Error{Phase: merge.PhaseCopy, Err: errors.New("corrupt")}, http.StatusInternalServerError},
		{workspace.ErrUnsupportedType, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.err.Error(), " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
