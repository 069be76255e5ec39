package delivery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_DeliverWritesUniqueFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, 0)

	p1, err := l.Deliver(context.Background(), []byte("one"), "merged.pdf", "application/pdf")
	require.NoError(t, err)
	p2, err := l.Deliver(context.Background(), []byte("two"), "merged.pdf", "application/pdf")
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.True(t, strings.HasSuffix(p1, "_merged.pdf"))
	b, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
}

func TestLocal_DeliverCleansStaleResults(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	touch := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
		return p
	}
	stale := touch(uuid.NewString() + "_merged.pdf")
	foreign := []string{
		touch("notes.txt"),
		touch("contract.pdf"),
		touch("old_merged.pdf"),
		touch(uuid.NewString() + "_merged.txt"),
	}

	p, err := NewLocal(dir, time.Hour).Deliver(context.Background(), []byte("new"), "merged.pdf", "application/pdf")
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	for _, f := range foreign {
		assert.FileExists(t, f, "files not written by the deliverer are kept")
	}
	assert.FileExists(t, p)
}

func TestIsResult(t *testing.T) {
	id := uuid.NewString()
	assert.True(t, isResult(id+"_merged.pdf"))
	assert.True(t, isResult(id+"_report_v2.pdf"))
	assert.False(t, isResult(id+"_"))
	assert.False(t, isResult(id+".pdf"))
	assert.False(t, isResult("scan_merged.pdf"))
	assert.False(t, isResult("merged.pdf"))
}

func TestLocal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal(t.TempDir(), 0).Deliver(ctx, []byte("x"), "merged.pdf", "application/pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeUploader struct {
	key         string
	contentType string
	meta        map[string]string
	data        []byte
}

func (f *fakeUploader) UploadFile(_ context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	f.key, f.data, f.contentType, f.meta = key, data, contentType, meta
	return "s3://bucket/" + key, nil
}

func TestS3_DeliverKeyLayout(t *testing.T) {
	up := &fakeUploader{}
	s := &S3{
		Client: up,
		Prefix: "/results/",
		Now:    func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) },
	}

	loc, err := s.Deliver(context.Background(), []byte("pdf"), "merged.pdf", "application/pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.key, "results/2024/03/09/"), up.key)
	assert.True(t, strings.HasSuffix(up.key, "_merged.pdf"), up.key)
	assert.Equal(t, "s3://bucket/"+up.key, loc)
	assert.Equal(t, "application/pdf", up.contentType)
	assert.Equal(t, "merged.pdf", up.meta["name"])
	assert.Equal(t, "pdf", string(up.data))
}

func TestS3_DefaultPrefix(t *testing.T) {
	up := &fakeUploader{}
	_, err := (&S3{Client: up}).Deliver(context.Background(), nil, "merged.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.key, "merged/"), up.key)
}
