package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	t.Helper()
	d, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return d
}

func TestResolve(t *testing.T) {
	root := tempDir(t)
	r := Resolver{Root: root, MaxBytes: 10}
	tests := []struct {
		ref  string
		name string
		want Source
	}{
		{"s3://bucket/dir/a.pdf#page=2", "a.pdf", S3{Bucket: "bucket", Key: "dir/a.pdf", MaxBytes: 10}},
		{"https://example.com/files/b.pdf?sig=1", "b.pdf", HTTP{URL: "https://example.com/files/b.pdf?sig=1", MaxBytes: 10}},
		{"file://" + filepath.Join(root, "c.pdf"), "c.pdf", File(filepath.Join(root, "c.pdf"))},
		{"docs/d.pdf", "d.pdf", File(filepath.Join(root, "docs", "d.pdf"))},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			src, name, err := r.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.want, src)
		})
	}

	for _, bad := range []string{"", "s3://bucket", "s3://bucket/"} {
		_, _, err := r.Resolve(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolve_PathsConfinedToRoot(t *testing.T) {
	base := tempDir(t)
	root := filepath.Join(base, "inbox")
	require.NoError(t, os.MkdirAll(root, 0o755))
	secret := filepath.Join(base, "secret.pdf")
	require.NoError(t, os.WriteFile(secret, []byte("%PDF-secret"), 0o644))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link.pdf")))

	for _, ref := range []string{
		secret,
		"file://" + secret,
		"../secret.pdf",
		"sub/../../secret.pdf",
		"link.pdf",
		root,
	} {
		_, _, err := Resolver{Root: root}.Resolve(ref)
		assert.ErrorIs(t, err, ErrPathNotAllowed, ref)
	}

	_, _, err := Resolver{}.Resolve(filepath.Join(root, "a.pdf"))
	assert.ErrorIs(t, err, ErrPathNotAllowed, "no root disables path imports")

	inside := filepath.Join(root, "a.pdf")
	require.NoError(t, os.WriteFile(inside, []byte("%PDF-ok"), 0o644))
	src, name, err := Resolver{Root: root}.Resolve(inside)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", name)
	got, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-ok", string(got))
}

func TestBytes_ReturnsCopy(t *testing.T) {
	b := Bytes("abc")
	got, err := b.Read(context.Background())
	require.NoError(t, err)
	got[0] = 'z'
	again, _ := b.Read(context.Background())
	assert.Equal(t, "abc", string(again))
}

func TestFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	got, err := File(p).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	_, err = File(p + ".missing").Read(context.Background())
	assert.Error(t, err)
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-remote"))
	}))
	defer srv.Close()

	got, err := HTTP{URL: srv.URL + "/a.pdf"}.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-remote", string(got))

	_, err = HTTP{URL: srv.URL + "/missing.pdf", Client: srv.Client()}.Read(context.Background())
	assert.Error(t, err)
}

func TestHTTP_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	got, err := HTTP{URL: srv.URL, MaxBytes: 10}.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 10)

	_, err = HTTP{URL: srv.URL, MaxBytes: 9}.Read(context.Background())
	assert.ErrorIs(t, err, ErrTooLarge)
}

type fakeS3 struct{ body string }

func (f fakeS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3_SizeLimit(t *testing.T) {
	got, err := S3{Client: fakeS3{body: "%PDF"}, Bucket: "b", Key: "k", MaxBytes: 4}.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(got))

	_, err = S3{Client: fakeS3{body: "%PDF-1.7"}, Bucket: "b", Key: "k", MaxBytes: 4}.Read(context.Background())
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestS3_NoClient(t *testing.T) {
	_, err := S3{Bucket: "b", Key: "k"}.Read(context.Background())
	assert.Error(t, err)
}
