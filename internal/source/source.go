package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTooLarge is returned when a remote body exceeds the source's MaxBytes.
	ErrTooLarge = errors.New("document exceeds size limit")
	// ErrPathNotAllowed is returned for path references outside the import
	// root, or for any path when no root is configured.
	ErrPathNotAllowed = errors.New("path imports not allowed")
)

// Source yields the raw bytes of one candidate document. Read may be called
// more than once (on load, and again when merging).
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// Bytes is an in-memory source, used for uploads.
type Bytes []byte

func (b Bytes) Read(context.Context) ([]byte, error) {
	return bytes.Clone(b), nil
}

// File reads a local filesystem path.
type File string

func (f File) Read(context.Context) ([]byte, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", string(f), err)
	}
	return b, nil
}

// HTTP downloads a URL on every read. MaxBytes caps the body; zero means
// no cap.
type HTTP struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
}

func (h HTTP) Read(ctx context.Context) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return readLimited(resp.Body, h.MaxBytes)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return b, nil
}

// S3Getter is the part of the S3 client a source needs.
type S3Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads an object from a bucket.
type S3 struct {
	Client   S3Getter
	Bucket   string
	Key      string
	MaxBytes int64
}

func (s S3) Read(ctx context.Context) ([]byte, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("s3 client not configured for s3://%s/%s", s.Bucket, s.Key)
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.Bucket, Key: &s.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()
	b, err := readLimited(out.Body, s.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	log.Debug().Str("bucket", s.Bucket).Str("key", s.Key).Int("size", len(b)).Msg("downloaded s3 pdf")
	return b, nil
}

// Resolver turns a reference string into a Source.
// Supports:
// - s3://bucket/key
// - http(s):// URLs
// - file://path or plain paths, only below Root
type Resolver struct {
	S3   S3Getter
	HTTP *http.Client
	// Root is the directory path references must resolve into. Empty
	// rejects every path reference.
	Root string
	// MaxBytes caps remote downloads.
	MaxBytes int64
}

// Resolve returns the Source for ref together with a display name.
func (r Resolver) Resolve(ref string) (Source, string, error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		p := strings.TrimPrefix(ref, "s3://")
		slash := strings.Index(p, "/")
		if slash <= 0 || slash == len(p)-1 {
			return nil, "", fmt.Errorf("invalid s3 url: %s", ref)
		}
		return S3{Client: r.S3, Bucket: p[:slash], Key: p[slash+1:], MaxBytes: r.MaxBytes}, path.Base(p[slash+1:]), nil
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		name := path.Base(strings.SplitN(ref, "?", 2)[0])
		return HTTP{URL: ref, Client: r.HTTP, MaxBytes: r.MaxBytes}, name, nil
	case ref == "":
		return nil, "", fmt.Errorf("empty reference")
	default:
		p, err := r.confine(strings.TrimPrefix(ref, "file://"))
		if err != nil {
			return nil, "", err
		}
		return File(p), filepath.Base(p), nil
	}
}

// confine resolves p against Root, following symlinks, and rejects anything
// that ends up outside it.
func (r Resolver) confine(p string) (string, error) {
	if r.Root == "" {
		return "", ErrPathNotAllowed
	}
	root, err := filepath.Abs(r.Root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, p)
	}
	return p, nil
}
