package delivery

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Local writes merge outputs into a results directory. Each output gets a
// unique file name so concurrent sessions never overwrite each other.
type Local struct {
	Dir    string
	MaxAge time.Duration
}

// NewLocal returns a Local deliverer. dir defaults to ./uploads/results.
func NewLocal(dir string, maxAge time.Duration) *Local {
	if dir == "" {
		dir = filepath.Join("uploads", "results")
	}
	return &Local{Dir: dir, MaxAge: maxAge}
}

func (l *Local) Deliver(ctx context.Context, data []byte, name, mime string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", err
	}
	if l.MaxAge > 0 {
		CleanupResults(l.Dir, l.MaxAge)
	}
	p := filepath.Join(l.Dir, fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(name)))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// Uploader is the part of the S3 client the S3 deliverer needs.
type Uploader interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error)
}

// S3 uploads merge outputs under Prefix.
type S3 struct {
	Client Uploader
	Prefix string
	Now    func() time.Time
}

func (s *S3) Deliver(ctx context.Context, data []byte, name, mime string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	prefix := strings.Trim(s.Prefix, "/")
	if prefix == "" {
		prefix = "merged"
	}
	key := path.Join(prefix, now().UTC().Format("2006/01/02"), uuid.NewString()+"_"+path.Base(name))
	return s.Client.UploadFile(ctx, key, data, mime, map[string]string{
		"name":    name,
		"created": now().UTC().Format(time.RFC3339),
	})
}

// isResult reports whether name has the "<uuid>_<name>.pdf" shape Local
// writes.
func isResult(name string) bool {
	id, rest, ok := strings.Cut(name, "_")
	if !ok || rest == "" || !strings.HasSuffix(rest, ".pdf") {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// CleanupResults removes delivered outputs in dir older than maxAge. Files
// Local did not write are left alone.
func CleanupResults(dir string, maxAge time.Duration) {
	now := time.Now()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isResult(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			p := filepath.Join(dir, e.Name())
			if err := os.Remove(p); err == nil {
				log.Debug().Str("file", p).Msg("removed stale merge result")
			}
		}
	}
}
