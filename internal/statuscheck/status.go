package statuscheck

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gen2brain/go-fitz"
)

// Pinger is anything that can report reachability of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the services a merge depends on.
type Checker struct {
	redis     Pinger
	s3        Pinger
	resultDir string
	probe     func() error
}

// Options configures the Checker. Nil pingers report the subsystem as not
// configured rather than failed.
type Options struct {
	Redis     Pinger
	S3        Pinger
	ResultDir string

	// RenderProbe overrides the MuPDF availability check.
	RenderProbe func() error
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis   Status `json:"redis"`
	S3      Status `json:"s3"`
	Results Status `json:"results"`
	MuPDF   Status `json:"mupdf"`
}

// Healthy reports whether every configured subsystem is up. Unconfigured
// optional backends do not count against health.
func (s Summary) Healthy() bool {
	for _, st := range []Status{s.Redis, s.S3, s.Results, s.MuPDF} {
		if !st.OK && st.Message != notConfigured {
			return false
		}
	}
	return true
}

const notConfigured = "Not configured"

func New(opts Options) *Checker {
	probe := opts.RenderProbe
	if probe == nil {
		probe = probeMuPDF
	}
	return &Checker{
		redis:     opts.Redis,
		s3:        opts.S3,
		resultDir: opts.ResultDir,
		probe:     probe,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.ping(ctx, c.redis, 2*time.Second),
		S3:      c.ping(ctx, c.s3, 5*time.Second),
		Results: c.checkResultDir(),
		MuPDF:   c.checkMuPDF(),
	}
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: false, Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkResultDir() Status {
	if c.resultDir == "" {
		return Status{OK: false, Message: notConfigured}
	}
	if err := os.MkdirAll(c.resultDir, 0o755); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	f, err := os.CreateTemp(c.resultDir, ".probe-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Status{OK: true, Message: "Writable"}
}

func (c *Checker) checkMuPDF() Status {
	if err := c.probe(); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

// minimalPDF is a one-page blank document used to exercise the renderer.
var minimalPDF = []byte("%PDF-1.4\n" +
	"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 72 72]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n")

func probeMuPDF() error {
	doc, err := fitz.NewFromMemory(minimalPDF)
	if err != nil {
		return err
	}
	defer doc.Close()
	if doc.NumPage() < 1 {
		return errors.New("no pages")
	}
	return nil
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
