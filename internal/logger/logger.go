package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
	// AxiomLevel is the lowest level forwarded; empty means info.
	AxiomLevel string

	// Service is stamped on every event.
	Service string
}

var (
	global  zerolog.Logger
	ax      *axiomClient
	service = "pdfmerger"
)

// Init sets up global logger: file rotation, optional console, optional Axiom forwarding.
func Init(opts Options) error {
	// Ensure log directory exists
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	if opts.Service != "" {
		service = opts.Service
	}

	out := io.MultiWriter(buildWriters(opts)...)

	// Global zerolog config
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
	log.Logger = global
	return nil
}

// buildWriters returns the rotating file, stdout (console formatted when
// pretty) and, when enabled, the Axiom forwarder.
func buildWriters(opts Options) []io.Writer {
	var writers []io.Writer
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}

	if !opts.SendToAxiom || opts.AxiomAPIKey == "" {
		return writers
	}
	client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		return writers
	}
	ax = client
	minLevel, err := zerolog.ParseLevel(opts.AxiomLevel)
	if err != nil || opts.AxiomLevel == "" {
		minLevel = zerolog.InfoLevel
	}
	return append(writers, &axiomWriter{sink: client, minLevel: minLevel})
}

// Close flushes any buffered external loggers.
func Close() {
	if ax != nil {
		_ = ax.Close()
		ax = nil
	}
}

// WithJob returns a child of the global logger tagged with a merge job ID.
func WithJob(jobID string) zerolog.Logger {
	return global.With().Str("job_id", jobID).Logger()
}

// WithDocument tags a logger with the document a step is working on.
func WithDocument(l zerolog.Logger, name string, size int64) zerolog.Logger {
	return l.With().Str("document", name).Int64("size", size).Logger()
}

type eventSink interface {
	Send(axiom.Event)
}

// axiomWriter forwards zerolog JSON lines at or above minLevel to Axiom.
type axiomWriter struct {
	sink     eventSink
	minLevel zerolog.Level
}

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{"message": string(p), "level": "info"}
	}
	if s, ok := ev["level"].(string); ok {
		if lvl, err := zerolog.ParseLevel(s); err == nil && lvl < w.minLevel {
			return len(p), nil
		}
	}
	ev["service"] = service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.sink.Send(axiom.Event(ev))
	return len(p), nil
}

// Minimal Axiom batching client
type axiomClient struct {
	client  *axiom.Client
	dataset string
	ch      chan axiom.Event
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	dropped atomic.Int64
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
	if dataset == "" {
		dataset = "dev_" + service
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	ac := &axiomClient{
		client:  c,
		dataset: dataset,
		ch:      make(chan axiom.Event, 1000),
		ctx:     ctx,
		cancel:  cancel,
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ac.wg.Add(1)
	go ac.loop(flushEvery)
	return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *axiomClient) loop(flushEvery time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, 200)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_, _ = a.client.IngestEvents(ctx, a.dataset, batch)
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-a.ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case ev := <-a.ch:
			batch = append(batch, ev)
			if len(batch) >= 200 {
				flush()
			}
		}
	}
}

func (a *axiomClient) Close() error {
	a.cancel()
	a.wg.Wait()
	if n := a.dropped.Load(); n > 0 {
		fmt.Fprintf(os.Stderr, "axiom: dropped %d log events (buffer full)\n", n)
	}
	return nil
}

