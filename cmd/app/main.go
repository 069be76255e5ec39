package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdfmerger/internal/config"
	"github.com/local/pdfmerger/internal/delivery"
	"github.com/local/pdfmerger/internal/filetype"
	logpkg "github.com/local/pdfmerger/internal/logger"
	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/pdf"
	"github.com/local/pdfmerger/internal/registry"
	"github.com/local/pdfmerger/internal/source"
	"github.com/local/pdfmerger/internal/statuscheck"
	"github.com/local/pdfmerger/internal/storage"
	"github.com/local/pdfmerger/internal/store"
	"github.com/local/pdfmerger/internal/web"
	"github.com/local/pdfmerger/internal/workspace"
)

func main() {
	// .env is optional
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
		AxiomLevel:   cfg.Axiom.Level,
		Service:      "pdfmerger",
	})
	defer logpkg.Close()

	metrics.Init()

	// Status store: Redis when configured, process memory otherwise
	var (
		status     web.StatusStore
		redisCheck statuscheck.Pinger
	)
	if cfg.Redis.URL != "" {
		rs, err := store.NewRedisStatus(cfg.Redis.URL, cfg.Redis.StatusTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		status, redisCheck = rs, rs
	} else {
		log.Warn().Msg("REDIS_URL not set; merge job status kept in memory")
		status = store.NewMemoryStatus(cfg.Redis.StatusTTL)
	}

	// S3 for s3:// sources and, when a bucket is set, for delivery
	var (
		s3c     *storage.S3Client
		s3Check statuscheck.Pinger
	)
	resolver := source.Resolver{
		HTTP:     &http.Client{Timeout: 60 * time.Second},
		Root:     cfg.Storage.ImportRoot,
		MaxBytes: cfg.Server.MaxUploadBytes,
	}
	if resolver.Root == "" {
		log.Info().Msg("IMPORT_ROOT not set; path references disabled")
	}
	ctx := context.Background()
	if c, err := storage.NewS3Client(ctx, storage.Options{
		Bucket:          cfg.Storage.S3Bucket,
		Region:          cfg.Storage.S3Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	}); err != nil {
		log.Warn().Err(err).Msg("s3 unavailable; s3:// references disabled")
	} else {
		s3c = c
		resolver.S3 = c.Client()
	}

	var deliverer merge.Deliverer
	if s3c != nil && cfg.Storage.S3Bucket != "" {
		deliverer = &delivery.S3{Client: s3c, Prefix: cfg.Storage.S3Prefix}
		s3Check = s3c
		log.Info().Str("bucket", cfg.Storage.S3Bucket).Msg("merge results delivered to s3")
	} else {
		deliverer = delivery.NewLocal(cfg.Storage.ResultDir, cfg.Storage.ResultMaxAge)
		log.Info().Str("dir", cfg.Storage.ResultDir).Msg("merge results delivered locally")
	}

	sortMethod, err := registry.ParseSortMethod(cfg.Workspace.SortMethod)
	if err != nil {
		log.Warn().Err(err).Str("method", cfg.Workspace.SortMethod).Msg("falling back to date sort")
		sortMethod = registry.DefaultSortMethod
	}
	ws := workspace.New(workspace.Dependencies{
		Counter: pdf.NewCounter(),
		Types:   filetype.New(),
	}, workspace.Options{
		Locale:     cfg.Workspace.Locale,
		SortMethod: sortMethod,
	})
	orch := merge.New(merge.Dependencies{
		Assembler: pdf.NewAssembler(),
		Deliverer: deliverer,
	})

	srvWeb := web.New(web.Dependencies{
		Workspace: ws,
		Merger:    orch,
		Status:    status,
		Resolver:  resolver,
		Thumbs:    pdf.NewRenderer(cfg.Render.DPI, cfg.Render.Quality),
		Health: statuscheck.New(statuscheck.Options{
			Redis:     redisCheck,
			S3:        s3Check,
			ResultDir: cfg.Storage.ResultDir,
		}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	port := cfg.Server.Port
	srv := &http.Server{Addr: ":" + port, Handler: srvWeb.Router()}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info().Msgf("HTTP server listening on :%s", port)
	if err := serve(srv, stop); err != nil {
		log.Error().Err(err).Msg("http server error")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}

// serve runs srv until a signal arrives on stop or the listener fails. It
// returns the listener error, if any, so deferred cleanup in main still runs.
func serve(srv *http.Server, stop <-chan os.Signal) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	select {
	case <-stop:
		return nil
	case err := <-serveErr:
		return err
	}
}
