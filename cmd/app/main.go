package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/figcrop/internal/config"
	"github.com/local/figcrop/internal/export"
	logpkg "github.com/local/figcrop/internal/logger"
	"github.com/local/figcrop/internal/metrics"
	"github.com/local/figcrop/internal/mupdf"
	"github.com/local/figcrop/internal/orchestrator"
	"github.com/local/figcrop/internal/statuscheck"
	"github.com/local/figcrop/internal/storage"
	"github.com/local/figcrop/internal/store"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Init logging
	if err := logpkg.Init(logpkg.Options{
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
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	defer logpkg.Close()

	metrics.Init()

	engineOpts, err := cfg.Engine.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Status store
	var status store.StatusStore
	var statusPing statuscheck.Pinger
	if cfg.Redis.URL != "" {
		rs, err := store.NewRedisStatus(cfg.Redis.URL, cfg.Redis.Prefix, cfg.Redis.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		status, statusPing = rs, rs
	} else {
		log.Warn().Msg("REDIS_URL not set; session status kept in memory")
		status = store.NewMemoryStatus()
	}
	defer status.Close()

	deps := orchestrator.Dependencies{Status: status}
	checkOpts := statuscheck.Options{Redis: statusPing}

	// S3 is optional: without a bucket exports are download-only
	if cfg.Storage.Bucket != "" {
		s3c, err := storage.NewS3Client(ctx, storage.Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
		deps.S3 = s3c
		checkOpts.S3 = s3c
	}

	if !mupdf.NewExtractor().IsAvailable() {
		log.Warn().Msg("mutool not found in PATH; page layouts cannot be read")
	}
	deps.Checker = statuscheck.New(checkOpts)

	deckFont, err := export.FindDeckFont(cfg.Storage.DeckFont)
	if err != nil {
		log.Warn().Err(err).Msg("deck captions use Helvetica; names outside cp1252 will be lost, set DECK_FONT_FILE to a UTF-8 TrueType font")
	} else {
		log.Info().Str("font", deckFont).Msg("deck caption font")
	}

	orch := orchestrator.New(orchestrator.Config{
		Engine:       engineOpts,
		PreviewZoom:  cfg.Engine.PreviewZoom,
		UploadDir:    cfg.Storage.UploadDir,
		ExportPrefix: cfg.Storage.ExportPrefix,
		DeckFont:     deckFont,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
		MaxInflight:  cfg.Server.MaxInflight,
		SessionIdle:  cfg.Server.SessionIdle,
		FetchTimeout: cfg.Server.FetchTimeout,
	}, deps)
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	go orch.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	orch.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
