package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/assemblage/assemblage-api/internal/config"
	imagedomain "github.com/assemblage/assemblage-api/internal/domain/image"
	"github.com/assemblage/assemblage-api/internal/middleware"
	"github.com/assemblage/assemblage-api/internal/pkg/describe"
	"github.com/assemblage/assemblage-api/internal/pkg/imaging"
	"github.com/assemblage/assemblage-api/internal/pkg/logger"
	"github.com/assemblage/assemblage-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("images_dir", cfg.ImagesDir).
		Msg("Starting Assemblage API")

	store, err := storage.NewLocalStorage(cfg.ImagesDir, cfg.PublicURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open canonical storage")
	}

	var mirror storage.Storage
	if cfg.MirrorBucket != "" {
		s3Mirror, err := storage.NewS3Storage(storage.S3Config{
			Bucket:    cfg.MirrorBucket,
			Region:    cfg.MirrorRegion,
			Endpoint:  cfg.MirrorEndpoint,
			AccessKey: cfg.MirrorAccessKey,
			SecretKey: cfg.MirrorSecretKey,
			PublicURL: cfg.MirrorPublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage mirror")
		}
		mirror = s3Mirror
		log.Info().Str("bucket", cfg.MirrorBucket).Msg("Storage mirror enabled")
	}

	catalog, err := imagedomain.NewCatalog(filepath.Join(cfg.ImagesDir, "metadata.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open metadata index")
	}

	normalizer := imaging.NewNormalizer(imaging.Config{
		TargetWidth:     cfg.TargetWidth,
		TargetHeight:    cfg.TargetHeight,
		Policy:          imaging.LayoutPolicy(cfg.LayoutPolicy),
		InitialQuality:  cfg.InitialQuality,
		QualityFloor:    cfg.QualityFloor,
		QualityStep:     cfg.QualityStep,
		MaxEncodedBytes: cfg.MaxEncodedBytes,
	})

	describer := buildDescriber(cfg)

	service := imagedomain.NewService(catalog, store, mirror, normalizer, describer, cfg.DuplicateThresholdBits)

	// Heal any drift left by a previous crash and surface duplicate
	// pairs before accepting new uploads.
	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	report, err := service.SyncWithStorage(startupCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Startup storage sync failed")
	}
	log.Info().
		Int("kept", report.Reconcile.Kept).
		Strs("removed", report.Reconcile.Removed).
		Int("orphan_warnings", len(report.Reconcile.Warnings)).
		Int("duplicate_pairs", len(report.DuplicatePairs)).
		Msg("Startup storage sync complete")

	handler := imagedomain.NewHandler(service, cfg.UploadMaxMB*1024*1024)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/images", handler.Routes())
	})

	// Canonical files served statically, same as the collages dir on the
	// original site.
	fileServer := http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImagesDir)))
	r.Get("/images/*", func(w http.ResponseWriter, req *http.Request) {
		fileServer.ServeHTTP(w, req)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// buildDescriber assembles the provider fallback chain from config.
// Returns nil when description is disabled or no provider is configured.
func buildDescriber(cfg *config.Config) imagedomain.Describer {
	if cfg.DescribeDisabled {
		return nil
	}

	var providers []describe.Provider
	for _, name := range cfg.DescribeOrder {
		switch name {
		case "openai":
			if cfg.OpenAIAPIKey != "" {
				providers = append(providers, describe.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel))
			}
		case "gemini":
			if cfg.GeminiAPIKey != "" {
				providers = append(providers, describe.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel))
			}
		default:
			log.Warn().Str("provider", name).Msg("Unknown description provider, skipping")
		}
	}
	if len(providers) == 0 {
		log.Info().Msg("No description providers configured, metadata stays blank until edited")
		return nil
	}
	return describe.NewChain(cfg.DescribeTimeout, providers...)
}
