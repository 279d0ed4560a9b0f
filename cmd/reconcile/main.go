// Command reconcile is the maintenance entry point for the metadata
// index: it syncs the index against canonical storage, reports duplicate
// pairs, and can merge an external index snapshot or drop entries added
// on a given day.
//
// Usage:
//
//	reconcile [-snapshot file.json] [-remove-added YYYY-MM-DD]
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/assemblage/assemblage-api/internal/config"
	imagedomain "github.com/assemblage/assemblage-api/internal/domain/image"
	"github.com/assemblage/assemblage-api/internal/pkg/imaging"
	"github.com/assemblage/assemblage-api/internal/pkg/logger"
	"github.com/assemblage/assemblage-api/internal/pkg/storage"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "external metadata.json snapshot to merge (snapshot wins ties)")
	removeAdded := flag.String("remove-added", "", "drop entries added on this day (YYYY-MM-DD, UTC)")
	flag.Parse()

	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().Str("images_dir", cfg.ImagesDir).Msg("Starting reconcile")

	store, err := storage.NewLocalStorage(cfg.ImagesDir, cfg.PublicURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open canonical storage")
	}

	catalog, err := imagedomain.NewCatalog(filepath.Join(cfg.ImagesDir, "metadata.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open metadata index")
	}

	normalizer := imaging.NewNormalizer(imaging.Config{
		TargetWidth:  cfg.TargetWidth,
		TargetHeight: cfg.TargetHeight,
	})

	service := imagedomain.NewService(catalog, store, nil, normalizer, nil, cfg.DuplicateThresholdBits)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *snapshotPath != "" {
		raw, err := os.ReadFile(*snapshotPath)
		if err != nil {
			log.Fatal().Err(err).Str("snapshot", *snapshotPath).Msg("Failed to read snapshot")
		}
		stats, err := service.MergeWithSnapshot(ctx, raw)
		if err != nil {
			log.Fatal().Err(err).Msg("Snapshot merge failed")
		}
		log.Info().
			Int("added", stats.Added).
			Int("replaced", stats.Replaced).
			Int("kept", stats.Kept).
			Msg("Snapshot merged")
	}

	if *removeAdded != "" {
		day, err := time.Parse("2006-01-02", *removeAdded)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -remove-added date")
		}
		next := day.AddDate(0, 0, 1)
		removed, err := service.RemoveEntriesMatching(func(r imagedomain.ImageRecord) bool {
			added := r.DateAdded.UTC()
			return !added.Before(day) && added.Before(next)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Entry removal failed")
		}
		log.Info().Int("removed", removed).Str("day", *removeAdded).Msg("Entries removed")
	}

	report, err := service.SyncWithStorage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Storage sync failed")
	}

	log.Info().
		Int("kept", report.Reconcile.Kept).
		Strs("removed", report.Reconcile.Removed).
		Msg("Index reconciled against storage")

	for _, w := range report.Reconcile.Warnings {
		log.Warn().Msg(w)
	}
	for _, w := range report.Warnings {
		log.Warn().Msg(w)
	}
	for _, p := range report.DuplicatePairs {
		log.Warn().
			Str("a", p.A).
			Str("b", p.B).
			Int("distance", p.Distance).
			Msg("Duplicate pair in catalog")
	}

	log.Info().Msg("Reconcile complete")
}
