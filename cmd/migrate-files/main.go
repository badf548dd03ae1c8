package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/school-admin/backend/internal/config"
	"github.com/school-admin/backend/internal/database"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/files"
	"github.com/school-admin/backend/internal/logger"
)

// Moves every file still on local storage into the blob store and updates
// its metadata. Safe to re-run: already migrated files are skipped.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	store := docstore.NewGormStore(db)
	migrator := files.NewMigrator(store, files.NewDirSource(cfg.Files.SourceDir), files.NewDiskBlobStore(cfg.Files.BlobRoot), log)

	ctx := context.Background()

	pending, err := migrator.PendingFiles(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list pending files")
	}
	if len(pending) == 0 {
		log.Info().Msg("no files pending migration")
		return
	}
	log.Info().Int("count", len(pending)).Msg("migrating files")

	successful, failed := migrator.MigrateBatch(ctx, pending, func(p files.Progress) {
		switch p.Status {
		case "completed":
			log.Info().Str("file_id", p.FileID).Str("filename", p.Filename).Msg("migrated")
		case "failed":
			log.Error().Str("file_id", p.FileID).Str("filename", p.Filename).Str("error", p.Error).Msg("failed")
		}
	})

	log.Info().Int("successful", successful).Int("failed", failed).Msg("migration finished")
	if failed > 0 {
		os.Exit(1)
	}
}
