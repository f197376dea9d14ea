package main

import (
	"log"

	"github.com/ayoubbns/vinscan/internal/ai/claude"
	"github.com/ayoubbns/vinscan/internal/auth"
	"github.com/ayoubbns/vinscan/internal/config"
	"github.com/ayoubbns/vinscan/internal/db"
	"github.com/ayoubbns/vinscan/internal/logging"
	"github.com/ayoubbns/vinscan/internal/photostore/local"
	"github.com/ayoubbns/vinscan/internal/scan"
	"github.com/ayoubbns/vinscan/internal/store"
	"github.com/ayoubbns/vinscan/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	scanStore := store.NewScanStore(database)
	operatorStore := store.NewOperatorStore(database)
	locationStore := store.NewLocationStore(database)
	settingsStore := store.NewSettingsStore(database)

	photos, err := local.NewLocalPhotoStore(cfg.PhotoPath)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	intel := claude.NewAnalyzer(cfg.AnthropicAPIKey, cfg.ClaudeModel)
	scanService := scan.NewService(intel, scanStore, settingsStore, locationStore, photos, cfg.SavePhotos)
	authService := auth.NewService(operatorStore, cfg.JWTSecret, cfg.SessionTTL)

	server := web.NewServer(scanService, authService, operatorStore, locationStore, settingsStore, photos, logger)

	if cfg.SavePhotos {
		logger.Info("photo persistence enabled", "path", cfg.PhotoPath)
	}
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}
