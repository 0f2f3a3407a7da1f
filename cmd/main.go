package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	api "github.com/sugarlabs/bundle-uploader/pkg/bundle_api"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/database"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/handler"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/repositories"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/services"
	"github.com/sugarlabs/bundle-uploader/pkg/jobs"
	"github.com/sugarlabs/bundle-uploader/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := api.ConfigFromEnv()

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to open record store: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Printf("[shutdown] close record store: %v", err)
		}
	}()

	uploads, err := storage.NewUploads(cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to prepare upload directory: %v", err)
	}

	bundleRepo := repositories.NewBundleRepository(db)
	bundleService := services.NewBundleService(bundleRepo, uploads, cfg.MirrorRoot)
	bundleController := handler.NewBundlesAPIController(bundleService, cfg.Retention)
	if _, err := jobs.ScheduleSweep(context.Background(), bundleService, cfg.Retention, "@hourly"); err != nil {
		log.Fatalf("failed to schedule sweep: %v", err)
	}

	// Start server
	router := api.NewRouter(bundleController)

	log.Printf("Server is running on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
