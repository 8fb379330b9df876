package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ipo-quickread/api/handlers"
	"github.com/feichai0017/ipo-quickread/api/routes"
	"github.com/feichai0017/ipo-quickread/config"
	"github.com/feichai0017/ipo-quickread/internal/fixtures"
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/internal/utils/validator"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/storage"
)

func main() {
	appCfg := config.GetAppConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding(appCfg.LogEncoding),
		logger.WithOutputPaths(appCfg.LogOutputs()),
		logger.WithInitialFields(map[string]interface{}{"service": "ipo-quickread"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// init filing service
	filingService, err := filing.GetService(ctx, log)
	if err != nil {
		log.Fatal("Failed to get filing service", logger.Error(err))
	}
	defer filingService.Close()

	if appCfg.SeedDemo {
		sum, err := fixtures.LoadDemo(ctx, filingService.Store(), time.Now(), log)
		if err != nil {
			log.Fatal("Failed to seed demo filing", logger.Error(err))
		}
		log.Info("Demo seeding done", logger.Int("created", sum.Created), logger.Int("skipped", sum.Skipped))
	}

	// init object storage for uploads
	var objects storage.Storage
	var uploadValidator *validator.DocumentValidator
	objects, err = storage.NewStorage(ctx, storage.StorageType(appCfg.StorageType), log)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		objects = nil
		log.Info("Object storage disabled, uploads unavailable")
	case err != nil:
		log.Fatal("Failed to init object storage", logger.Error(err))
	default:
		vcfg := validator.DefaultConfig()
		vcfg.MaxFileSize = appCfg.UploadMaxBytes
		vcfg.MaxPageCount = appCfg.UploadMaxPages
		uploadValidator = validator.NewDocumentValidator(log.Named("validator"), vcfg)
	}

	// init handlers
	h := handlers.NewHandlers(filingService, objects, uploadValidator, appCfg.UploadMaxBytes, log)
	if appCfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, appCfg.CORSOrigins, log)

	srv := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
