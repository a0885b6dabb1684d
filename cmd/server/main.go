package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"gigatile/internal/cache"
	"gigatile/internal/config"
	httphandlers "gigatile/internal/http"
	"gigatile/internal/image_list"
	"gigatile/internal/image_renderer"
	"gigatile/internal/logger"
	"gigatile/internal/task"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("Starting Gigatile server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("tile_capacity", cfg.TileCapacity),
		zap.String("slot_backend", cfg.SlotBackend),
	)

	scanner := image_list.New(cfg.DataDir, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	backends, err := cache.NewBackends(cfg.SlotBackend, image_renderer.BackendNames, cfg.TileCapacity, cfg.SlotFileDir, log)
	if err != nil {
		log.Fatal("Failed to initialize slot backends", zap.Error(err))
	}
	tileCache, err := cache.New(cfg.TileCapacity, backends, log.Named("cache"))
	if err != nil {
		log.Fatal("Failed to initialize tile cache", zap.Error(err))
	}

	renderer := image_renderer.New(scanner, tileCache, log)
	defer renderer.Close()
	if err := renderer.SyncImages(); err != nil {
		log.Fatal("Failed to bind images", zap.Error(err))
	}

	handlers := httphandlers.New(cfg, log, scanner, renderer)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.WarmupLevels > 0 {
		go func() {
			scheduler := task.NewScheduler(cfg.WarmupWorkers, log)
			log.Info("Starting tile warmup", zap.Int("levels", cfg.WarmupLevels), zap.Int("workers", scheduler.Workers()))
			warmed, err := renderer.Warmup(ctx, cfg.WarmupLevels, scheduler)
			if err != nil {
				log.Warn("Tile warmup stopped", zap.Int("tiles", warmed), zap.Error(err))
				return
			}
			log.Info("Tile warmup completed", zap.Int("tiles", warmed))
		}()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped", zap.Any("cache", renderer.Stats()))
}
