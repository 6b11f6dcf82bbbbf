package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/config"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/prefsapi"
	"github.com/edevardHvide/golf-availability-bot/internal/store"
)

func main() {
	log := logging.New("prefs-api")

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, using process environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, client, err := store.Connect(ctx, cfg.Store.URI, cfg.Store.Database)
	if err != nil {
		log.Fatal("failed to connect to store", map[string]interface{}{"error": err.Error()})
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure store indexes", map[string]interface{}{"error": err.Error()})
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("failed to load club catalog", map[string]interface{}{"error": err.Error()})
	}

	server := prefsapi.New(db, cat, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error during http server shutdown", map[string]interface{}{"error": err.Error()})
		}
	}()

	log.Info("preferences API listening", map[string]interface{}{"port": cfg.Server.Port})

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server exited with error", map[string]interface{}{"error": err.Error()})
	}

	log.Info("preferences API stopped gracefully")
}
