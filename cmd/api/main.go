package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"draftwise/api/internal/app"
	"draftwise/api/internal/config"
	"draftwise/api/internal/events"
	"draftwise/api/internal/gitrepo"
	"draftwise/api/internal/search"
	"draftwise/api/internal/session"
	"draftwise/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	// A nil *Meili must not reach NewService as a non-nil Indexer.
	var index search.Indexer
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meili.Close()
		index = meili
	}
	searchService := search.NewService(index, search.NewPgFTS(db))
	go searchService.ReindexAll(ctx)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatalf("kafka producer failed: %v", err)
		}
		publisher = events.NewKafkaPublisher(producer, cfg.KafkaTopic, events.DefaultKafkaOptions())
		log.Printf("Publishing document events to %s", cfg.KafkaTopic)
	}

	service := app.New(cfg, app.Dependencies{
		Store:     store.NewPostgresStore(db),
		Git:       gitrepo.New(cfg.ReposDir),
		Sessions:  sessions,
		Search:    searchService,
		Publisher: publisher,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Draftwise API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Unsaved buffers are flushed after the listener stops taking edits.
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Printf("flush on shutdown: %v", err)
	}
}
