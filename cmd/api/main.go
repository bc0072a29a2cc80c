package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"sightline/internal/api"
	"sightline/internal/arxiv"
	"sightline/internal/config"
	"sightline/internal/logger"
	"sightline/internal/pipeline"
	"sightline/internal/providers"
	"sightline/internal/vectorstore"
	"sightline/internal/vectorstore/memory"
	"sightline/internal/vectorstore/pgvector"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	manager, err := providers.NewManager(cfg)
	if err != nil {
		log.Error("provider setup failed", "error", err)
		os.Exit(1)
	}

	var store vectorstore.Store
	switch cfg.VectorBackend {
	case "pgvector":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pg, err := pgvector.NewStore(ctx, cfg.PostgresURL)
		cancel()
		if err != nil {
			log.Error("postgres setup failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	default:
		store = memory.NewStore()
	}

	fetcher := arxiv.NewClient(time.Duration(cfg.FetchTimeoutSecs) * time.Second)
	pipe := pipeline.New(cfg, fetcher, store, manager, manager, log)
	server := api.NewServer(cfg, pipe, log)

	log.Info("sightline api listening",
		"addr", cfg.APIAddr,
		"vector_backend", cfg.VectorBackend,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders,
	)
	if err := http.ListenAndServe(cfg.APIAddr, server.Routes()); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
