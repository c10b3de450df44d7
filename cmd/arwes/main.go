package main

import (
	"log"
	"os"

	"github.com/atnpgo/arwes/internal/api"
	"github.com/atnpgo/arwes/internal/config"
	"github.com/atnpgo/arwes/internal/engine"
	"github.com/atnpgo/arwes/internal/loader"
	"github.com/atnpgo/arwes/internal/media"
	"github.com/atnpgo/arwes/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	logger.Info("arwes: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"asset_root", cfg.AssetRoot,
		"load_timeout", cfg.LoadTimeout,
		"max_concurrency", cfg.MaxConcurrency,
		"tracing", cfg.Tracing,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	loaderOpts := []loader.Option{
		loader.WithSource(media.NewSource(media.WithRoot(cfg.AssetRoot))),
		loader.WithLogger(logger),
	}
	var serverOpts []api.Option
	if cfg.Tracing {
		tp, tracez, cleanup, err := initTracing()
		if err != nil {
			log.Fatalf("failed to initialize tracing: %v", err)
		}
		defer cleanup()
		loaderOpts = append(loaderOpts, loader.WithTracerProvider(tp))
		serverOpts = append(serverOpts, api.WithTracez(tracez))
	}

	ldr := loader.New(loader.Dependencies{}, loaderOpts...)
	eng := engine.NewEngine(db, ldr, logger, loader.Options{
		Timeout:        cfg.LoadTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	})

	srv := api.NewServer(cfg.ListenAddr, db, eng, ldr, logger, serverOpts...)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
