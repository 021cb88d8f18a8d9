package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adelansari/tk2-track-namer/internal/app"
	"github.com/adelansari/tk2-track-namer/internal/auth"
	"github.com/adelansari/tk2-track-namer/internal/catalog"
	"github.com/adelansari/tk2-track-namer/internal/config"
	"github.com/adelansari/tk2-track-namer/internal/identity"
	"github.com/adelansari/tk2-track-namer/internal/jobs"
	"github.com/adelansari/tk2-track-namer/internal/search"
	"github.com/adelansari/tk2-track-namer/internal/store"
)

func main() {
	hashKey := flag.String("hash-admin-key", "", "print the ADMIN_KEY_HASH value for the given key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := auth.HashKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	gw, err := store.NewGateway(pool, cfg.DBSchema)
	if err != nil {
		log.WithError(err).Fatal("database gateway setup failed")
	}
	defer gw.Close()

	if err := store.ApplyMigrations(ctx, gw, cfg.MigrationsDir); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	dataStore := store.NewPostgresStore(gw)
	if cfg.SeedSampleData {
		inserted, err := dataStore.SeedSamples(ctx)
		if err != nil {
			log.WithError(err).Warn("sample data seeding failed")
		} else if inserted > 0 {
			log.WithField("inserted", inserted).Info("seeded sample suggestions")
		}
	}

	items, err := catalog.Default()
	if err != nil {
		log.WithError(err).Fatal("catalog failed to load")
	}

	var names identity.Resolver = identity.NewProfileResolver(dataStore)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := identity.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, display names will not be cached")
		} else {
			cached := identity.NewCachedResolver(client, names, cfg.DisplayNameTTL)
			defer cached.Close()
			names = cached
			log.Info("caching display names in redis")
		}
	}

	pgSearch := search.NewPgSearch(gw)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgSearch, pgSearch)
	defer searchService.Close()
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	if !cfg.ElevatedEnabled() {
		log.Info("ADMIN_KEY_HASH not set, elevated deletes are disabled")
	}

	scheduler, err := jobs.NewScheduler(dataStore, cfg.ReconcileSchedule)
	if err != nil {
		log.WithError(err).Fatal("invalid reconcile schedule")
	}
	if err := scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("scheduler failed to start")
	}
	defer scheduler.Stop()

	service := app.New(dataStore, app.Deps{
		Names:   names,
		Schema:  gw,
		Catalog: items,
		Search:  searchService,
		Admin:   auth.NewKeyVerifier(cfg.AdminKeyHash),
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"addr": cfg.Addr, "schema": gw.Schema()}).Info("track namer API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
}
