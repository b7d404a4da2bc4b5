// Package main runs the local development backend for the reservation
// client: slot catalog, reservation endpoints and the live event channel.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/config"
	"github.com/class-reserve/client/internal/devserver"
	"github.com/class-reserve/client/internal/logging"
)

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "HTTP server address")
	dataDir := flag.String("data", cfg.DataDir, "Data directory for the SQLite database")
	flag.Parse()

	log := logging.New(cfg.Env)
	defer log.Sync()

	log.Info("starting reservation devserver", zap.String("addr", *addr))

	db, err := devserver.NewDB(*dataDir + "/class-reserve.db")
	if err != nil {
		log.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	if err := devserver.RunMigrations(db); err != nil {
		log.Fatal("running migrations", zap.Error(err))
	}

	repo := devserver.NewSlotRepository(db)
	if err := devserver.Seed(context.Background(), repo); err != nil {
		log.Fatal("seeding slots", zap.Error(err))
	}

	hub := devserver.NewHub(log)
	go hub.Run()

	auth := devserver.NewTokenIssuer(cfg.JWTSecret, 12*time.Hour)
	srv := devserver.NewServer(log, repo, hub, auth)
	router := devserver.NewRouter(srv, log)

	expiry := devserver.NewExpiryScheduler(repo, hub, log, cfg.HoldTTL)
	expiry.Start()

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", *addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	expiry.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("shutdown error", zap.Error(err))
	}
	log.Info("stopped")
}
