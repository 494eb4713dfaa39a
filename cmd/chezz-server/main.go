package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/singhDevs/Chezz-Backend/internal/config"
	"github.com/singhDevs/Chezz-Backend/internal/gateway"
	"github.com/singhDevs/Chezz-Backend/internal/match"
	"github.com/singhDevs/Chezz-Backend/internal/obslog"
	"github.com/singhDevs/Chezz-Backend/internal/pool"
	"github.com/singhDevs/Chezz-Backend/internal/rating"
	"github.com/singhDevs/Chezz-Backend/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	moveLog, err := store.NewMoveLog(cfg.RedisURL, time.Duration(cfg.MoveLogTTLSec)*time.Second)
	if err != nil {
		log.Fatalf("move log init error: %v", err)
	}
	archive, err := store.NewArchive(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive init error: %v", err)
	}
	ratings := rating.NewService(archive)

	deps := match.Deps{
		MoveLog:   moveLog,
		Ratings:   ratings,
		Archive:   archive,
		ClockPoll: time.Duration(cfg.ClockPollMs) * time.Millisecond,
	}
	gw := gateway.New(pool.New(), gateway.HMACVerifier(cfg.AuthSecret), deps, cfg.MaxConcurrentMatches)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		obslog.L().Info("server_listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = moveLog.Close()
	_ = archive.Close()
}
