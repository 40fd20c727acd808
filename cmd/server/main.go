package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/lexcollab/collab-server/internal/auth"
	"github.com/lexcollab/collab-server/internal/collab"
	"github.com/lexcollab/collab-server/internal/config"
	"github.com/lexcollab/collab-server/internal/db"
	"github.com/lexcollab/collab-server/internal/metrics"
	mw "github.com/lexcollab/collab-server/internal/middleware"
	"github.com/lexcollab/collab-server/internal/presence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store auth.UserStore
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = auth.NewPostgresStore(pool)
	}

	authService := auth.NewService(store, cfg.JWTSecret)
	if !authService.TokensEnabled() {
		slog.Warn("JWT_SECRET not set, connections are anonymous")
	}

	var publisher presence.Publisher = presence.Nop{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("parse redis url", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("connect to redis", "error", err)
			os.Exit(1)
		}

		redisPublisher := presence.NewRedisPublisher(rdb, cfg.PresenceChannel, cfg.SendBuffer)
		go redisPublisher.Run(ctx)
		publisher = redisPublisher
		slog.Info("presence publishing enabled", "channel", cfg.PresenceChannel, "instance", redisPublisher.InstanceID())
	}

	rejoin, err := collab.ParseRejoinPolicy(cfg.RejoinPolicy)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	hub := collab.NewHub(collab.HubOptions{
		RejoinPolicy:     rejoin,
		MaxDocumentIDLen: cfg.MaxDocumentIDLen,
		Presence:         publisher,
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	collabHandler := collab.NewHandler(hub, authService, cfg.AllowedOrigins, cfg.SendBuffer)

	r := mux.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.AllowedOrigins))
	r.Use(metrics.Middleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// WebSocket endpoint
	r.HandleFunc("/ws", collabHandler.ServeWS)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/documents", collabHandler.ListSessions).Methods("GET", "OPTIONS")
	api.HandleFunc("/documents/{documentId}/users", collabHandler.DocumentUsers).Methods("GET", "OPTIONS")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stopping the hub closes every send queue, which ends the write
		// pumps and lets the hijacked connections drain.
		cancel()
		<-hubDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr, "rejoin_policy", rejoin)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
