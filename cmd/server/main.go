package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"kairos/server/internal/config"
	"kairos/server/internal/db"
	internalhttp "kairos/server/internal/http"
	"kairos/server/internal/jobs"
	"kairos/server/internal/repository"
	"kairos/server/internal/session"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, database, err := db.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("mongo connection failed: %v", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("mongo disconnect error: %v", err)
		}
	}()

	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.Fatalf("index creation failed: %v", err)
	}

	store := repository.NewStore(database)

	// Logins serialize in-process by default; with Redis configured they
	// serialize across instances.
	var locks session.Locker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
		locks = session.NewRedisLocker(redisClient, 5*time.Second)
	}

	engine := session.NewEngine(store, store, session.EngineOptions{
		Secret:              cfg.JWTSecret,
		Issuer:              cfg.JWTIssuer,
		SessionTTL:          cfg.SessionTTL,
		SingleActiveSession: cfg.SingleActiveSession,
		Locks:               locks,
	})

	server := internalhttp.NewServer(cfg, engine, store)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartSessionSweep(ctx, store, cfg.SessionSweepInterval, cfg.SessionTTL)

	go func() {
		log.Printf("kairos server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
