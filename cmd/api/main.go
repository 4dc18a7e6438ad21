package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/cache"
	"authgrid.dev/internal/httpapi"
	"authgrid.dev/internal/obs"
	"authgrid.dev/internal/store/memory"
	"authgrid.dev/internal/store/pg"
)

var version = "0.3.0"

func main() {
	// .env is optional; real deployments set environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AUTHGRID_COMMIT"))

	secret := os.Getenv("AUTHGRID_JWT_SECRET")
	if secret == "" {
		log.Fatal("AUTHGRID_JWT_SECRET is required")
	}

	// Store: PostgreSQL when a DSN is set, otherwise in-memory for local dev.
	var (
		store auth.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("AUTHGRID_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("AUTHGRID_PG_DSN not set, using in-memory store")
		store = memory.NewStore()
	}

	opts := []auth.ServiceOption{auth.WithSecret(secret)}
	if issuer := os.Getenv("AUTHGRID_ISSUER"); issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}
	if ttl := envDuration("AUTHGRID_ACCESS_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("AUTHGRID_REFRESH_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}
	if redisURL := os.Getenv("AUTHGRID_REDIS_URL"); redisURL != "" {
		revocations, err := cache.NewRevocations(redisURL)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer revocations.Close()
		opts = append(opts, auth.WithRevocationCache(revocations))
	}

	svc, err := auth.NewService(store, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	guard, err := auth.NewGuard(svc, rbac)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("ensure builtin permissions: %v", err)
	}
	if _, err := rbac.EnsureSystemRole(ctx, "admin", "Full administrative access", []string{
		auth.PermRolesManage, auth.PermPermissionsManage, auth.PermUsersManage,
	}); err != nil {
		cancel()
		log.Fatalf("ensure admin role: %v", err)
	}
	cancel()

	sweeper, err := auth.NewSweeper(svc, envOr("AUTHGRID_SWEEP_SPEC", "@every 1h"), envDuration("AUTHGRID_SESSION_RETENTION"))
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	api := httpapi.New(svc, rbac, guard, probe, version)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, envInt("AUTHGRID_RATE_BURST", 20), envInt("AUTHGRID_RATE_PER_SECOND", 10))
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              envOr("AUTHGRID_ADDR", ":8080"),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgrid-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return n
}
