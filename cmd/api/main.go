package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/auth"
	"venuelink.org/internal/config"
	"venuelink.org/internal/httpapi"
	"venuelink.org/internal/kv"
	"venuelink.org/internal/obs"
	"venuelink.org/internal/ratelimit"
	"venuelink.org/internal/stream"
	"venuelink.org/internal/telemetry"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	shutdownTelemetry := telemetry.Setup(cfg.ServiceName)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	if cfg.PostgresDSN == "" {
		log.Fatalf("VENUELINK_PG_DSN is required")
	}
	store, err := auth.OpenPG(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	shared := kv.NewMemory()
	defer shared.Close()

	codec, err := auth.NewCodec([]byte(cfg.AuthSecret), cfg.Issuer, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	registry := auth.NewRegistry(shared, cfg.RefreshTTL)
	events := stream.New()
	recorder := audit.NewRecorder(audit.Tee(store, events))
	policy := auth.PasswordPolicy{MinLength: cfg.PasswordMinLength}

	sessions, err := auth.NewService(store, registry, codec, recorder, policy)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	limiter := ratelimit.New(shared, ratelimit.Config{
		Limit:    cfg.RateLimit,
		Window:   cfg.RateWindow,
		Burst:    cfg.RateBurst,
		FailOpen: cfg.RateFailOpen,
	})

	api := httpapi.New(httpapi.Deps{
		Sessions: sessions,
		Users:    store,
		Limiter:  limiter,
		Ready:    httpapi.ReadyProbe{DB: store.DB()},
		Events:   events,
		AuditLog: store,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(api.Handler(), cfg.ServiceName),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No write timeout: the audit tail holds its response open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting venuelink-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
