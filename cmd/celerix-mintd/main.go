package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-mint/internal/api"
	"github.com/celerix-dev/celerix-mint/internal/backend"
	"github.com/celerix-dev/celerix-mint/internal/config"
	"github.com/celerix-dev/celerix-mint/internal/server"
	"github.com/celerix-dev/celerix-mint/internal/service"
	"github.com/celerix-dev/celerix-mint/internal/telemetry"
	"github.com/celerix-dev/celerix-mint/internal/vault"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Println("Starting Celerix Mint Daemon...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "celerix-mintd", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", cfg.Backend, err)
	}
	ids, err := store.Identities(ctx)
	if err != nil {
		log.Fatalf("Failed to enumerate records: %v", err)
	}
	log.Printf("Engine started (%s backend). Loaded %d identities.", cfg.Backend, len(ids))

	l := service.New(store, service.Options{
		MintToken:   ledger.Identity(cfg.MintToken),
		GrantAmount: cfg.GrantAmount,
	})

	router := server.NewRouter(l)
	router.SetHost(cfg.TCPHost)
	if cfg.DisableTLS {
		log.Println("TLS encryption disabled (CELERIX_DISABLE_TLS=true).")
	} else {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			log.Fatalf("Failed to generate TLS certificate: %v", err)
		}
		router.SetCertificate(cert)
		log.Println("TLS encryption enabled.")
	}

	if gin.Mode() == gin.DebugMode && os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), api.CORS(cfg.CallerHeader))
	h := &api.Handler{Ledger: l}
	auth := api.Auth{Secret: []byte(cfg.JWTSecret), Header: cfg.CallerHeader}
	h.Register(r.Group("/api"), auth.Middleware())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": ledger.CodeNotFound})
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Printf("HTTP API listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		log.Printf("Celerix Mint listening on %s (TCP)", net.JoinHostPort(cfg.TCPHost, cfg.Port))
		if err := router.Listen(cfg.Port); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received. Finalizing disk writes...")
	case err := <-errc:
		log.Printf("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	router.Stop()
	if err := store.Close(); err != nil {
		log.Printf("Store close: %v", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Tracing shutdown: %v", err)
		}
	}
	log.Println("Persistence complete. Exiting.")
}
