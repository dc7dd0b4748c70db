package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raidiam/priora-mock-tpp/shared/logging"
	"github.com/raidiam/priora-mock-tpp/shared/metrics"
	"github.com/raidiam/priora-mock-tpp/tpp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := tpp.LoadConfig()
	if err != nil {
		logging.InitLogger("info")
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	slog.InfoContext(ctx, "starting TPP simulator", "version", cfg.Version, "sandbox", cfg.Protocol+"://"+cfg.PrioraURL)

	m := metrics.New()

	// Setup signing key and sandbox client
	oauthClient, err := tpp.SetupClients(ctx, cfg, m)
	if err != nil {
		slog.ErrorContext(ctx, "failed to setup clients", "error", err)
		os.Exit(1)
	}

	tppSvc, err := tpp.New(tpp.Config{
		ProviderCode: cfg.ProviderCode,
		RedirectURI:  cfg.RedirectURI,
		PrioraURL:    cfg.PrioraURL,
		Protocol:     cfg.Protocol,
		OAuthClient:  oauthClient,
		Metrics:      m,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize TPP service", "error", err)
		os.Exit(1)
	}

	// HTTP server setup
	addr := net.JoinHostPort("", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           tpp.Handler(cfg.FrontendOrigin, cfg.Version, tppSvc, m),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	useTLS := cfg.DevTLSCertFile != ""
	go func() {
		slog.InfoContext(ctx, "TPP simulator listening", "addr", addr, "https", useTLS)
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.DevTLSCertFile, cfg.DevTLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "TPP simulator stopped", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down TPP simulator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
