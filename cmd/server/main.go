package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otp-gateway/internal/config"
	"otp-gateway/internal/factory"
	"otp-gateway/internal/handler"
	"otp-gateway/internal/util"
)

const (
	shutdownTimeout    = 30 * time.Second
	storeHealthTimeout = 5 * time.Second
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	checkStores(f)
	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if !cfg.Server.EnableTLS {
		startServers(cfg, server)
		return
	}

	server.Addr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
	server.TLSConfig = f.TLSManager().GetTLSConfig()

	if cfg.IsProduction() && cfg.Server.AutoCert {
		startServers(cfg, server, acmeRedirectServer(f))
		return
	}

	startServers(cfg, server)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	otpService := f.ServiceFactory().OTPService()
	otpHandler := handler.NewOTPHandler(otpService, util.Named("http"))
	return handler.NewRouter(otpHandler, f.Config().Server, util.Named("http"))
}

// checkStores logs the health of every connected store. Failures do not stop
// startup since every store is optional for dispatch.
func checkStores(f *factory.Factory) {
	ctx, cancel := context.WithTimeout(context.Background(), storeHealthTimeout)
	defer cancel()
	f.LogStoreHealth(ctx)
}

// acmeRedirectServer answers ACME HTTP-01 challenges on :80 and redirects
// everything else to HTTPS.
func acmeRedirectServer(f *factory.Factory) *http.Server {
	autoCertManager := f.TLSManager().GetAutocertManager()
	if autoCertManager == nil {
		util.Fatal("AutoCert manager is not available in production")
	}
	return &http.Server{
		Addr:              ":80",
		Handler:           autoCertManager.HTTPHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// startServers runs the API server, plus an optional helper server, until a
// shutdown signal arrives.
func startServers(cfg *config.Config, api *http.Server, helpers ...*http.Server) {
	serverErr := make(chan error, 1+len(helpers))

	go func() {
		var err error
		if cfg.Server.EnableTLS {
			err = api.ListenAndServeTLS("", "")
		} else {
			util.Warn("TLS is disabled, serving plain HTTP")
			err = api.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("api server: %w", err)
		}
	}()

	for _, srv := range helpers {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("helper server %s: %w", srv.Addr, err)
			}
		}()
	}

	util.Info("OTP server started",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("address", api.Addr),
		util.Bool("telegram_configured", cfg.Telegram.Credentials.Present()),
	)

	waitForShutdown(serverErr, append([]*http.Server{api}, helpers...)...)
}

func waitForShutdown(serverErr <-chan error, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		util.Info("Received shutdown signal", util.String("signal", sig.String()))
	case err := <-serverErr:
		util.Error("Server failed", util.ErrorField(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully",
				util.String("address", srv.Addr),
				util.ErrorField(err))
		}
	}
	util.Info("Server shutdown completed")
}
