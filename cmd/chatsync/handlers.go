package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/chatsync/internal/api"
	"github.com/ashureev/chatsync/internal/channel"
	"github.com/ashureev/chatsync/internal/config"
	"github.com/ashureev/chatsync/internal/hub"
	"github.com/ashureev/chatsync/internal/identity"
	"github.com/ashureev/chatsync/internal/metrics"
	"github.com/ashureev/chatsync/internal/middleware"
	"github.com/ashureev/chatsync/internal/realtime"
	"github.com/ashureev/chatsync/internal/rest"
	"github.com/ashureev/chatsync/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLiteStore, error) {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	return repo, nil
}

func closeStore(repo *store.SQLiteStore) {
	if err := repo.Close(); err != nil {
		slog.Error("Failed to close repository", "error", err)
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting chatsync", "port", cfg.Port, "api", cfg.APIBaseURL, "socket", cfg.SocketURL)

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(repo)
	slog.Info("Database connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// The client and the provider refer to each other: the client reads the
	// provider's token on every request.
	var provider *identity.Provider
	token := func() string { return provider.Token() }
	client := rest.NewClient(cfg.APIBaseURL, token, cfg.RequestTimeout)
	provider = identity.NewProvider(repo, client, cfg.CredentialTTL, slog.Default())

	sync := realtime.New(realtime.Config{
		Dialer:      &channel.WebSocketDialer{URL: cfg.SocketURL, Token: token},
		API:         client,
		DialTimeout: cfg.DialTimeout,
		Metrics:     m,
	})
	detach := sync.Attach(ctx, provider)
	defer detach()

	switch id, err := provider.Restore(ctx); {
	case errors.Is(err, identity.ErrNoSession):
		slog.Info("No stored session, waiting for sign in")
	case err != nil:
		slog.Warn("Failed to restore session", "error", err)
	default:
		slog.Info("Session restored", "user_id", id.ID, "username", id.Username)
	}

	identity.StartExpiryWorker(ctx, repo, provider, cfg.CredentialTTL, cfg.ExpiryInterval)

	routes := chi.NewRouter()
	api.NewHandler(provider, sync, repo, reg).RegisterRoutes(routes)
	methods, err := middleware.RouteMethods(routes)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.CORSPolicy{
		Origins: cfg.AllowedOrigins(),
		Methods: methods,
		MaxAge:  10 * time.Minute,
	}))
	r.Mount("/", routes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return serveUntilDone(ctx, srv)
}

func runHub(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(cfg.FrontendURL, slog.Default())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	h.Routes(r)

	// No WriteTimeout: /ws connections are long-lived.
	srv := &http.Server{
		Addr:        ":" + cfg.HubPort,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return serveUntilDone(ctx, srv)
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down gracefully.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server stopped successfully")
	return nil
}

func runSignIn(ctx context.Context, out io.Writer, cfg *config.Config, username, password string, signUp bool) error {
	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(repo)

	client := rest.NewClient(cfg.APIBaseURL, nil, cfg.RequestTimeout)
	provider := identity.NewProvider(repo, client, cfg.CredentialTTL, slog.Default())

	authenticate := provider.SignIn
	if signUp {
		authenticate = provider.SignUp
	}
	id, err := authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Signed in as %s (%s)\n", id.Username, id.ID)
	return err
}

func runSignOut(ctx context.Context, out io.Writer, cfg *config.Config) error {
	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(repo)

	creds, err := repo.LoadCredentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil {
		_, err = fmt.Fprintln(out, "Not signed in")
		return err
	}
	if err := repo.DeleteCredentials(ctx, creds.ID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Signed out %s\n", creds.Username)
	return err
}
