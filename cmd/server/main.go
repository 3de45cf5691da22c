package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/config"
	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/lookup"
	"github.com/FahadIshaq/scanback-backend/internal/mcp"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	"github.com/FahadIshaq/scanback-backend/internal/sqlstore"
	"github.com/FahadIshaq/scanback-backend/internal/transport"
	"github.com/go-chi/chi/v5"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", auth.DefaultTokenExpiry, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	var verifier *auth.JWTVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "auth error: %v\n", err)
			os.Exit(1)
		}
	}

	if *issueToken != "" {
		if verifier == nil {
			fmt.Fprintln(os.Stderr, "SCANBACK_AUTH_JWT_SECRET is required to issue tokens")
			os.Exit(1)
		}
		token, err := verifier.Issue(*issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if err := run(cfg, verifier, logger); err != nil {
		logger.Error("server stopped", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config, verifier *auth.JWTVerifier, logger *slog.Logger) error {
	if strings.EqualFold(cfg.DB.Driver, "sqlite") {
		if err := ensureDBDir(cfg.DB.DSN); err != nil {
			return fmt.Errorf("prepare database path: %w", err)
		}
	}

	db, err := sqlstore.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database ready", "driver", db.Dialect())

	records := sqlstore.NewRecordRepository(db)
	pending := sqlstore.NewPendingRepository(db)
	deliveries := sqlstore.NewDeliveryRepository(db)

	codes, err := tag.NewGenerator(cfg.Codes.Length)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := lookup.New(records, lookup.Config{
		TTL:           cfg.Cache.TTL,
		StoreTimeout:  cfg.Store.Timeout,
		SweepInterval: cfg.Cache.SweepInterval,
	}, logger)
	go cache.Run(ctx)

	deliverers := []notify.Deliverer{notify.NewLogDeliverer(logger)}
	if cfg.Notify.WebhookURL != "" {
		webhook, err := notify.NewWebhookDeliverer(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, cfg.Notify.DeliverTimeout)
		if err != nil {
			return err
		}
		deliverers = append(deliverers, webhook)
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		QueueSize:      cfg.Notify.QueueSize,
		Workers:        cfg.Notify.Workers,
		DeliverTimeout: cfg.Notify.DeliverTimeout,
	}, deliverers, deliveries, logger)
	dispatcher.Start()
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			logger.Warn("notifications dropped on shutdown", "error", err)
		}
	}()

	tags := tag.NewService(records, codes, cache, dispatcher, auth.OwnerCheck{}, logger,
		tag.WithStoreTimeout(cfg.Store.Timeout),
		tag.WithMaxCodeAttempts(cfg.Codes.MaxAttempts),
	)
	contacts := contact.NewService(tags, pending, logger,
		contact.WithTTL(cfg.OTP.TTL),
		contact.WithMaxAttempts(cfg.OTP.MaxAttempts),
		contact.WithHashCost(cfg.OTP.HashCost),
		contact.WithStoreTimeout(cfg.Store.Timeout),
	)

	deps := transport.Deps{
		Tags:     tags,
		Lookup:   cache,
		Contacts: contacts,
		Events:   dispatcher,
		Logger:   logger,
	}
	mcpCfg := mcp.Config{
		Services: mcp.Services{
			Tags:       tags,
			Cache:      cache,
			Deliveries: deliveries,
		},
		Operator:      cfg.MCP.Operator,
		TransportMode: cfg.MCP.Mode,
		Logger:        logger,
	}
	if verifier != nil {
		deps.Owners = verifier
		mcpCfg.Resolver = verifier
	} else {
		logger.Warn("auth.jwt_secret not set: owner routes and the HTTP tool endpoint are disabled")
	}

	router := transport.NewServer(deps)
	mcpServer := mcp.NewServer(mcpCfg)

	switch cfg.MCP.Mode {
	case "http":
		if verifier != nil {
			mountMCP(router, mcpServer)
		}
	case "stdio":
		go func() {
			runStdioMode(ctx, logger, mcpServer)
			stop()
		}()
	}

	return runHTTPMode(ctx, logger, router, cfg.Server)
}

func mountMCP(router chi.Router, mcpServer *sdkmcp.Server) {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/*", mcpHandler)
}

// runStdioMode serves tools on stdin/stdout until stdin closes or ctx is done.
func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", "error", err)
	}
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, handler http.Handler, cfg config.ServerConfig) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	return shutdown(logger, httpServer, cfg.ShutdownTimeout)
}

func shutdown(logger *slog.Logger, server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func ensureDBDir(path string) error {
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
