// Package mcp exposes operator tools for the tag registry over the Model
// Context Protocol.
package mcp

import (
	"context"
	"log/slog"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/lookup"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TagService defines tag operations needed by MCP.
type TagService interface {
	CreateBatch(ctx context.Context, n int, kind tag.Kind) ([]*tag.Record, error)
	Get(ctx context.Context, code string) (*tag.Record, error)
	List(ctx context.Context, opts tag.ListOptions) ([]tag.Summary, error)
	Deactivate(ctx context.Context, code string) (*tag.Record, error)
	ToggleStatus(ctx context.Context, code string) (*tag.Record, error)
}

// CacheStats reports lookup cache counters.
type CacheStats interface {
	Stats() lookup.Stats
}

// Services contains all domain services needed by MCP.
type Services struct {
	Tags       TagService
	Cache      CacheStats
	Deliveries notify.DeliveryLog
}

// Config contains server configuration.
type Config struct {
	Services Services
	// Resolver authenticates HTTP callers. Nil disables authentication, which
	// is always the case in stdio mode.
	Resolver auth.OwnerResolver
	// Operator is the token subject allowed to call tools over HTTP.
	Operator      string
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "scanback",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	if cfg.TransportMode == "stdio" || cfg.Resolver == nil {
		server.AddReceivingMiddleware(noAuthMiddleware("local"))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver, cfg.Operator))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.Logger)

	return server
}
