package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type contextKey int

const operatorKey contextKey = iota

// getOperator extracts the calling operator from context.
func getOperator(ctx context.Context) string {
	v, _ := ctx.Value(operatorKey).(string)
	return v
}

// authMiddleware implements bearer token authentication as MCP middleware.
// Only tokens whose subject is operator may call tools.
func authMiddleware(resolver auth.OwnerResolver, operator string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			header := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" || token == header {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}

			subject, err := resolver.ResolveOwner(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}
			if subject == "" || subject != operator {
				return nil, fmt.Errorf("unauthorized: %q is not an operator", subject)
			}

			return next(context.WithValue(ctx, operatorKey, subject), method, req)
		}
	}
}

// noAuthMiddleware injects a fixed operator when auth is disabled.
func noAuthMiddleware(operator string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(context.WithValue(ctx, operatorKey, operator), method, req)
		}
	}
}
