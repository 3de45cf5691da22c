// Package transport exposes the tag lifecycle over HTTP.
package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// TagService is the lifecycle surface the HTTP handlers drive.
type TagService interface {
	Activate(ctx context.Context, req tag.ActivateRequest) (*tag.Record, error)
	Scan(ctx context.Context, code string, meta tag.ScanMeta) (*tag.Record, error)
	ReportFound(ctx context.Context, code string, report tag.FinderReport) (*tag.Record, error)
	ToggleStatus(ctx context.Context, code string) (*tag.Record, error)
	UpdateDetails(ctx context.Context, code string, patch tag.DetailsPatch) (*tag.Record, error)
	List(ctx context.Context, opts tag.ListOptions) ([]tag.Summary, error)
	EnsureOwner(ctx context.Context, code, requester string) (*tag.Record, error)
}

// Lookup serves public views.
type Lookup interface {
	Lookup(ctx context.Context, code string) (*tag.PublicView, error)
}

// ContactFlow runs OTP-gated contact changes.
type ContactFlow interface {
	RequestUpdate(ctx context.Context, in contact.RequestInput) (*contact.Challenge, error)
	VerifyAndApply(ctx context.Context, code, otp string, patch tag.DetailsPatch) (*tag.Record, error)
}

// Deps are the collaborators of the HTTP server. Owners may be nil, in which
// case owner routes are not mounted.
type Deps struct {
	Tags     TagService
	Lookup   Lookup
	Contacts ContactFlow
	Events   tag.EventPublisher
	Owners   auth.OwnerResolver
	Logger   *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	tags     TagService
	lookup   Lookup
	contacts ContactFlow
	events   tag.EventPublisher
	logger   *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{
		tags:     deps.Tags,
		lookup:   deps.Lookup,
		contacts: deps.Contacts,
		events:   deps.Events,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", srv.handleHealth)

	r.Route("/t/{code}", func(pr chi.Router) {
		pr.Get("/", srv.handleLookup)
		pr.Post("/scan", srv.handleScan)
		pr.Post("/found", srv.handleFound)
	})

	if deps.Owners != nil {
		r.Route("/tags", func(or chi.Router) {
			or.Use(auth.Middleware(deps.Owners))
			or.Get("/", srv.handleListTags)
			or.Get("/{code}", srv.handleGetTag)
			or.Patch("/{code}", srv.handleUpdateTag)
			or.Post("/{code}/activate", srv.handleActivate)
			or.Post("/{code}/toggle", srv.handleToggle)
			or.Post("/{code}/contact/request", srv.handleContactRequest)
			or.Post("/{code}/contact/verify", srv.handleContactVerify)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
