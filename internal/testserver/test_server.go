// Package testserver runs the full stack on an in-memory SQLite database for
// end-to-end tests.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/lookup"
	"github.com/FahadIshaq/scanback-backend/internal/mcp"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	"github.com/FahadIshaq/scanback-backend/internal/sqlstore"
	"github.com/FahadIshaq/scanback-backend/internal/transport"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Operator is the token subject allowed to call MCP tools.
const Operator = "admin"

type TestServer struct {
	Server     *httptest.Server
	DB         *sqlstore.DB
	Tags       *tag.Service
	Cache      *lookup.Cache
	Deliveries *sqlstore.DeliveryRepository
	Outbox     *Outbox

	verifier *auth.JWTVerifier
}

// New starts a server with owner routes and the MCP endpoint mounted at /mcp.
func New(t *testing.T) *TestServer {
	t.Helper()

	db, err := sqlstore.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	records := sqlstore.NewRecordRepository(db)
	deliveries := sqlstore.NewDeliveryRepository(db)
	gen, err := tag.NewGenerator(0)
	require.NoError(t, err)
	verifier, err := auth.NewJWTVerifier("test-secret", "scanback")
	require.NoError(t, err)

	cache := lookup.New(records, lookup.Config{}, nil)
	outbox := &Outbox{}
	dispatcher := notify.NewDispatcher(notify.Config{Workers: 1}, []notify.Deliverer{outbox}, deliveries, nil)
	dispatcher.Start()

	tags := tag.NewService(records, gen, cache, dispatcher, auth.OwnerCheck{}, nil)
	contacts := contact.NewService(tags, sqlstore.NewPendingRepository(db), nil, contact.WithHashCost(bcrypt.MinCost))

	router := transport.NewServer(transport.Deps{
		Tags:     tags,
		Lookup:   cache,
		Contacts: contacts,
		Events:   dispatcher,
		Owners:   verifier,
	})
	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Tags:       tags,
			Cache:      cache,
			Deliveries: deliveries,
		},
		Resolver:      verifier,
		Operator:      Operator,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		nil,
	)
	router.Handle("/mcp", mcpHandler)

	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Close(ctx)
		_ = db.Close()
	})

	return &TestServer{
		Server:     server,
		DB:         db,
		Tags:       tags,
		Cache:      cache,
		Deliveries: deliveries,
		Outbox:     outbox,
		verifier:   verifier,
	}
}

// Token returns a bearer token for subject.
func (ts *TestServer) Token(t *testing.T, subject string) string {
	t.Helper()
	token, err := ts.verifier.Issue(subject, time.Hour)
	require.NoError(t, err)
	return token
}

// Outbox is a deliverer that keeps every event it receives.
type Outbox struct {
	mu     sync.Mutex
	events []tag.Event
}

func (o *Outbox) Name() string { return "outbox" }

func (o *Outbox) Deliver(_ context.Context, evt tag.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, evt)
	return nil
}

// Events returns the delivered events of kind, oldest first.
func (o *Outbox) Events(kind tag.EventKind) []tag.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []tag.Event
	for _, evt := range o.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

// WaitFor blocks until at least n events of kind were delivered.
func (o *Outbox) WaitFor(t *testing.T, kind tag.EventKind, n int) []tag.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(o.Events(kind)) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return o.Events(kind)
}
