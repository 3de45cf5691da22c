package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/lookup"
	"github.com/FahadIshaq/scanback-backend/internal/memory"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	"github.com/FahadIshaq/scanback-backend/internal/transport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []tag.Event
}

func (p *capturePublisher) Publish(_ context.Context, evt tag.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) lastOTP(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if payload, ok := p.events[i].Payload.(notify.OTPPayload); ok {
			return payload.OTP
		}
	}
	t.Fatal("no otp event published")
	return ""
}

type testServer struct {
	url      string
	tags     *tag.Service
	events   *capturePublisher
	verifier *auth.JWTVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	records := memory.NewRecordStore()
	gen, err := tag.NewGenerator(0)
	require.NoError(t, err)
	cache := lookup.New(records, lookup.Config{}, nil)
	events := &capturePublisher{}
	tags := tag.NewService(records, gen, cache, events, auth.OwnerCheck{}, nil)
	contacts := contact.NewService(tags, memory.NewPendingStore(), nil, contact.WithHashCost(bcrypt.MinCost))
	verifier, err := auth.NewJWTVerifier("test-secret", "scanback")
	require.NoError(t, err)

	srv := httptest.NewServer(transport.NewServer(transport.Deps{
		Tags:     tags,
		Lookup:   cache,
		Contacts: contacts,
		Events:   events,
		Owners:   verifier,
	}))
	t.Cleanup(srv.Close)

	return &testServer{url: srv.URL, tags: tags, events: events, verifier: verifier}
}

func (s *testServer) newTag(t *testing.T, c tag.Contact) string {
	t.Helper()
	rec, err := s.tags.Create(context.Background(), tag.CreateRequest{Kind: tag.KindItem, Contact: c})
	require.NoError(t, err)
	return rec.Code
}

func (s *testServer) token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := s.verifier.Issue(owner, 0)
	require.NoError(t, err)
	return tok
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestHTTPServer_Health(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_PublicLookup(t *testing.T) {
	s := newTestServer(t)
	code := s.newTag(t, tag.Contact{Name: "Ann", Email: "ann@example.com"})

	var view tag.PublicView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/t/"+code, "", nil, &view))
	require.Equal(t, code, view.Code)
	require.False(t, view.IsActivated)

	var errResp errorResponse
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/t/AAAAAAAAAA", "", nil, &errResp))
	require.Equal(t, "not_found", errResp.Error)
}

func TestHTTPServer_ScanRequiresActivation(t *testing.T) {
	s := newTestServer(t)
	code := s.newTag(t, tag.Contact{})

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/t/"+code+"/scan", "", nil, &errResp))
	require.Equal(t, "not_activated", errResp.Error)
}

func TestHTTPServer_ActivateScanFound(t *testing.T) {
	s := newTestServer(t)
	code := s.newTag(t, tag.Contact{})
	ann := s.token(t, "ann")

	// Prime the cache so activation has something to invalidate.
	var before tag.PublicView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/t/"+code, "", nil, &before))
	require.False(t, before.IsActivated)

	name := "Ann"
	var rec tag.Record
	status := s.do(t, http.MethodPost, "/tags/"+code+"/activate", ann, map[string]any{
		"details": map[string]any{"label": "keys"},
		"contact": tag.ContactPatch{Name: &name},
	}, &rec)
	require.Equal(t, http.StatusOK, status)
	require.True(t, rec.IsActivated)
	require.Equal(t, "ann", rec.Owner)
	require.Equal(t, tag.StatusActive, rec.Status)

	var after tag.PublicView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/t/"+code, "", nil, &after))
	require.True(t, after.IsActivated)
	require.NotNil(t, after.Contact)
	require.Equal(t, "Ann", after.Contact.Name)

	req, err := http.NewRequest(http.MethodPost, s.url+"/t/"+code+"/scan", bytes.NewBufferString(`{"location":{"label":"park"}}`))
	require.NoError(t, err)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	req.Header.Set("User-Agent", "scanner/1.0")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var scanned map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scanned))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, scanned, "scan_history")
	require.NotContains(t, scanned, "owner")

	stored, err := s.tags.Get(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.ScanCount)
	require.Len(t, stored.ScanHistory, 1)
	require.Equal(t, "203.0.113.9", stored.ScanHistory[0].Source)
	require.Equal(t, "scanner/1.0", stored.ScanHistory[0].Agent)
	require.Equal(t, "park", stored.ScanHistory[0].Location.Label)

	var found tag.PublicView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/t/"+code+"/found", "", map[string]any{
		"finder_name": "Bob",
		"notes":       "left at the front desk",
	}, &found))
	require.True(t, found.Found)

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/t/"+code+"/found", "", map[string]any{}, &errResp))
	require.Equal(t, "already_found", errResp.Error)
}

func TestHTTPServer_Ownership(t *testing.T) {
	s := newTestServer(t)
	code := s.newTag(t, tag.Contact{})
	ann := s.token(t, "ann")
	bob := s.token(t, "bob")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+code+"/activate", ann, nil, nil))
	// Same owner again is accepted and changes nothing.
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+code+"/activate", ann, nil, nil))

	var errResp errorResponse
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/tags/"+code+"/activate", bob, nil, &errResp))
	require.Equal(t, "already_activated", errResp.Error)

	require.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/tags/"+code, bob, nil, nil))
	require.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/tags/"+code+"/toggle", bob, nil, nil))
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/tags/"+code, "", nil, nil))
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/tags/"+code, "not-a-jwt", nil, nil))

	var rec tag.Record
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/tags/"+code, ann, nil, &rec))
	require.Equal(t, code, rec.Code)
}

func TestHTTPServer_ListAndToggle(t *testing.T) {
	s := newTestServer(t)
	ann := s.token(t, "ann")
	mine := s.newTag(t, tag.Contact{})
	other := s.newTag(t, tag.Contact{})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+mine+"/activate", ann, nil, nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+other+"/activate", s.token(t, "bob"), nil, nil))

	var list struct {
		Tags []tag.Summary `json:"tags"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/tags?status=active", ann, nil, &list))
	require.Len(t, list.Tags, 1)
	require.Equal(t, mine, list.Tags[0].Code)

	var toggled tag.Record
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+mine+"/toggle", ann, nil, &toggled))
	require.Equal(t, tag.StatusInactive, toggled.Status)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/tags?status=active", ann, nil, &list))
	require.Empty(t, list.Tags)

	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/tags?limit=0", ann, nil, nil))
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/tags?kind=car", ann, nil, nil))
}

func TestHTTPServer_UpdateDetails(t *testing.T) {
	s := newTestServer(t)
	ann := s.token(t, "ann")
	code := s.newTag(t, tag.Contact{})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+code+"/activate", ann, map[string]any{
		"details": map[string]any{"label": "keys", "color": "red"},
	}, nil))

	var rec tag.Record
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/tags/"+code, ann, map[string]any{
		"details": map[string]any{"color": nil, "size": "small"},
	}, &rec))
	require.Equal(t, map[string]any{"label": "keys", "size": "small"}, rec.Details)

	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, "/tags/"+code, ann, "not an object", nil))
}

func TestHTTPServer_ContactUpdate(t *testing.T) {
	s := newTestServer(t)
	ann := s.token(t, "ann")
	code := s.newTag(t, tag.Contact{Name: "Ann", Email: "ann@example.com"})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+code+"/activate", ann, nil, nil))

	var challenge map[string]any
	status := s.do(t, http.MethodPost, "/tags/"+code+"/contact/request", ann, map[string]string{
		"email": "new@example.com",
	}, &challenge)
	require.Equal(t, http.StatusAccepted, status)
	require.Equal(t, "email", challenge["channel"])
	require.Equal(t, "new@example.com", challenge["destination"])
	require.NotContains(t, challenge, "otp")
	require.NotContains(t, challenge, "OTP")

	otp := s.events.lastOTP(t)
	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}

	var errResp errorResponse
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/tags/"+code+"/contact/verify", ann, map[string]string{"otp": wrong}, &errResp))
	require.Equal(t, "invalid_or_expired_otp", errResp.Error)

	var rec tag.Record
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/tags/"+code+"/contact/verify", ann, map[string]any{
		"otp":     otp,
		"details": map[string]any{"verified": true},
	}, &rec))
	require.Equal(t, "new@example.com", rec.Contact.Email)
	require.Equal(t, true, rec.Details["verified"])

	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/tags/"+code+"/contact/verify", ann, map[string]string{"otp": otp}, nil))
}

func TestHTTPServer_OwnerRoutesNeedResolver(t *testing.T) {
	records := memory.NewRecordStore()
	gen, err := tag.NewGenerator(0)
	require.NoError(t, err)
	tags := tag.NewService(records, gen, nil, nil, auth.OwnerCheck{}, nil)
	srv := httptest.NewServer(transport.NewServer(transport.Deps{
		Tags:   tags,
		Lookup: lookup.New(records, lookup.Config{}, nil),
	}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/tags")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
