package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lostfound-api/internal/application/item"
	"github.com/lostfound-api/internal/config"
	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/lostfound-api/internal/infrastructure/jwt"
	"github.com/lostfound-api/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAdminEmail = "admin@gmail.com"

// --- mock ---

type mockItemSvc struct{ mock.Mock }

func (m *mockItemSvc) CreateReport(ctx context.Context, actor item.Actor, req domain.CreateItemRequest) (*domain.Item, error) {
	args := m.Called(ctx, actor, req)
	if it, _ := args.Get(0).(*domain.Item); it != nil {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemSvc) Approve(ctx context.Context, actor item.Actor, itemID string) (*domain.Item, error) {
	args := m.Called(ctx, actor, itemID)
	if it, _ := args.Get(0).(*domain.Item); it != nil {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemSvc) Reject(ctx context.Context, actor item.Actor, itemID, notes string) (*domain.Item, error) {
	args := m.Called(ctx, actor, itemID, notes)
	if it, _ := args.Get(0).(*domain.Item); it != nil {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemSvc) MarkReturned(ctx context.Context, actor item.Actor, itemID string) (*domain.Item, error) {
	args := m.Called(ctx, actor, itemID)
	if it, _ := args.Get(0).(*domain.Item); it != nil {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemSvc) Get(ctx context.Context, actor item.Actor, itemID string) (*domain.ViewableItem, error) {
	args := m.Called(ctx, actor, itemID)
	if v, _ := args.Get(0).(*domain.ViewableItem); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemSvc) List(ctx context.Context, actor item.Actor) ([]domain.ViewableItem, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.ViewableItem), args.Error(1)
}
func (m *mockItemSvc) Search(ctx context.Context, actor item.Actor, query, category string) ([]domain.ViewableItem, error) {
	args := m.Called(ctx, actor, query, category)
	return args.Get(0).([]domain.ViewableItem), args.Error(1)
}
func (m *mockItemSvc) ListPending(ctx context.Context, actor item.Actor) ([]domain.Item, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Item), args.Error(1)
}
func (m *mockItemSvc) ListMine(ctx context.Context, actor item.Actor) ([]domain.Item, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Item), args.Error(1)
}
func (m *mockItemSvc) AttachImage(ctx context.Context, actor item.Actor, itemID, filename string, r io.Reader) (string, error) {
	args := m.Called(ctx, actor, itemID, filename, r)
	return args.String(0), args.Error(1)
}
func (m *mockItemSvc) FetchImage(ctx context.Context, actor item.Actor, itemID string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, actor, itemID)
	if rc, _ := args.Get(0).(io.ReadCloser); rc != nil {
		return rc, args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         24 * time.Hour,
	})
	require.NoError(t, err)
	return p
}

// bearerReq builds a request with a signed Bearer token for the given user.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target, userID, email string, body []byte) *http.Request {
	t.Helper()
	role := string(domain.ResolveRole(email, testAdminEmail))
	token, err := p.Sign(userID, email, role, "sess1")
	require.NoError(t, err)
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// withChiID injects a chi URL param "id" into the request context.
func withChiID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

// --- Create tests ---

func TestCreate_InvalidBody(t *testing.T) {
	p := newTestJWTProvider(t)
	h := NewItemHandler(&mockItemSvc{}, nil, testAdminEmail)
	r := bearerReq(t, p, http.MethodPost, "/v1/items", "u1", "alice@univ.edu", []byte("not-json"))
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreate_MissingClaims(t *testing.T) {
	h := NewItemHandler(&mockItemSvc{}, nil, testAdminEmail)
	r := httptest.NewRequest(http.MethodPost, "/v1/items", nil)
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreate_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockItemSvc{}
	svc.On("CreateReport", mock.Anything, mock.MatchedBy(func(a item.Actor) bool {
		return a.UserID == "u1" && a.Role == domain.RoleRegular
	}), mock.Anything).Return(&domain.Item{ItemID: "i1", Status: domain.StatusPendingApproval}, nil)
	h := NewItemHandler(svc, nil, testAdminEmail)
	body, _ := json.Marshal(domain.CreateItemRequest{
		Name: "Wallet", Description: "Brown leather", Category: "Accessories",
		Location: "Cafeteria", ContactInfo: "555-0001",
	})
	r := bearerReq(t, p, http.MethodPost, "/v1/items", "u1", "alice@univ.edu", body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)
	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

// --- error mapping ---

func TestApprove_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"stale state", domain.ErrStaleState, http.StatusConflict},
		{"invalid transition", domain.TransitionError("item", "Approved", "Pending Approval"), http.StatusUnprocessableEntity},
	}
	p := newTestJWTProvider(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockItemSvc{}
			svc.On("Approve", mock.Anything, mock.Anything, "i1").Return(nil, tc.err)
			h := NewItemHandler(svc, nil, testAdminEmail)
			r := bearerReq(t, p, http.MethodPut, "/v1/items/i1/approve", "sec1", "security@univ.edu", nil)
			r = withChiID(r, "i1")
			rr := httptest.NewRecorder()
			serveAuthed(p, http.HandlerFunc(h.Approve), rr, r)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestApprove_InternalErrorBodyIsGeneric(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockItemSvc{}
	svc.On("Approve", mock.Anything, mock.Anything, "i1").
		Return(nil, assert.AnError)
	h := NewItemHandler(svc, nil, testAdminEmail)
	r := bearerReq(t, p, http.MethodPut, "/v1/items/i1/approve", "sec1", "security@univ.edu", nil)
	r = withChiID(r, "i1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Approve), rr, r)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
}

// --- actor resolution ---

func TestGet_ActorRoleResolvedFromEmail(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockItemSvc{}
	svc.On("Get", mock.Anything, mock.MatchedBy(func(a item.Actor) bool {
		return a.Role == domain.RoleSecurity
	}), "i1").Return(&domain.ViewableItem{ItemID: "i1", Location: "Gym"}, nil)
	h := NewItemHandler(svc, nil, testAdminEmail)

	r := bearerReq(t, p, http.MethodGet, "/v1/items/i1", "sec1", "security.officer@univ.edu", nil)
	r = withChiID(r, "i1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Get), rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- Reject with notes ---

func TestReject_PassesNotes(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockItemSvc{}
	svc.On("Reject", mock.Anything, mock.Anything, "i1", "blurry photo").
		Return(&domain.Item{ItemID: "i1", Status: domain.StatusRejected}, nil)
	h := NewItemHandler(svc, nil, testAdminEmail)
	body, _ := json.Marshal(map[string]string{"notes": "blurry photo"})
	r := bearerReq(t, p, http.MethodPut, "/v1/items/i1/reject", "sec1", "security@univ.edu", body)
	r = withChiID(r, "i1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Reject), rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- Watch (SSE) ---

type staticLister struct {
	items []domain.Item
}

func (s *staticLister) Scan(context.Context) ([]domain.Item, error) { return s.items, nil }
func (s *staticLister) ListByStatus(_ context.Context, status domain.ItemStatus) ([]domain.Item, error) {
	var out []domain.Item
	for _, it := range s.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}
func (s *staticLister) ListByUser(_ context.Context, userID string) ([]domain.Item, error) {
	var out []domain.Item
	for _, it := range s.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

func TestWatch_StreamsFirstSnapshotAndRedacts(t *testing.T) {
	p := newTestJWTProvider(t)
	lister := &staticLister{items: []domain.Item{
		{ItemID: "i1", Name: "Wallet", Location: "Gym locker", Status: domain.StatusApproved, ReportedAt: time.Now()},
	}}
	watcher := dynamo.NewWatcher(lister, 50*time.Millisecond)
	h := NewItemHandler(&mockItemSvc{}, watcher, testAdminEmail)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	r := bearerReq(t, p, http.MethodGet, "/v1/items/watch", "u1", "alice@univ.edu", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Watch), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "event: snapshot"), "expected at least one snapshot event")
	assert.Contains(t, body, domain.Redacted)
	assert.NotContains(t, body, "Gym locker")
}
