package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inbox_server/core/domain"
)

type fakeCredRepo struct {
	creds   map[domain.OAuthProvider]*domain.OAuthCredential
	upserts int
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{creds: make(map[domain.OAuthProvider]*domain.OAuthCredential)}
}

func (r *fakeCredRepo) GetByUserAndProvider(_ context.Context, _ uuid.UUID, provider domain.OAuthProvider) (*domain.OAuthCredential, error) {
	cred, ok := r.creds[provider]
	if !ok {
		return nil, nil
	}
	copied := *cred
	return &copied, nil
}

func (r *fakeCredRepo) Upsert(_ context.Context, cred *domain.OAuthCredential) error {
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	copied := *cred
	r.creds[cred.Provider] = &copied
	r.upserts++
	return nil
}

func (r *fakeCredRepo) Delete(_ context.Context, _ uuid.UUID, provider domain.OAuthProvider) error {
	delete(r.creds, provider)
	return nil
}

type fakeConnRepo struct {
	conns       map[domain.OAuthProvider]*domain.Connection
	statusCalls []domain.ConnectionStatus
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{conns: make(map[domain.OAuthProvider]*domain.Connection)}
}

func (r *fakeConnRepo) GetByUserAndProvider(_ context.Context, _ uuid.UUID, provider domain.OAuthProvider) (*domain.Connection, error) {
	conn, ok := r.conns[provider]
	if !ok {
		return nil, nil
	}
	copied := *conn
	return &copied, nil
}

func (r *fakeConnRepo) ListByUser(_ context.Context, _ uuid.UUID) ([]*domain.Connection, error) {
	var out []*domain.Connection
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeConnRepo) ListConnected(_ context.Context) ([]*domain.Connection, error) {
	var out []*domain.Connection
	for _, c := range r.conns {
		if c.IsConnected() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeConnRepo) Upsert(_ context.Context, conn *domain.Connection) error {
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	copied := *conn
	r.conns[conn.Provider] = &copied
	return nil
}

func (r *fakeConnRepo) Disconnect(_ context.Context, _ uuid.UUID, provider domain.OAuthProvider) (bool, error) {
	conn, ok := r.conns[provider]
	if !ok {
		return false, nil
	}
	conn.Status = domain.StatusDisconnected
	conn.CredentialID = nil
	return true, nil
}

func (r *fakeConnRepo) SetStatus(_ context.Context, _ uuid.UUID, provider domain.OAuthProvider, status domain.ConnectionStatus) error {
	r.statusCalls = append(r.statusCalls, status)
	if conn, ok := r.conns[provider]; ok {
		conn.Status = status
	}
	return nil
}

func (r *fakeConnRepo) TouchSync(_ context.Context, _ uuid.UUID, provider domain.OAuthProvider) (bool, error) {
	conn, ok := r.conns[provider]
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	conn.LastSyncAt = &now
	return true, nil
}

type fakeStateStore struct {
	states map[string]uuid.UUID
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]uuid.UUID)}
}

func (s *fakeStateStore) StoreState(_ context.Context, state string, userID uuid.UUID, _ time.Duration) error {
	s.states[state] = userID
	return nil
}

func (s *fakeStateStore) ValidateState(_ context.Context, state string) (uuid.UUID, error) {
	userID, ok := s.states[state]
	if !ok {
		return uuid.Nil, errors.New("unknown or already used state")
	}
	delete(s.states, state)
	return userID, nil
}

func testBroker(creds *fakeCredRepo, conns *fakeConnRepo, states *fakeStateStore) *Broker {
	b := &Broker{
		provider: domain.ProviderGmail,
		cfg: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8080/gmail-auth/callback",
			Scopes:       []string{"scope.read", "scope.send"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://auth.example.com/authorize",
				TokenURL: "https://auth.example.com/token",
			},
		},
		lifetime: DefaultTokenLifetime,
		creds:    creds,
		conns:    conns,
	}
	if states != nil {
		b.states = states
	}
	return b
}

func TestGenerateAndParseState(t *testing.T) {
	userID := uuid.New()

	state, err := generateState(userID)
	if err != nil {
		t.Fatalf("generateState: %v", err)
	}
	if !strings.HasPrefix(state, userID.String()+":") {
		t.Errorf("state %q missing user id prefix", state)
	}

	parsed, err := ParseState(state)
	if err != nil {
		t.Fatalf("ParseState: %v", err)
	}
	if parsed != userID {
		t.Errorf("parsed user %s, want %s", parsed, userID)
	}

	other, err := generateState(userID)
	if err != nil {
		t.Fatalf("generateState: %v", err)
	}
	if state == other {
		t.Error("two generated states should not collide")
	}

	for _, bad := range []string{"", ":", "no-separator", "not-a-uuid:abcd"} {
		if _, err := ParseState(bad); err == nil {
			t.Errorf("ParseState(%q) should fail", bad)
		}
	}
}

func TestNormalizeExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got := normalizeExpiry(time.Time{}, now, time.Hour)
	if !got.Equal(now.Add(time.Hour)) {
		t.Errorf("zero expiry should become now+lifetime, got %v", got)
	}

	loc := time.FixedZone("KST", 9*3600)
	local := time.Date(2025, 6, 1, 21, 30, 0, 0, loc)
	got = normalizeExpiry(local, now, time.Hour)
	if got.Location() != time.UTC || !got.Equal(local) {
		t.Errorf("expiry should be UTC-normalized in place, got %v", got)
	}
}

func TestIsPermanentOAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"invalid_grant", errors.New(`oauth2: "invalid_grant" "Bad Request"`), true},
		{"invalid_client", errors.New(`oauth2: "invalid_client"`), true},
		{"expired or revoked", errors.New("Token has been expired or revoked."), true},
		{"revoked", errors.New("Token has been revoked"), true},
		{"network timeout", errors.New("dial tcp: i/o timeout"), false},
		{"rate limited", errors.New("429 Too Many Requests"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanentOAuthError(tt.err); got != tt.want {
				t.Errorf("isPermanentOAuthError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEnsureFreshWithoutCredential(t *testing.T) {
	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)

	ok, err := b.EnsureFresh(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("missing credential should report not fresh")
	}
	if len(conns.statusCalls) != 0 {
		t.Errorf("no status change expected, got %v", conns.statusCalls)
	}
}

func TestEnsureFreshOutsideMarginIsNoop(t *testing.T) {
	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)
	userID := uuid.New()

	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{
		ID:           uuid.New(),
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		AccessToken:  "still-good",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().UTC().Add(RefreshMargin + time.Minute),
	}
	creds.upserts = 0

	ok, err := b.EnsureFresh(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("credential outside the margin should count as fresh")
	}
	if creds.upserts != 0 {
		t.Errorf("no refresh write expected, got %d upserts", creds.upserts)
	}
}

func TestEnsureFreshExpiredWithoutRefreshToken(t *testing.T) {
	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)
	userID := uuid.New()

	credID := uuid.New()
	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{
		ID:          credID,
		UserID:      userID,
		Provider:    domain.ProviderGmail,
		AccessToken: "expired",
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	}
	conns.conns[domain.ProviderGmail] = &domain.Connection{
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		Status:       domain.StatusConnected,
		CredentialID: &credID,
	}

	ok, err := b.EnsureFresh(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expired credential without refresh token is not usable")
	}
	if len(conns.statusCalls) != 1 || conns.statusCalls[0] != domain.StatusRefreshRequired {
		t.Errorf("expected refresh_required transition, got %v", conns.statusCalls)
	}
}

// tokenEndpoint stands in for the provider's token URL during refresh.
func tokenEndpoint(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureFreshRefreshPreservesRefreshToken(t *testing.T) {
	srv := tokenEndpoint(t, `{"access_token":"rotated-access","token_type":"Bearer","expires_in":3600}`, http.StatusOK)

	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)
	b.cfg.Endpoint.TokenURL = srv.URL
	userID := uuid.New()

	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{
		ID:           uuid.New(),
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		AccessToken:  "stale-access",
		RefreshToken: "long-lived-refresh",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}
	creds.upserts = 0

	ok, err := b.EnsureFresh(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if !ok {
		t.Fatal("refreshed credential should be usable")
	}
	if creds.upserts != 1 {
		t.Fatalf("expected one credential write, got %d", creds.upserts)
	}

	stored := creds.creds[domain.ProviderGmail]
	if stored.AccessToken != "rotated-access" {
		t.Errorf("access token = %q, want rotated-access", stored.AccessToken)
	}
	// No refresh_token in the response: the stored one must survive.
	if stored.RefreshToken != "long-lived-refresh" {
		t.Errorf("refresh token = %q, want long-lived-refresh", stored.RefreshToken)
	}
	if !stored.ExpiresAt.After(time.Now().UTC().Add(30 * time.Minute)) {
		t.Errorf("expiry %v should reflect the new expires_in", stored.ExpiresAt)
	}
	if stored.ExpiresAt.Location() != time.UTC {
		t.Errorf("expiry should be stored in UTC, got %v", stored.ExpiresAt.Location())
	}
	if len(conns.statusCalls) != 0 {
		t.Errorf("successful refresh should not touch connection status, got %v", conns.statusCalls)
	}
}

func TestEnsureFreshAdoptsRotatedRefreshToken(t *testing.T) {
	srv := tokenEndpoint(t, `{"access_token":"new-access","refresh_token":"new-refresh","token_type":"Bearer","expires_in":3600}`, http.StatusOK)

	creds := newFakeCredRepo()
	b := testBroker(creds, newFakeConnRepo(), nil)
	b.cfg.Endpoint.TokenURL = srv.URL
	userID := uuid.New()

	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{
		ID:           uuid.New(),
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		AccessToken:  "stale-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}

	ok, err := b.EnsureFresh(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if !ok {
		t.Fatal("refreshed credential should be usable")
	}
	if got := creds.creds[domain.ProviderGmail].RefreshToken; got != "new-refresh" {
		t.Errorf("refresh token = %q, want new-refresh", got)
	}
}

func TestEnsureFreshRevokedRefreshTokenMarksReauth(t *testing.T) {
	srv := tokenEndpoint(t, `{"error":"invalid_grant"}`, http.StatusBadRequest)

	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)
	b.cfg.Endpoint.TokenURL = srv.URL
	userID := uuid.New()

	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{
		ID:           uuid.New(),
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		AccessToken:  "stale-access",
		RefreshToken: "revoked-refresh",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}
	creds.upserts = 0

	ok, err := b.EnsureFresh(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if ok {
		t.Error("revoked refresh token should not report fresh")
	}
	if creds.upserts != 0 {
		t.Errorf("no credential write expected, got %d upserts", creds.upserts)
	}
	if len(conns.statusCalls) != 1 || conns.statusCalls[0] != domain.StatusRefreshRequired {
		t.Errorf("expected refresh_required transition, got %v", conns.statusCalls)
	}
}

func TestValidTokenReturnsEmptyWhenNotFresh(t *testing.T) {
	b := testBroker(newFakeCredRepo(), newFakeConnRepo(), nil)

	token, err := b.ValidToken(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty token, got %q", token)
	}
}

func TestAuthorizationURLRegistersState(t *testing.T) {
	states := newFakeStateStore()
	b := testBroker(newFakeCredRepo(), newFakeConnRepo(), states)
	userID := uuid.New()

	url, err := b.AuthorizationURL(context.Background(), userID)
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	if !strings.HasPrefix(url, "https://auth.example.com/authorize?") {
		t.Errorf("unexpected url %q", url)
	}
	if len(states.states) != 1 {
		t.Fatalf("expected one pending state, got %d", len(states.states))
	}

	for state := range states.states {
		resolved, err := b.ResolveState(context.Background(), state)
		if err != nil {
			t.Fatalf("ResolveState: %v", err)
		}
		if resolved != userID {
			t.Errorf("resolved %s, want %s", resolved, userID)
		}
		// One-shot: a second validation must fail.
		if _, err := b.ResolveState(context.Background(), state); err == nil {
			t.Error("state replay should be rejected")
		}
	}
}

func TestResolveStateFallsBackToParsing(t *testing.T) {
	b := testBroker(newFakeCredRepo(), newFakeConnRepo(), nil)
	userID := uuid.New()

	resolved, err := b.ResolveState(context.Background(), userID.String()+":deadbeef")
	if err != nil {
		t.Fatalf("ResolveState: %v", err)
	}
	if resolved != userID {
		t.Errorf("resolved %s, want %s", resolved, userID)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)
	userID := uuid.New()

	if err := b.Disconnect(context.Background(), userID); err != nil {
		t.Fatalf("disconnect with nothing connected should succeed: %v", err)
	}

	credID := uuid.New()
	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{ID: credID, Provider: domain.ProviderGmail}
	conns.conns[domain.ProviderGmail] = &domain.Connection{
		Provider:     domain.ProviderGmail,
		Status:       domain.StatusConnected,
		CredentialID: &credID,
	}

	if err := b.Disconnect(context.Background(), userID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok := creds.creds[domain.ProviderGmail]; ok {
		t.Error("credential should be deleted")
	}
	if conns.conns[domain.ProviderGmail].Status != domain.StatusDisconnected {
		t.Error("connection should be disconnected")
	}

	if err := b.Disconnect(context.Background(), userID); err != nil {
		t.Fatalf("second disconnect should succeed: %v", err)
	}
}

func TestStatus(t *testing.T) {
	creds := newFakeCredRepo()
	conns := newFakeConnRepo()
	b := testBroker(creds, conns, nil)
	userID := uuid.New()

	info, err := b.Status(context.Background(), userID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != domain.StatusDisconnected || info.Authenticated {
		t.Errorf("expected disconnected unauthenticated, got %+v", info)
	}

	credID := uuid.New()
	creds.creds[domain.ProviderGmail] = &domain.OAuthCredential{
		ID:           credID,
		Provider:     domain.ProviderGmail,
		RefreshToken: "refresh",
		Scope:        "scope.read",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}
	conns.conns[domain.ProviderGmail] = &domain.Connection{
		Provider:     domain.ProviderGmail,
		Status:       domain.StatusConnected,
		CredentialID: &credID,
		Email:        "user@example.com",
	}

	info, err = b.Status(context.Background(), userID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != domain.StatusConnected {
		t.Errorf("status = %s, want connected", info.Status)
	}
	// Expired access token is still authenticated while a refresh token remains.
	if !info.Authenticated {
		t.Error("refresh token should keep the connection authenticated")
	}
	if info.Email != "user@example.com" {
		t.Errorf("email = %q", info.Email)
	}
	if info.ExpiresAt == nil {
		t.Error("expires_at should be populated")
	}
}
