package bridge_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/fedbridge/cache"
	ssoerrors "go.pilab.hu/fedbridge/errors"
	"go.pilab.hu/fedbridge/internal/bridge"
)

// remoteIdP is a minimal fake of the remote provider's token and admin
// endpoints for directory tests.
type remoteIdP struct {
	searchBody      string
	searchStatus    int
	userBody        string
	userStatus      int
	credentialsBody string
	credentialsHits atomic.Int32
	credentialsCode int

	mu              sync.Mutex
	lastSearchQuery string
}

func (f *remoteIdP) searchQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSearchQuery
}

func (f *remoteIdP) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"service-token","expires_in":300}`)
	})
	mux.HandleFunc("GET /admin/realms/master/users", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		f.mu.Lock()
		f.lastSearchQuery = r.URL.RawQuery
		f.mu.Unlock()
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.searchBody)
	})
	mux.HandleFunc("GET /admin/realms/master/users/{id}/credentials", func(w http.ResponseWriter, r *http.Request) {
		f.credentialsHits.Add(1)
		if f.credentialsCode != 0 {
			w.WriteHeader(f.credentialsCode)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.credentialsBody)
	})
	mux.HandleFunc("GET /admin/realms/master/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.userBody)
	})
	return mux
}

func newDirectory(t *testing.T, idp *remoteIdP, typesCache cache.CredentialTypes) (*bridge.Directory, func()) {
	t.Helper()
	server := httptest.NewServer(idp.handler(t))
	cfg := testConfig(server.URL)
	transport := bridge.NewTransport(0)
	tokens := bridge.NewTokenSource(cfg, transport, zerolog.Nop())
	return bridge.NewDirectory(cfg, transport, tokens, typesCache, zerolog.Nop()), server.Close
}

func TestDirectory_FindByAttribute_ExactlyOne(t *testing.T) {
	idp := &remoteIdP{searchBody: `[{"id":"r1","username":"alice","email":"a@x.com"}]`}
	dir, done := newDirectory(t, idp, nil)
	defer done()

	user, err := dir.FindByAttribute(context.Background(), "username", "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "r1", user.ID)
	assert.Equal(t, "alice", user.Username)

	// Fixed filters plus the attribute, URL-encoded, ampersand-joined.
	assert.Contains(t, idp.searchQuery(), "max=10")
	assert.Contains(t, idp.searchQuery(), "briefRepresentation=true")
	assert.Contains(t, idp.searchQuery(), "emailVerified=true")
	assert.Contains(t, idp.searchQuery(), "enabled=true")
	assert.Contains(t, idp.searchQuery(), "exact=true")
	assert.Contains(t, idp.searchQuery(), "username=alice")
}

func TestDirectory_FindByAttribute_ZeroOrMany(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero results", `[]`},
		{"two results", `[{"id":"r1","username":"alice"},{"id":"r2","username":"alice2"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := &remoteIdP{searchBody: tt.body}
			dir, done := newDirectory(t, idp, nil)
			defer done()

			user, err := dir.FindByAttribute(context.Background(), "username", "alice")
			require.NoError(t, err)
			assert.Nil(t, user, "ambiguous or missing identities must not resolve")
		})
	}
}

func TestDirectory_FindByAttribute_UpstreamFailure(t *testing.T) {
	idp := &remoteIdP{searchStatus: http.StatusInternalServerError}
	dir, done := newDirectory(t, idp, nil)
	defer done()

	_, err := dir.FindByAttribute(context.Background(), "username", "alice")
	require.Error(t, err, "an outage must not masquerade as a missing user")

	var upstreamErr *ssoerrors.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
}

func TestDirectory_FindByAttribute_ValueEncoding(t *testing.T) {
	idp := &remoteIdP{searchBody: `[]`}
	dir, done := newDirectory(t, idp, nil)
	defer done()

	_, err := dir.FindByAttribute(context.Background(), "email", "a+b@x.com")
	require.NoError(t, err)
	assert.Contains(t, idp.searchQuery(), "email=a%2Bb%40x.com")
}

func TestDirectory_FindByID_StripsPrefix(t *testing.T) {
	idp := &remoteIdP{userBody: `{"id":"abc123","username":"alice"}`}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/realms/master/protocol/openid-connect/token" {
			fmt.Fprint(w, `{"access_token":"service-token","expires_in":300}`)
			return
		}
		assert.Equal(t, "/admin/realms/master/users/abc123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, idp.userBody)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	transport := bridge.NewTransport(0)
	dir := bridge.NewDirectory(cfg, transport, bridge.NewTokenSource(cfg, transport, zerolog.Nop()), nil, zerolog.Nop())

	user, err := dir.FindByID(context.Background(), "federation-x:abc123")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "abc123", user.ID)
}

func TestDirectory_FindByID_NotFound(t *testing.T) {
	idp := &remoteIdP{userStatus: http.StatusNotFound}
	dir, done := newDirectory(t, idp, nil)
	defer done()

	user, err := dir.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDirectory_CredentialTypes(t *testing.T) {
	idp := &remoteIdP{credentialsBody: `[{"id":"c1","type":"password"},{"id":"c2","type":"otp-totp"}]`}
	dir, done := newDirectory(t, idp, nil)
	defer done()

	types := dir.CredentialTypes(context.Background(), "r1")
	assert.Contains(t, types, "password")
	assert.Contains(t, types, "otp-totp")
	assert.Len(t, types, 2)
}

func TestDirectory_CredentialTypes_FailureYieldsEmptySet(t *testing.T) {
	idp := &remoteIdP{credentialsCode: http.StatusForbidden}
	dir, done := newDirectory(t, idp, nil)
	defer done()

	types := dir.CredentialTypes(context.Background(), "r1")
	assert.Empty(t, types, "the credential listing is advisory, failures degrade to empty")
}

func TestDirectory_CredentialTypes_Cached(t *testing.T) {
	idp := &remoteIdP{credentialsBody: `[{"id":"c1","type":"password"}]`}
	typesCache := cache.NewMemoryCredentialTypes(time.Minute)
	defer typesCache.Close()

	dir, done := newDirectory(t, idp, typesCache)
	defer done()

	first := dir.CredentialTypes(context.Background(), "r1")
	second := dir.CredentialTypes(context.Background(), "r1")
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, idp.credentialsHits.Load(), "a cached listing must not be re-fetched")
}
