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

	ssoerrors "go.pilab.hu/fedbridge/errors"
	"go.pilab.hu/fedbridge/internal/bridge"
)

func testConfig(baseURL string) bridge.Config {
	return bridge.Config{
		BaseURL:      baseURL,
		Realm:        "master",
		ClientID:     "federation-client",
		ClientSecret: "s3cr3t",
	}
}

func newTokenServer(t *testing.T, requests *atomic.Int32, expiresIn int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.Equal(t, "/realms/master/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "federation-client", r.PostForm.Get("client_id"))
		require.Equal(t, "s3cr3t", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":%d}`, requests.Load(), expiresIn)
	}))
}

func TestTokenSource_CachesWhileValid(t *testing.T) {
	var requests atomic.Int32
	server := newTokenServer(t, &requests, 300)
	defer server.Close()

	source := bridge.NewTokenSource(testConfig(server.URL), bridge.NewTransport(0), zerolog.Nop())

	first, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", first)

	second, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, requests.Load(), "a valid cached token must not trigger a network call")
}

func TestTokenSource_SafetyMargin(t *testing.T) {
	// A lifetime shorter than the 5s safety margin is expired on arrival, so
	// every call refreshes.
	var requests atomic.Int32
	server := newTokenServer(t, &requests, 4)
	defer server.Close()

	source := bridge.NewTokenSource(testConfig(server.URL), bridge.NewTransport(0), zerolog.Nop())

	_, err := source.Token(context.Background())
	require.NoError(t, err)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, requests.Load())
}

func TestTokenSource_SingleFlight(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"shared-token","expires_in":300}`)
	}))
	defer server.Close()

	source := bridge.NewTokenSource(testConfig(server.URL), bridge.NewTransport(0), zerolog.Nop())

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = source.Token(context.Background())
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-token", tokens[i])
	}
	assert.EqualValues(t, 1, requests.Load(), "concurrent callers must share one refresh request")
}

func TestTokenSource_GrantRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"Invalid client credentials"}`)
	}))
	defer server.Close()

	source := bridge.NewTokenSource(testConfig(server.URL), bridge.NewTransport(0), zerolog.Nop())

	_, err := source.Token(context.Background())
	require.Error(t, err)

	var authErr *ssoerrors.UpstreamAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_client", authErr.Code)
	assert.Equal(t, "Invalid client credentials", authErr.Description)
}

func TestTokenSource_ResetForcesRefresh(t *testing.T) {
	var requests atomic.Int32
	server := newTokenServer(t, &requests, 300)
	defer server.Close()

	source := bridge.NewTokenSource(testConfig(server.URL), bridge.NewTransport(0), zerolog.Nop())

	_, err := source.Token(context.Background())
	require.NoError(t, err)

	source.Reset()

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.EqualValues(t, 2, requests.Load())
}
