package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"go.pilab.hu/fedbridge/errors"
)

// expirySafetyMargin is subtracted from the advertised token lifetime so a
// token is never used when it could expire mid-flight.
const expirySafetyMargin = 5 * time.Second

// accessTokenResponse is the remote token endpoint's JSON body. Unknown
// fields are ignored.
type accessTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenSource is a single-slot, expiry-aware cache of the service-credential
// access token for one federation instance. Refresh is single-flight:
// concurrent callers observing an expired token share one grant request.
type TokenSource struct {
	cfg       Config
	transport *Transport
	logger    zerolog.Logger

	mu        sync.RWMutex
	value     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenSource creates an empty token source for the given instance.
func NewTokenSource(cfg Config, transport *Transport, logger zerolog.Logger) *TokenSource {
	return &TokenSource{cfg: cfg, transport: transport, logger: logger}
}

// Token returns a valid bearer token, refreshing it via a client-credentials
// grant when the cached one is absent or expired.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	value, err, _ := s.group.Do("refresh", func() (any, error) {
		// A caller queued behind a completed refresh can use its result.
		if token, ok := s.cached(); ok {
			return token, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value != "" && s.expiresAt.After(time.Now()) {
		return s.value, true
	}
	return "", false
}

func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	s.logger.Debug().Str("realm", s.cfg.Realm).Msg("retrieving new access token")

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.NewUpstreamTransportError("token refresh", s.cfg.Realm, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.transport.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("realm", s.cfg.Realm).Msg("token refresh request failed")
		return "", errors.NewUpstreamTransportError("token refresh", s.cfg.Realm, err)
	}
	defer drainAndClose(resp.Body)

	var result accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		s.logger.Error().Err(err).Str("realm", s.cfg.Realm).Int("status", resp.StatusCode).
			Msg("token response not parseable")
		return "", errors.NewUpstreamTransportError("token refresh", s.cfg.Realm, err)
	}

	if result.Error != "" {
		s.logger.Error().Str("realm", s.cfg.Realm).Str("error", result.Error).
			Msg("service-credential grant rejected")
		return "", errors.NewUpstreamAuthError(result.Error, result.ErrorDescription)
	}
	if resp.StatusCode != http.StatusOK || result.AccessToken == "" {
		s.logger.Error().Str("realm", s.cfg.Realm).Int("status", resp.StatusCode).
			Msg("token refresh returned unexpected status")
		return "", errors.NewUpstreamStatusError("token refresh", s.cfg.Realm, resp.StatusCode)
	}

	expiresAt := time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - expirySafetyMargin)

	s.mu.Lock()
	s.value = result.AccessToken
	s.expiresAt = expiresAt
	s.mu.Unlock()

	return result.AccessToken, nil
}

// Reset clears the cached token so a stale one cannot outlive its bridge.
func (s *TokenSource) Reset() {
	s.mu.Lock()
	s.value = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}
