package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"go.pilab.hu/fedbridge/cache"
	"go.pilab.hu/fedbridge/domain"
	"go.pilab.hu/fedbridge/errors"
)

// NormalizeRemoteID strips any host-side prefix from a caller-supplied id.
// Ids arrive in the form "<provider-id>:<remote-id>"; only the substring
// after the last separator addresses the remote user.
func NormalizeRemoteID(raw string) string {
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

// credentialRepresentation is the remote credential listing entry; only the
// type is of interest here.
type credentialRepresentation struct {
	Type string `json:"type"`
}

// Directory is the attribute-based user query layer against the remote
// admin API. Every call is bearer-authenticated with the service token.
type Directory struct {
	cfg       Config
	transport *Transport
	tokens    *TokenSource
	types     cache.CredentialTypes
	logger    zerolog.Logger
}

// NewDirectory creates a query layer over the given transport and token
// source. typesCache may be nil to disable credential-type caching.
func NewDirectory(cfg Config, transport *Transport, tokens *TokenSource, typesCache cache.CredentialTypes, logger zerolog.Logger) *Directory {
	return &Directory{cfg: cfg, transport: transport, tokens: tokens, types: typesCache, logger: logger}
}

// FindByAttribute queries the remote realm for users whose attribute matches
// value exactly. Precision over recall: only an unambiguous single match
// resolves; zero and multiple results both return (nil, nil).
func (d *Directory) FindByAttribute(ctx context.Context, name, value string) (*domain.RemoteUser, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("max", "10")
	query.Set("briefRepresentation", "true")
	query.Set("emailVerified", "true")
	query.Set("enabled", "true")
	query.Set("exact", "true")
	query.Set(name, value)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.usersURL(query), nil)
	if err != nil {
		return nil, errors.NewUpstreamTransportError("user search", d.cfg.Realm, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.transport.Do(req)
	if err != nil {
		d.logger.Error().Err(err).Str("realm", d.cfg.Realm).Str("attribute", name).
			Msg("user search request failed")
		return nil, errors.NewUpstreamTransportError("user search", d.cfg.Realm, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		d.logger.Error().Str("realm", d.cfg.Realm).Str("attribute", name).Int("status", resp.StatusCode).
			Msg("user search returned unexpected status")
		return nil, errors.NewUpstreamStatusError("user search", d.cfg.Realm, resp.StatusCode)
	}

	var results []domain.RemoteUser
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.NewUpstreamTransportError("user search", d.cfg.Realm, err)
	}

	d.logger.Debug().Str("realm", d.cfg.Realm).Str("attribute", name).Int("results", len(results)).
		Msg("user search completed")

	if len(results) != 1 {
		return nil, nil
	}
	return &results[0], nil
}

// FindByID retrieves a single user representation by its (possibly prefixed)
// id. A missing or unparseable user yields (nil, nil).
func (d *Directory) FindByID(ctx context.Context, rawID string) (*domain.RemoteUser, error) {
	remoteID := NormalizeRemoteID(rawID)

	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.userURL(remoteID), nil)
	if err != nil {
		return nil, errors.NewUpstreamTransportError("user by id", d.cfg.Realm, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.transport.Do(req)
	if err != nil {
		d.logger.Error().Err(err).Str("realm", d.cfg.Realm).Msg("user by id request failed")
		return nil, errors.NewUpstreamTransportError("user by id", d.cfg.Realm, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		d.logger.Error().Str("realm", d.cfg.Realm).Int("status", resp.StatusCode).
			Msg("user by id returned unexpected status")
		return nil, errors.NewUpstreamStatusError("user by id", d.cfg.Realm, resp.StatusCode)
	}

	var result domain.RemoteUser
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.ID == "" {
		d.logger.Debug().Str("realm", d.cfg.Realm).Msg("user by id response not parseable")
		return nil, nil
	}
	return &result, nil
}

// CredentialTypes lists the credential types the remote provider reports for
// a remote user. The call is advisory: any failure is logged and mapped to
// an empty set rather than propagated.
func (d *Directory) CredentialTypes(ctx context.Context, remoteID string) map[string]struct{} {
	if d.types != nil {
		if cached, ok := d.types.Get(ctx, remoteID); ok {
			return toSet(cached)
		}
	}

	token, err := d.tokens.Token(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Str("realm", d.cfg.Realm).Msg("credential listing skipped, no token")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.credentialsURL(remoteID), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.transport.Do(req)
	if err != nil {
		d.logger.Warn().Err(err).Str("realm", d.cfg.Realm).Msg("credential listing request failed")
		return nil
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn().Str("realm", d.cfg.Realm).Int("status", resp.StatusCode).
			Msg("credential listing returned unexpected status")
		return nil
	}

	var credentials []credentialRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&credentials); err != nil {
		d.logger.Warn().Err(err).Str("realm", d.cfg.Realm).Msg("credential listing not parseable")
		return nil
	}

	types := make([]string, 0, len(credentials))
	for _, c := range credentials {
		if c.Type != "" {
			types = append(types, c.Type)
		}
	}
	if d.types != nil {
		d.types.Set(ctx, remoteID, types)
	}
	return toSet(types)
}

func toSet(types []string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}
