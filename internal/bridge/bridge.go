package bridge

import (
	"context"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go.pilab.hu/fedbridge/cache"
	"go.pilab.hu/fedbridge/domain"
	"go.pilab.hu/fedbridge/errors"
)

// supportedCredentialTypes is the set of types this bridge is willing to
// claim support for, independent of any specific user.
var supportedCredentialTypes = map[domain.CredentialType]struct{}{
	domain.CredentialTypePassword: {},
	domain.CredentialTypeTOTP:     {},
	domain.CredentialTypeHOTP:     {},
}

// Bridge binds one local realm mirror to one remote identity provider realm.
// It orchestrates token acquisition, remote queries, local upsert and
// delegated credential validation, and serves concurrent callers.
type Bridge struct {
	id        string
	cfg       Config
	transport *Transport
	tokens    *TokenSource
	directory *Directory
	store     domain.UserStore
	types     cache.CredentialTypes
	logger    zerolog.Logger
}

// New validates cfg and constructs a bridge for the federation instance
// identified by id. The id is written into every mirrored record as its
// federation link. typesCache is owned by the bridge and closed with it.
func New(id string, cfg Config, store domain.UserStore, typesCache cache.CredentialTypes, logger zerolog.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transport *Transport
	if cfg.SkipCertificateValidation {
		logger.Warn().Str("url", cfg.BaseURL).
			Msg("certificate validation disabled for federation instance")
		transport = NewInsecureTransport(DefaultTimeout)
	} else {
		transport = NewTransport(DefaultTimeout)
	}

	tokens := NewTokenSource(cfg, transport, logger)
	return &Bridge{
		id:        id,
		cfg:       cfg,
		transport: transport,
		tokens:    tokens,
		directory: NewDirectory(cfg, transport, tokens, typesCache, logger),
		store:     store,
		types:     typesCache,
		logger:    logger,
	}, nil
}

// ID returns the federation instance id.
func (b *Bridge) ID() string {
	return b.id
}

// ResolveByID resolves a user by its (possibly prefixed) external id and
// mirrors it locally. A user unknown upstream yields (nil, nil).
func (b *Bridge) ResolveByID(ctx context.Context, realm, externalID string) (*domain.User, error) {
	b.logger.Debug().Str("realm", realm).Str("external_id", NormalizeRemoteID(externalID)).
		Msg("resolving user by id")

	remote, err := b.directory.FindByID(ctx, externalID)
	if err != nil || remote == nil {
		return nil, err
	}
	return b.upsert(ctx, realm, remote)
}

// ResolveByUsername resolves a user by exact username. Usernames and emails
// share a namespace upstream, so an unmatched username falls back to an
// exact email query with the same value.
func (b *Bridge) ResolveByUsername(ctx context.Context, realm, username string) (*domain.User, error) {
	b.logger.Debug().Str("realm", realm).Str("username", username).Msg("resolving user by username")

	remote, err := b.directory.FindByAttribute(ctx, "username", username)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		remote, err = b.directory.FindByAttribute(ctx, "email", username)
		if err != nil || remote == nil {
			return nil, err
		}
	}
	return b.upsert(ctx, realm, remote)
}

// ResolveByEmail resolves a user by exact email.
func (b *Bridge) ResolveByEmail(ctx context.Context, realm, email string) (*domain.User, error) {
	b.logger.Debug().Str("realm", realm).Msg("resolving user by email")

	remote, err := b.directory.FindByAttribute(ctx, "email", email)
	if err != nil || remote == nil {
		return nil, err
	}
	return b.upsert(ctx, realm, remote)
}

// Reconcile re-validates that a previously imported record still exists
// upstream and refreshes the mirror.
func (b *Bridge) Reconcile(ctx context.Context, realm string, user *domain.User) (*domain.User, error) {
	b.logger.Debug().Str("realm", realm).Str("username", user.Username).Msg("reconciling imported user")
	return b.ResolveByUsername(ctx, realm, user.Username)
}

// SupportsCredentialType reports whether this bridge can delegate validation
// of the given credential type at all.
func (b *Bridge) SupportsCredentialType(credentialType domain.CredentialType) bool {
	_, ok := supportedCredentialTypes[credentialType]
	return ok
}

// IsConfiguredFor reports whether the user has the given credential type
// configured upstream. A record without an external id is not a federated
// identity known to this bridge; listing failures degrade to false rather
// than propagate.
func (b *Bridge) IsConfiguredFor(ctx context.Context, realm string, user *domain.User, credentialType domain.CredentialType) bool {
	if !b.SupportsCredentialType(credentialType) {
		return false
	}
	if user == nil || user.ExternalID == "" {
		return false
	}
	types := b.directory.CredentialTypes(ctx, user.ExternalID)
	_, ok := types[string(credentialType)]
	return ok
}

// ValidateCredential delegates a credential check to the remote token
// endpoint via a resource-owner grant with the user's own username and the
// supplied secret. Only the status code is consulted; the response body is
// never parsed into a token, since this bridge checks acceptance rather than
// harvesting a session.
//
// TODO: revoke the remote session the grant creates as a side effect.
func (b *Bridge) ValidateCredential(ctx context.Context, realm string, user *domain.User, credential domain.CredentialInput) (bool, error) {
	if !b.SupportsCredentialType(credential.Type) {
		return false, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", b.cfg.ClientID)
	form.Set("client_secret", b.cfg.ClientSecret)
	form.Set("username", user.Username)
	form.Set(credential.Type.GrantParam(), credential.ChallengeResponse)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return false, errors.NewUpstreamTransportError("credential validation", realm, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.transport.Do(req)
	if err != nil {
		b.logger.Error().Err(err).Str("realm", realm).Str("username", user.Username).
			Msg("credential validation request failed")
		return false, errors.NewUpstreamTransportError("credential validation", realm, err)
	}
	drainAndClose(resp.Body)

	valid := resp.StatusCode == http.StatusOK
	b.logger.Debug().Str("realm", realm).Str("username", user.Username).
		Str("credential_type", string(credential.Type)).Bool("valid", valid).
		Msg("credential validation completed")
	return valid, nil
}

// Close releases the bridge's resources: the cached service token is cleared
// so it cannot be reused by a reconstructed instance, and the remote
// connections are released.
func (b *Bridge) Close() error {
	b.tokens.Reset()
	b.transport.CloseIdleConnections()
	if b.types != nil {
		b.types.Close()
	}
	return nil
}

// upsert mirrors a remote representation into local storage, creating the
// record on first resolution and overwriting the federated fields on every
// subsequent one. Resolving unchanged remote data twice produces no second
// write.
func (b *Bridge) upsert(ctx context.Context, realm string, remote *domain.RemoteUser) (*domain.User, error) {
	user, err := b.store.GetUser(ctx, realm, remote.Username)
	if err != nil {
		return nil, err
	}

	created := false
	if user == nil {
		user = &domain.User{
			ID:        uuid.NewString(),
			Realm:     realm,
			Username:  remote.Username,
			CreatedAt: time.Now().UTC(),
		}
		created = true
	}

	previous := snapshotMirror(user)

	user.Enabled = true
	user.EmailVerified = true
	user.Email = remote.Email
	user.FirstName = remote.FirstName
	user.LastName = remote.LastName
	user.FederationLink = b.id
	user.ExternalID = remote.ID
	for name, values := range remote.Attributes {
		user.SetAttribute(name, values)
	}

	if !created && previous.equal(snapshotMirror(user)) {
		return user, nil
	}
	user.UpdatedAt = time.Now().UTC()

	if created {
		err = b.store.CreateUser(ctx, user)
	} else {
		err = b.store.UpdateUser(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	b.logger.Debug().Str("realm", realm).Str("username", user.Username).
		Str("external_id", user.ExternalID).Bool("created", created).
		Msg("mirrored federated user")
	return user, nil
}

// mirrorSnapshot captures the fields the upsert owns, for change detection.
type mirrorSnapshot struct {
	enabled, emailVerified bool
	email, first, last     string
	federationLink, extID  string
	attributes             map[string][]string
}

func snapshotMirror(u *domain.User) mirrorSnapshot {
	attrs := make(map[string][]string, len(u.Attributes))
	maps.Copy(attrs, u.Attributes)
	return mirrorSnapshot{
		enabled:        u.Enabled,
		emailVerified:  u.EmailVerified,
		email:          u.Email,
		first:          u.FirstName,
		last:           u.LastName,
		federationLink: u.FederationLink,
		extID:          u.ExternalID,
		attributes:     attrs,
	}
}

func (s mirrorSnapshot) equal(other mirrorSnapshot) bool {
	return s.enabled == other.enabled &&
		s.emailVerified == other.emailVerified &&
		s.email == other.email &&
		s.first == other.first &&
		s.last == other.last &&
		s.federationLink == other.federationLink &&
		s.extID == other.extID &&
		maps.EqualFunc(s.attributes, other.attributes, slices.Equal)
}

var (
	_ domain.UserResolver                  = (*Bridge)(nil)
	_ domain.CredentialValidator           = (*Bridge)(nil)
	_ domain.CredentialAvailabilityChecker = (*Bridge)(nil)
	_ io.Closer                            = (*Bridge)(nil)
)
