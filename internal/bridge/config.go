package bridge

import (
	"net/url"
	"strconv"
	"strings"

	"go.pilab.hu/fedbridge/errors"
)

// Property keys understood by a federation instance configuration.
const (
	PropKeycloakURL               = "keycloak.url"
	PropKeycloakRealm             = "keycloak.realm"
	PropKeycloakClientID          = "keycloak.client_id"
	PropKeycloakClientSecret      = "keycloak.client_secret"
	PropSkipCertificateValidation = "keycloak.skip_certificate_validation"
)

// Properties is the flat, possibly multi-valued property map a federation
// instance is configured from.
type Properties map[string][]string

// First returns the first value for key, or "" when the key is absent.
func (p Properties) First(key string) string {
	values := p[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Config holds the validated, immutable connection parameters for one
// federation instance.
type Config struct {
	// BaseURL is the remote provider's base URL without a trailing slash.
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	// SkipCertificateValidation disables server certificate checks on the
	// remote connection. Default false.
	SkipCertificateValidation bool
}

// ConfigFrom builds a Config from a property map. Call Validate before use.
func ConfigFrom(props Properties) Config {
	skip, _ := strconv.ParseBool(props.First(PropSkipCertificateValidation))
	return Config{
		BaseURL:                   strings.TrimSuffix(props.First(PropKeycloakURL), "/"),
		Realm:                     props.First(PropKeycloakRealm),
		ClientID:                  props.First(PropKeycloakClientID),
		ClientSecret:              props.First(PropKeycloakClientSecret),
		SkipCertificateValidation: skip,
	}
}

// Validate checks the configuration once, at configuration time.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errors.NewConfigError(PropKeycloakURL, "invalid url")
	}
	if c.Realm == "" {
		return errors.NewConfigError(PropKeycloakRealm, "realm is required")
	}
	if c.ClientID == "" {
		return errors.NewConfigError(PropKeycloakClientID, "client id is required")
	}
	if c.ClientSecret == "" {
		return errors.NewConfigError(PropKeycloakClientSecret, "client secret is required")
	}
	return nil
}

// tokenURL is the endpoint used for both the service-credential grant and
// delegated user-credential validation.
func (c Config) tokenURL() string {
	return c.BaseURL + "/realms/" + url.PathEscape(c.Realm) + "/protocol/openid-connect/token"
}

// usersURL is the admin user collection endpoint, optionally with a query.
func (c Config) usersURL(query url.Values) string {
	endpoint := c.BaseURL + "/admin/realms/" + url.PathEscape(c.Realm) + "/users"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// userURL is the admin endpoint for a single user representation.
func (c Config) userURL(remoteID string) string {
	return c.BaseURL + "/admin/realms/" + url.PathEscape(c.Realm) + "/users/" + url.PathEscape(remoteID)
}

// credentialsURL is the admin endpoint listing a user's configured credentials.
func (c Config) credentialsURL(remoteID string) string {
	return c.userURL(remoteID) + "/credentials"
}
