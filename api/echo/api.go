package echo

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/fedbridge/domain"
	"go.pilab.hu/fedbridge/errors"
	"go.pilab.hu/fedbridge/services"
)

// FederationAPI exposes the federation bridge operations over HTTP for
// administrative use and host integration.
type FederationAPI struct {
	registry *services.Registry
}

// NewFederationAPI initializes the federation API over a registry.
func NewFederationAPI(registry *services.Registry) *FederationAPI {
	return &FederationAPI{registry: registry}
}

// RegisterRoutes registers the federation routes.
func (fa *FederationAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", fa.HealthHandler)
	e.GET("/federation/:instance/users/lookup", fa.LookupHandler)
	e.POST("/federation/:instance/credentials/validate", fa.ValidateHandler)
}

// HealthHandler reports liveness.
func (fa *FederationAPI) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// LookupHandler resolves a federated user by exactly one of the id,
// username, or email query parameters and returns the mirrored record.
func (fa *FederationAPI) LookupHandler(c echo.Context) error {
	bridge, err := fa.registry.Bridge(c.Param("instance"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown federation instance"})
	}

	realm := c.QueryParam("realm")
	if realm == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "realm is required"})
	}

	var (
		user *domain.User
		ctx  = c.Request().Context()
	)
	switch {
	case c.QueryParam("id") != "":
		user, err = bridge.ResolveByID(ctx, realm, c.QueryParam("id"))
	case c.QueryParam("username") != "":
		user, err = bridge.ResolveByUsername(ctx, realm, c.QueryParam("username"))
	case c.QueryParam("email") != "":
		user, err = bridge.ResolveByEmail(ctx, realm, c.QueryParam("email"))
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "one of id, username or email is required"})
	}
	if err != nil {
		return fa.upstreamError(c, err)
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}
	return c.JSON(http.StatusOK, user)
}

// validateRequest is the delegated credential validation request body. The
// secret is used once and never echoed back.
type validateRequest struct {
	Realm          string `json:"realm"`
	Username       string `json:"username"`
	CredentialType string `json:"credential_type"`
	Secret         string `json:"secret"`
}

// ValidateHandler resolves the user and delegates the credential check to
// the remote provider. An invalid credential is a normal outcome, reported
// as {"valid": false} rather than an error status.
func (fa *FederationAPI) ValidateHandler(c echo.Context) error {
	bridge, err := fa.registry.Bridge(c.Param("instance"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown federation instance"})
	}

	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Realm == "" || req.Username == "" || req.Secret == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "realm, username and secret are required"})
	}

	credentialType := domain.CredentialType(req.CredentialType)
	if req.CredentialType == "" {
		credentialType = domain.CredentialTypePassword
	}
	if !bridge.SupportsCredentialType(credentialType) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported credential type"})
	}

	ctx := c.Request().Context()
	user, err := bridge.ResolveByUsername(ctx, req.Realm, req.Username)
	if err != nil {
		return fa.upstreamError(c, err)
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}

	valid, err := bridge.ValidateCredential(ctx, req.Realm, user, domain.CredentialInput{
		Type:              credentialType,
		ChallengeResponse: req.Secret,
	})
	if err != nil {
		return fa.upstreamError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}

// upstreamError maps bridge failures onto HTTP statuses: remote problems are
// gateway errors, everything else is internal.
func (fa *FederationAPI) upstreamError(c echo.Context, err error) error {
	var authErr *errors.UpstreamAuthError
	if stderrors.As(err, &authErr) {
		return c.JSON(http.StatusBadGateway, authErr)
	}
	var upstreamErr *errors.UpstreamError
	if stderrors.As(err, &upstreamErr) {
		return c.JSON(http.StatusBadGateway, upstreamErr)
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
