package errors

import "fmt"

// ConfigError reports an invalid or missing federation configuration value.
// It is fatal at setup time and never retried.
type ConfigError struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for a named configuration field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// UpstreamAuthError reports a rejected service-credential grant. No
// resolution can proceed without a token, so this propagates as a hard
// failure. Code and Description carry the remote token endpoint's
// error/error_description fields.
type UpstreamAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *UpstreamAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewUpstreamAuthError creates an UpstreamAuthError from the remote error
// response fields.
func NewUpstreamAuthError(code, description string) *UpstreamAuthError {
	return &UpstreamAuthError{Code: code, Description: description}
}

// UpstreamError reports a transport failure or unexpected status from the
// remote admin API. It carries enough context to diagnose without
// re-deriving: the operation, the realm, and the HTTP status (0 when the
// request never completed).
type UpstreamError struct {
	Operation  string `json:"operation"`
	Realm      string `json:"realm"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (realm %s): %v", e.Operation, e.Realm, e.Err)
	}
	return fmt.Sprintf("%s (realm %s): unexpected status %d", e.Operation, e.Realm, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamStatusError creates an UpstreamError for a non-success status.
func NewUpstreamStatusError(operation, realm string, statusCode int) *UpstreamError {
	return &UpstreamError{Operation: operation, Realm: realm, StatusCode: statusCode}
}

// NewUpstreamTransportError creates an UpstreamError for a request that
// failed before producing a response.
func NewUpstreamTransportError(operation, realm string, err error) *UpstreamError {
	return &UpstreamError{Operation: operation, Realm: realm, Err: err}
}
