package domain

// CredentialType identifies a kind of credential the remote provider can
// verify on our behalf.
type CredentialType string

const (
	CredentialTypePassword CredentialType = "password"
	CredentialTypeTOTP     CredentialType = "otp-totp"
	CredentialTypeHOTP     CredentialType = "otp-hotp"
)

// GrantParam returns the form parameter the remote token endpoint expects the
// secret under for a resource-owner grant of this credential type.
func (t CredentialType) GrantParam() string {
	switch t {
	case CredentialTypeTOTP:
		return "totp"
	case CredentialTypeHOTP:
		return "hotp"
	default:
		return "password"
	}
}

// CredentialInput carries a single challenge response for delegated
// validation. It is used once and never persisted.
type CredentialInput struct {
	Type              CredentialType `json:"credential_type"`
	ChallengeResponse string         `json:"-"`
}
