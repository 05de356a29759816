package domain

import "context"

// UserStore defines the local mirror storage collaborator. Records are keyed
// by (realm, username); lookups return (nil, nil) when no record exists.
type UserStore interface {
	GetUser(ctx context.Context, realm, username string) (*User, error)
	GetUserByExternalID(ctx context.Context, realm, externalID string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
}

// UserResolver looks up federated users and mirrors them locally.
type UserResolver interface {
	ResolveByID(ctx context.Context, realm, externalID string) (*User, error)
	ResolveByUsername(ctx context.Context, realm, username string) (*User, error)
	ResolveByEmail(ctx context.Context, realm, email string) (*User, error)
	// Reconcile re-validates that a previously imported record still exists
	// upstream and refreshes it.
	Reconcile(ctx context.Context, realm string, user *User) (*User, error)
}

// CredentialValidator delegates a credential check to the remote provider.
type CredentialValidator interface {
	ValidateCredential(ctx context.Context, realm string, user *User, credential CredentialInput) (bool, error)
}

// CredentialAvailabilityChecker answers whether a credential type can be
// validated at all, and whether a given user has one configured upstream.
type CredentialAvailabilityChecker interface {
	SupportsCredentialType(credentialType CredentialType) bool
	IsConfiguredFor(ctx context.Context, realm string, user *User, credentialType CredentialType) bool
}
