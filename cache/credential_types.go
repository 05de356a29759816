package cache

import (
	"context"
	"time"
)

// DefaultCredentialTypeTTL bounds how long an advisory credential-type
// listing is reused before the remote directory is asked again.
const DefaultCredentialTypeTTL = 30 * time.Second

// CredentialTypes caches the set of credential types the remote provider
// reports for a remote user id. The listing is advisory, so entries may be
// briefly stale.
type CredentialTypes interface {
	Get(ctx context.Context, remoteID string) ([]string, bool)
	Set(ctx context.Context, remoteID string, types []string)
	Close()
}
