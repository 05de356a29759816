package services

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"go.pilab.hu/fedbridge/cache"
	"go.pilab.hu/fedbridge/domain"
	"go.pilab.hu/fedbridge/internal/bridge"
)

var (
	ErrInstanceNotFound = errors.New("federation instance not found")
	ErrInstanceExists   = errors.New("federation instance already registered")
)

// CredentialTypeCacheFactory builds the advisory credential-type cache for a
// new federation instance. Each bridge owns the cache it is handed.
type CredentialTypeCacheFactory func(instanceID string) cache.CredentialTypes

// Registry manages the configured federation instances. One bridge exists
// per instance; bridges are never shared across differing configurations.
type Registry struct {
	store      domain.UserStore
	typesCache CredentialTypeCacheFactory
	logger     zerolog.Logger

	mu      sync.RWMutex
	bridges map[string]*bridge.Bridge
}

// NewRegistry creates an empty registry. typesCache may be nil, in which
// case instances get an in-memory cache with the default TTL.
func NewRegistry(store domain.UserStore, typesCache CredentialTypeCacheFactory, logger zerolog.Logger) *Registry {
	if typesCache == nil {
		typesCache = func(string) cache.CredentialTypes {
			return cache.NewMemoryCredentialTypes(cache.DefaultCredentialTypeTTL)
		}
	}
	return &Registry{
		store:      store,
		typesCache: typesCache,
		logger:     logger,
		bridges:    make(map[string]*bridge.Bridge),
	}
}

// Register validates the instance configuration and constructs its bridge.
// Configuration errors are fatal for the instance and never retried.
func (r *Registry) Register(id string, props bridge.Properties) (*bridge.Bridge, error) {
	cfg := bridge.ConfigFrom(props)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bridges[id]; exists {
		return nil, ErrInstanceExists
	}

	b, err := bridge.New(id, cfg, r.store, r.typesCache(id), r.logger.With().Str("federation", id).Logger())
	if err != nil {
		return nil, err
	}
	r.bridges[id] = b
	r.logger.Info().Str("federation", id).Str("realm", cfg.Realm).Msg("federation instance registered")
	return b, nil
}

// Bridge returns the bridge for a federation instance.
func (r *Registry) Bridge(id string) (*bridge.Bridge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return b, nil
}

// Deregister closes and removes a single instance.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bridges[id]
	if !ok {
		return ErrInstanceNotFound
	}
	delete(r.bridges, id)
	return b.Close()
}

// Close closes every registered instance.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for id, b := range r.bridges {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.bridges, id)
	}
	return errors.Join(errs...)
}
