package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/fedbridge/domain"
)

// FederatedUsersCollection holds the locally mirrored federated users.
const FederatedUsersCollection = "federated_users"

// UserStore implements domain.UserStore on MongoDB.
type UserStore struct {
	users *mongo.Collection
}

// NewUserStore creates the store and ensures its indexes.
func NewUserStore(ctx context.Context, db *mongo.Database) (*UserStore, error) {
	store := &UserStore{users: db.Collection(FederatedUsersCollection)}
	if err := store.createIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *UserStore) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "realm", Value: 1}, {Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "realm", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(false),
		},
	}
	if _, err := s.users.Indexes().CreateMany(ctx, indexModels); err != nil {
		// Index creation fails when existing indexes conflict; surface it,
		// the (realm, username) uniqueness is load-bearing for the upsert.
		log.Warn().Err(err).Msg("failed to create federated user indexes")
		return fmt.Errorf("create federated user indexes: %w", err)
	}
	return nil
}

// GetUser returns the mirror record for (realm, username), or (nil, nil)
// when no record exists.
func (s *UserStore) GetUser(ctx context.Context, realm, username string) (*domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, bson.M{"realm": realm, "username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q in realm %q: %w", username, realm, err)
	}
	return &user, nil
}

// GetUserByExternalID returns the mirror record linked to a remote identity,
// or (nil, nil) when none is linked.
func (s *UserStore) GetUserByExternalID(ctx context.Context, realm, externalID string) (*domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, bson.M{"realm": realm, "external_id": externalID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id in realm %q: %w", realm, err)
	}
	return &user, nil
}

// CreateUser inserts a new mirror record.
func (s *UserStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("create user %q in realm %q: %w", user.Username, user.Realm, err)
	}
	return nil
}

// UpdateUser replaces an existing mirror record.
func (s *UserStore) UpdateUser(ctx context.Context, user *domain.User) error {
	result, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return fmt.Errorf("update user %q in realm %q: %w", user.Username, user.Realm, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update user %q in realm %q: no such record", user.Username, user.Realm)
	}
	return nil
}

var _ domain.UserStore = (*UserStore)(nil)
