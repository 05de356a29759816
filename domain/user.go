package domain

import "time"

// User is the locally mirrored record of a federated user. It is keyed by
// (Realm, Username); ExternalID links it back to the remote identity.
type User struct {
	ID             string              `bson:"_id,omitempty" json:"id,omitempty"`
	Realm          string              `bson:"realm" json:"realm"`
	Username       string              `bson:"username" json:"username"`
	Email          string              `bson:"email,omitempty" json:"email,omitempty"`
	FirstName      string              `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName       string              `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Enabled        bool                `bson:"enabled" json:"enabled"`
	EmailVerified  bool                `bson:"email_verified" json:"email_verified"`
	FederationLink string              `bson:"federation_link,omitempty" json:"federation_link,omitempty"`
	ExternalID     string              `bson:"external_id,omitempty" json:"external_id,omitempty"`
	Attributes     map[string][]string `bson:"attributes,omitempty" json:"attributes,omitempty"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// SetAttribute overwrites a single custom attribute on the record.
func (u *User) SetAttribute(name string, values []string) {
	if u.Attributes == nil {
		u.Attributes = make(map[string][]string)
	}
	u.Attributes[name] = values
}

// RemoteUser is the transient representation received from the remote
// directory. It is not retained beyond the call that produced it.
type RemoteUser struct {
	ID         string              `json:"id"`
	Username   string              `json:"username"`
	Email      string              `json:"email,omitempty"`
	FirstName  string              `json:"firstName,omitempty"`
	LastName   string              `json:"lastName,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}
