// Package models contains data structures for the application's domain models.
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User represents an account known to the identity provider and mirrored in the store.
// ExternalID is the provider-issued identifier; it is distinct from the store primary key.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExternalID string             `bson:"externalId" json:"externalId"`
	Username   string             `bson:"username" json:"username"`
	Name       string             `bson:"name" json:"name"`
	Bio        string             `bson:"bio,omitempty" json:"bio,omitempty"`
	Image      string             `bson:"image,omitempty" json:"image,omitempty"`
	Onboarded  bool               `bson:"onboarded" json:"onboarded"`

	// ThreadIDs is a denormalized index of threads authored by this user.
	// Maintained with add-set semantics; authorship itself lives on the thread.
	ThreadIDs []primitive.ObjectID `bson:"threads" json:"threadIds"`
}
