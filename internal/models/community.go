package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Community is a named space threads can be posted into.
// ExternalID is issued by the identity provider's organization feature.
type Community struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ExternalID string               `bson:"id" json:"externalId"`
	Username   string               `bson:"username" json:"username"`
	Name       string               `bson:"name" json:"name"`
	Image      string               `bson:"image,omitempty" json:"image,omitempty"`
	Bio        string               `bson:"bio,omitempty" json:"bio,omitempty"`
	CreatedBy  primitive.ObjectID   `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	ThreadIDs  []primitive.ObjectID `bson:"threads" json:"threadIds"`
	MemberIDs  []primitive.ObjectID `bson:"members" json:"memberIds"`
}
