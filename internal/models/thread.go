package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Thread is a post or, when ParentID is set, a reply to another thread.
// The parent/child relation forms a forest rooted at threads without a parent.
type Thread struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Text        string               `bson:"text" json:"text"`
	AuthorID    primitive.ObjectID   `bson:"author" json:"authorId"`
	CommunityID *primitive.ObjectID  `bson:"community,omitempty" json:"communityId,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	ParentID    *primitive.ObjectID  `bson:"parentId,omitempty" json:"parentId,omitempty"`
	ChildIDs    []primitive.ObjectID `bson:"children" json:"childIds"`

	// Expanded references, present in query results only.
	Author    *User      `bson:"authorDoc,omitempty" json:"author,omitempty"`
	Community *Community `bson:"communityDoc,omitempty" json:"community,omitempty"`
	Replies   []*Thread  `bson:"-" json:"replies,omitempty"`
}

// IsTopLevel reports whether the thread starts a conversation rather than replying to one.
func (t *Thread) IsTopLevel() bool {
	return t.ParentID == nil
}
