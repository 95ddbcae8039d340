package repository

import (
	"context"
	"errors"
	"strings"

	"threads/internal/database"
	"threads/internal/models"
	"threads/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CommunityRepository defines persistence operations for communities.
type CommunityRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Community, error)
	Upsert(ctx context.Context, community *models.Community) error
	AddThread(ctx context.Context, communityID, threadID primitive.ObjectID) error
	AddMember(ctx context.Context, communityID, userID primitive.ObjectID) error
	RemoveMember(ctx context.Context, communityID, userID primitive.ObjectID) error
	PullThreads(ctx context.Context, communityIDs, threadIDs []primitive.ObjectID) error
}

type communityRepository struct {
	store *database.Store
	log   *observability.RepoLogger
}

// NewCommunityRepository returns a new CommunityRepository implementation.
func NewCommunityRepository(store *database.Store) CommunityRepository {
	return &communityRepository{
		store: store,
		log:   observability.NewRepoLogger(database.CollCommunities),
	}
}

func (r *communityRepository) coll(ctx context.Context) (*mongo.Collection, error) {
	return r.store.Collection(ctx, database.CollCommunities)
}

// GetByExternalID resolves a community by the externally-issued identifier
// stored in the "id" field, not by the store primary key.
func (r *communityRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Community, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByExternalID", database.CollCommunities)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("GetByExternalID", database.CollCommunities)()

	var community models.Community
	err = coll.FindOne(ctx, bson.M{"id": externalID}).Decode(&community)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NewNotFoundError("Community", externalID)
	}
	if err != nil {
		r.log.LogError(ctx, err, "GetByExternalID")
		observability.StoreErrors.WithLabelValues("GetByExternalID").Inc()
		return nil, err
	}
	return &community, nil
}

func (r *communityRepository) Upsert(ctx context.Context, community *models.Community) error {
	ctx, span := observability.TraceStoreMethod(ctx, "Upsert", database.CollCommunities)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("Upsert", database.CollCommunities)()

	update := bson.M{
		"$set": bson.M{
			"username": strings.ToLower(community.Username),
			"name":     community.Name,
			"image":    community.Image,
			"bio":      community.Bio,
		},
		"$setOnInsert": bson.M{
			"id":        community.ExternalID,
			"createdBy": community.CreatedBy,
			"threads":   []primitive.ObjectID{},
			"members":   []primitive.ObjectID{community.CreatedBy},
		},
	}

	res := coll.FindOneAndUpdate(ctx,
		bson.M{"id": community.ExternalID},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	if err := res.Decode(community); err != nil {
		r.log.LogError(ctx, err, "Upsert")
		observability.StoreErrors.WithLabelValues("Upsert").Inc()
		return err
	}
	r.log.LogWrite(ctx, "Upsert", map[string]interface{}{"id": community.ExternalID})
	return nil
}

func (r *communityRepository) AddThread(ctx context.Context, communityID, threadID primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "AddThread", database.CollCommunities)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("AddThread", database.CollCommunities)()

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": communityID},
		bson.M{"$addToSet": bson.M{"threads": threadID}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "AddThread")
		observability.StoreErrors.WithLabelValues("AddThread").Inc()
		return err
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Community", communityID.Hex())
	}
	return nil
}

func (r *communityRepository) AddMember(ctx context.Context, communityID, userID primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "AddMember", database.CollCommunities)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("AddMember", database.CollCommunities)()

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": communityID},
		bson.M{"$addToSet": bson.M{"members": userID}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "AddMember")
		observability.StoreErrors.WithLabelValues("AddMember").Inc()
		return err
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Community", communityID.Hex())
	}
	return nil
}

func (r *communityRepository) RemoveMember(ctx context.Context, communityID, userID primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "RemoveMember", database.CollCommunities)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("RemoveMember", database.CollCommunities)()

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": communityID},
		bson.M{"$pull": bson.M{"members": userID}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "RemoveMember")
		observability.StoreErrors.WithLabelValues("RemoveMember").Inc()
		return err
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Community", communityID.Hex())
	}
	return nil
}

// PullThreads removes the given thread references from every listed
// community's threads set. Used by the cascading delete engine.
func (r *communityRepository) PullThreads(ctx context.Context, communityIDs, threadIDs []primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "PullThreads", database.CollCommunities)
	defer span.End()

	if len(communityIDs) == 0 || len(threadIDs) == 0 {
		return nil
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("PullThreads", database.CollCommunities)()

	_, err = coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": communityIDs}},
		bson.M{"$pull": bson.M{"threads": bson.M{"$in": threadIDs}}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "PullThreads")
		observability.StoreErrors.WithLabelValues("PullThreads").Inc()
	}
	return err
}
