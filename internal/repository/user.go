// Package repository implements the data access layer over the document store.
package repository

import (
	"context"
	"errors"
	"strings"

	"threads/internal/cache"
	"threads/internal/database"
	"threads/internal/models"
	"threads/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserFilter is the typed filter for paginated user listing.
type UserFilter struct {
	ExcludeExternalID string
	SearchTerm        string
	Skip              int64
	Limit             int64
	SortAsc           bool
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	List(ctx context.Context, filter UserFilter) ([]*models.User, int64, error)
	AddThread(ctx context.Context, userID, threadID primitive.ObjectID) error
	PullThreads(ctx context.Context, userIDs, threadIDs []primitive.ObjectID) error
}

type userRepository struct {
	store *database.Store
	log   *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(store *database.Store) UserRepository {
	return &userRepository{
		store: store,
		log:   observability.NewRepoLogger(database.CollUsers),
	}
}

func (r *userRepository) coll(ctx context.Context) (*mongo.Collection, error) {
	return r.store.Collection(ctx, database.CollUsers)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByExternalID", database.CollUsers)
	defer span.End()

	var user models.User
	key := cache.UserKey(externalID)

	err := cache.Aside(ctx, key, &user, cache.UserTTL, func() error {
		coll, err := r.coll(ctx)
		if err != nil {
			return err
		}
		defer observability.TrackQuery("GetByExternalID", database.CollUsers)()

		err = coll.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.NewNotFoundError("User", externalID)
		}
		return err
	})
	if err != nil {
		if !models.IsNotFound(err) {
			r.log.LogError(ctx, err, "GetByExternalID")
			observability.StoreErrors.WithLabelValues("GetByExternalID").Inc()
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByID", database.CollUsers)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("GetByID", database.CollUsers)()

	var user models.User
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NewNotFoundError("User", id.Hex())
	}
	if err != nil {
		r.log.LogError(ctx, err, "GetByID")
		observability.StoreErrors.WithLabelValues("GetByID").Inc()
		return nil, err
	}
	return &user, nil
}

// Upsert creates or updates the user addressed by ExternalID. The username is
// normalized to lowercase on write and the onboarded flag is raised; the
// denormalized threads index is only initialized on first insert.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	ctx, span := observability.TraceStoreMethod(ctx, "Upsert", database.CollUsers)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("Upsert", database.CollUsers)()

	update := bson.M{
		"$set": bson.M{
			"username":  strings.ToLower(user.Username),
			"name":      user.Name,
			"bio":       user.Bio,
			"image":     user.Image,
			"onboarded": true,
		},
		"$setOnInsert": bson.M{
			"externalId": user.ExternalID,
			"threads":    []primitive.ObjectID{},
		},
	}

	res := coll.FindOneAndUpdate(ctx,
		bson.M{"externalId": user.ExternalID},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	if err := res.Decode(user); err != nil {
		r.log.LogError(ctx, err, "Upsert")
		observability.StoreErrors.WithLabelValues("Upsert").Inc()
		return err
	}

	cache.InvalidateUser(ctx, user.ExternalID)
	r.log.LogWrite(ctx, "Upsert", map[string]interface{}{"externalId": user.ExternalID})
	return nil
}

func (r *userRepository) List(ctx context.Context, f UserFilter) ([]*models.User, int64, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "List", database.CollUsers)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer observability.TrackQuery("List", database.CollUsers)()

	filter := bson.M{"externalId": bson.M{"$ne": f.ExcludeExternalID}}
	if f.SearchTerm != "" {
		re := primitive.Regex{Pattern: f.SearchTerm, Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"username": re},
			bson.M{"name": re},
		}
	}

	// ObjectIDs are time-ordered, so sorting by _id sorts by creation time.
	sortDir := -1
	if f.SortAsc {
		sortDir = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: sortDir}}).
		SetSkip(f.Skip).
		SetLimit(f.Limit)

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		r.log.LogError(ctx, err, "List")
		observability.StoreErrors.WithLabelValues("List").Inc()
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, err
	}

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) AddThread(ctx context.Context, userID, threadID primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "AddThread", database.CollUsers)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("AddThread", database.CollUsers)()

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"threads": threadID}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "AddThread")
		observability.StoreErrors.WithLabelValues("AddThread").Inc()
		return err
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("User", userID.Hex())
	}
	r.invalidateCached(ctx, []primitive.ObjectID{userID})
	return nil
}

// PullThreads removes the given thread references from every listed user's
// denormalized threads index. Used by the cascading delete engine.
func (r *userRepository) PullThreads(ctx context.Context, userIDs, threadIDs []primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "PullThreads", database.CollUsers)
	defer span.End()

	if len(userIDs) == 0 || len(threadIDs) == 0 {
		return nil
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("PullThreads", database.CollUsers)()

	_, err = coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": userIDs}},
		bson.M{"$pull": bson.M{"threads": bson.M{"$in": threadIDs}}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "PullThreads")
		observability.StoreErrors.WithLabelValues("PullThreads").Inc()
		return err
	}
	r.invalidateCached(ctx, userIDs)
	return nil
}

// invalidateCached drops the cached entries of the given users after a
// mutation of their denormalized threads index. Cached users are keyed by
// external id, so the ids are resolved first. Best-effort, like all cache
// writes.
func (r *userRepository) invalidateCached(ctx context.Context, userIDs []primitive.ObjectID) {
	if cache.GetClient() == nil || len(userIDs) == 0 {
		return
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return
	}

	cursor, err := coll.Find(ctx,
		bson.M{"_id": bson.M{"$in": userIDs}},
		options.Find().SetProjection(bson.M{"externalId": 1}),
	)
	if err != nil {
		r.log.LogError(ctx, err, "invalidateCached")
		return
	}
	defer cursor.Close(ctx)

	var refs []struct {
		ExternalID string `bson:"externalId"`
	}
	if err := cursor.All(ctx, &refs); err != nil {
		r.log.LogError(ctx, err, "invalidateCached")
		return
	}
	for _, ref := range refs {
		cache.InvalidateUser(ctx, ref.ExternalID)
	}
}
