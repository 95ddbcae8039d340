package repository

import (
	"context"
	"errors"
	"time"

	"threads/internal/cache"
	"threads/internal/database"
	"threads/internal/models"
	"threads/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ThreadRepository defines persistence operations for threads and replies.
type ThreadRepository interface {
	Create(ctx context.Context, thread *models.Thread) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Thread, error)
	GetByIDExpanded(ctx context.Context, id primitive.ObjectID) (*models.Thread, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Thread, error)
	GetRootPage(ctx context.Context, skip, limit int64) ([]*models.Thread, int64, error)
	GetByIDsExpanded(ctx context.Context, ids []primitive.ObjectID) ([]*models.Thread, error)
	AddChild(ctx context.Context, parentID, childID primitive.ObjectID) error
	RemoveChild(ctx context.Context, parentID, childID primitive.ObjectID) error
	ChildrenOf(ctx context.Context, parentID primitive.ObjectID) ([]*models.Thread, error)
	FindComments(ctx context.Context, ids []primitive.ObjectID, excludeAuthor primitive.ObjectID, skip, limit int64) ([]*models.Thread, int64, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

type threadRepository struct {
	store *database.Store
	log   *observability.RepoLogger
}

// NewThreadRepository returns a new ThreadRepository implementation.
func NewThreadRepository(store *database.Store) ThreadRepository {
	return &threadRepository{
		store: store,
		log:   observability.NewRepoLogger(database.CollThreads),
	}
}

func (r *threadRepository) coll(ctx context.Context) (*mongo.Collection, error) {
	return r.store.Collection(ctx, database.CollThreads)
}

// lookupStages expand the author (and optionally community) reference on each
// pipeline document under authorDoc/communityDoc.
func lookupAuthorStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.CollUsers},
			{Key: "localField", Value: "author"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "authorDoc"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$authorDoc"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

func lookupCommunityStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.CollCommunities},
			{Key: "localField", Value: "community"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "communityDoc"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$communityDoc"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

func (r *threadRepository) Create(ctx context.Context, thread *models.Thread) error {
	ctx, span := observability.TraceStoreMethod(ctx, "Create", database.CollThreads)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("Create", database.CollThreads)()

	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	if thread.ChildIDs == nil {
		thread.ChildIDs = []primitive.ObjectID{}
	}

	res, err := coll.InsertOne(ctx, thread)
	if err != nil {
		r.log.LogError(ctx, err, "Create")
		observability.StoreErrors.WithLabelValues("Create").Inc()
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		thread.ID = id
	}
	r.log.LogWrite(ctx, "Create", map[string]interface{}{"id": thread.ID.Hex(), "topLevel": thread.IsTopLevel()})
	return nil
}

func (r *threadRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByID", database.CollThreads)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("GetByID", database.CollThreads)()

	var thread models.Thread
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&thread)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NewNotFoundError("Thread", id.Hex())
	}
	if err != nil {
		r.log.LogError(ctx, err, "GetByID")
		observability.StoreErrors.WithLabelValues("GetByID").Inc()
		return nil, err
	}
	return &thread, nil
}

// GetByIDExpanded loads a thread with its author and community expanded, plus
// its replies two levels deep with their authors. Deeper nesting is not
// expanded; callers needing more depth re-query from the deeper thread.
//
// The expanded view is served cache-aside. Mutations invalidate the key of
// the thread they touch directly, so a cached view can go stale one reply
// level deep until the TTL expires: adding a reply invalidates its parent's
// key, not its grandparent's.
func (r *threadRepository) GetByIDExpanded(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByIDExpanded", database.CollThreads)
	defer span.End()

	var thread models.Thread
	err := cache.Aside(ctx, cache.ThreadKey(id.Hex()), &thread, cache.ThreadTTL, func() error {
		loaded, err := r.loadExpanded(ctx, id)
		if err != nil {
			return err
		}
		thread = *loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepository) loadExpanded(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("GetByIDExpanded", database.CollThreads)()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: id}}}},
	}
	pipeline = append(pipeline, lookupAuthorStages()...)
	pipeline = append(pipeline, lookupCommunityStages()...)

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		r.log.LogError(ctx, err, "GetByIDExpanded")
		observability.StoreErrors.WithLabelValues("GetByIDExpanded").Inc()
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []*models.Thread
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, models.NewNotFoundError("Thread", id.Hex())
	}

	thread := results[0]
	if err := r.attachReplies(ctx, []*models.Thread{thread}, 2); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetByIDs loads threads by id without expanding any references.
func (r *threadRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Thread, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByIDs", database.CollThreads)
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("GetByIDs", database.CollThreads)()

	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		r.log.LogError(ctx, err, "GetByIDs")
		observability.StoreErrors.WithLabelValues("GetByIDs").Inc()
		return nil, err
	}
	defer cursor.Close(ctx)

	var threads []*models.Thread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// GetRootPage returns one page of top-level threads ordered newest first,
// each expanded with author, community, and a one-level reply preview with
// the replies' authors. The second return value is the total count of
// top-level threads, computed independently of the page window.
func (r *threadRepository) GetRootPage(ctx context.Context, skip, limit int64) ([]*models.Thread, int64, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetRootPage", database.CollThreads)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer observability.TrackQuery("GetRootPage", database.CollThreads)()

	topLevel := bson.D{{Key: "parentId", Value: bson.D{{Key: "$exists", Value: false}}}}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: topLevel}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
	}
	pipeline = append(pipeline, lookupAuthorStages()...)
	pipeline = append(pipeline, lookupCommunityStages()...)

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		r.log.LogError(ctx, err, "GetRootPage")
		observability.StoreErrors.WithLabelValues("GetRootPage").Inc()
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var threads []*models.Thread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, 0, err
	}

	if err := r.attachReplies(ctx, threads, 1); err != nil {
		return nil, 0, err
	}

	total, err := coll.CountDocuments(ctx, topLevel)
	if err != nil {
		return nil, 0, err
	}
	return threads, total, nil
}

// GetByIDsExpanded loads the given threads with authors and communities
// expanded and a one-level reply preview, newest first.
func (r *threadRepository) GetByIDsExpanded(ctx context.Context, ids []primitive.ObjectID) ([]*models.Thread, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "GetByIDsExpanded", database.CollThreads)
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("GetByIDsExpanded", database.CollThreads)()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}
	pipeline = append(pipeline, lookupAuthorStages()...)
	pipeline = append(pipeline, lookupCommunityStages()...)

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		r.log.LogError(ctx, err, "GetByIDsExpanded")
		observability.StoreErrors.WithLabelValues("GetByIDsExpanded").Inc()
		return nil, err
	}
	defer cursor.Close(ctx)

	var threads []*models.Thread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, err
	}
	if err := r.attachReplies(ctx, threads, 1); err != nil {
		return nil, err
	}
	return threads, nil
}

// attachReplies loads the children of the given threads with their authors
// expanded and attaches them as Replies, recursing depth-1 more levels into
// the children themselves.
func (r *threadRepository) attachReplies(ctx context.Context, parents []*models.Thread, depth int) error {
	if depth <= 0 || len(parents) == 0 {
		return nil
	}

	var childIDs []primitive.ObjectID
	for _, p := range parents {
		childIDs = append(childIDs, p.ChildIDs...)
	}
	if len(childIDs) == 0 {
		return nil
	}

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: childIDs}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
	}
	pipeline = append(pipeline, lookupAuthorStages()...)

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var children []*models.Thread
	if err := cursor.All(ctx, &children); err != nil {
		return err
	}

	byID := make(map[primitive.ObjectID]*models.Thread, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}
	for _, p := range parents {
		for _, id := range p.ChildIDs {
			if c, ok := byID[id]; ok {
				p.Replies = append(p.Replies, c)
			}
		}
	}

	return r.attachReplies(ctx, children, depth-1)
}

// AddChild appends the child reference to the parent's children set.
// $addToSet keeps the membership idempotent under retries.
func (r *threadRepository) AddChild(ctx context.Context, parentID, childID primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "AddChild", database.CollThreads)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("AddChild", database.CollThreads)()

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": parentID},
		bson.M{"$addToSet": bson.M{"children": childID}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "AddChild")
		observability.StoreErrors.WithLabelValues("AddChild").Inc()
		return err
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Thread", parentID.Hex())
	}
	cache.InvalidateThread(ctx, parentID.Hex())
	return nil
}

// RemoveChild pulls the child reference from the parent's children set. A
// missing parent is not an error; the caller may have deleted it already.
func (r *threadRepository) RemoveChild(ctx context.Context, parentID, childID primitive.ObjectID) error {
	ctx, span := observability.TraceStoreMethod(ctx, "RemoveChild", database.CollThreads)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return err
	}
	defer observability.TrackQuery("RemoveChild", database.CollThreads)()

	_, err = coll.UpdateOne(ctx,
		bson.M{"_id": parentID},
		bson.M{"$pull": bson.M{"children": childID}},
	)
	if err != nil {
		r.log.LogError(ctx, err, "RemoveChild")
		observability.StoreErrors.WithLabelValues("RemoveChild").Inc()
		return err
	}
	cache.InvalidateThread(ctx, parentID.Hex())
	return nil
}

// ChildrenOf returns every thread whose parentId equals the given id.
// The cascading delete engine uses this to walk the reply forest.
func (r *threadRepository) ChildrenOf(ctx context.Context, parentID primitive.ObjectID) ([]*models.Thread, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "ChildrenOf", database.CollThreads)
	defer span.End()

	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("ChildrenOf", database.CollThreads)()

	cursor, err := coll.Find(ctx, bson.M{"parentId": parentID})
	if err != nil {
		r.log.LogError(ctx, err, "ChildrenOf")
		observability.StoreErrors.WithLabelValues("ChildrenOf").Inc()
		return nil, err
	}
	defer cursor.Close(ctx)

	var children []*models.Thread
	if err := cursor.All(ctx, &children); err != nil {
		return nil, err
	}
	return children, nil
}

// FindComments returns one page of threads among the candidate ids that were
// not written by excludeAuthor, newest first, authors expanded, plus the
// total count of matches.
func (r *threadRepository) FindComments(ctx context.Context, ids []primitive.ObjectID, excludeAuthor primitive.ObjectID, skip, limit int64) ([]*models.Thread, int64, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "FindComments", database.CollThreads)
	defer span.End()

	if len(ids) == 0 {
		return nil, 0, nil
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer observability.TrackQuery("FindComments", database.CollThreads)()

	filter := bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		{Key: "author", Value: bson.D{{Key: "$ne", Value: excludeAuthor}}},
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
	}
	pipeline = append(pipeline, lookupAuthorStages()...)

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		r.log.LogError(ctx, err, "FindComments")
		observability.StoreErrors.WithLabelValues("FindComments").Inc()
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var comments []*models.Thread
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, 0, err
	}

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// DeleteByIDs removes every thread in the id set in one bulk operation.
func (r *threadRepository) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	ctx, span := observability.TraceStoreMethod(ctx, "DeleteByIDs", database.CollThreads)
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return 0, err
	}
	defer observability.TrackQuery("DeleteByIDs", database.CollThreads)()

	res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		r.log.LogError(ctx, err, "DeleteByIDs")
		observability.StoreErrors.WithLabelValues("DeleteByIDs").Inc()
		return 0, err
	}
	for _, id := range ids {
		cache.InvalidateThread(ctx, id.Hex())
	}
	r.log.LogWrite(ctx, "DeleteByIDs", map[string]interface{}{"requested": len(ids), "deleted": res.DeletedCount})
	return res.DeletedCount, nil
}
