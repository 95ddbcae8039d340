// Package service holds the business rules on top of the repositories.
package service

import (
	"context"

	"threads/internal/cache"
	"threads/internal/featureflags"
	"threads/internal/models"
	"threads/internal/observability"
	"threads/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxThreadLen = 5000

// ThreadService implements the thread operations, including the cascading
// delete engine.
type ThreadService struct {
	threads     repository.ThreadRepository
	users       repository.UserRepository
	communities repository.CommunityRepository
	flags       *featureflags.Manager
}

// NewThreadService creates a new thread service.
func NewThreadService(
	threads repository.ThreadRepository,
	users repository.UserRepository,
	communities repository.CommunityRepository,
	flags *featureflags.Manager,
) *ThreadService {
	return &ThreadService{
		threads:     threads,
		users:       users,
		communities: communities,
		flags:       flags,
	}
}

// ThreadPage is one page of top-level threads.
type ThreadPage struct {
	Items   []*models.Thread `json:"items"`
	HasNext bool             `json:"hasNext"`
}

// CreateThreadInput carries the fields for creating a top-level thread.
// AuthorID accepts either the store primary key (hex) or the external id.
type CreateThreadInput struct {
	Text        string
	AuthorID    string
	CommunityID string
	Path        string
}

// AddCommentInput carries the fields for replying to an existing thread.
type AddCommentInput struct {
	ThreadID string
	Text     string
	UserID   string
	Path     string
}

// pageWindow validates the pagination inputs and returns the skip offset.
func pageWindow(pageNumber, pageSize int) (int64, error) {
	if pageNumber < 1 {
		return 0, models.NewValidationError("pageNumber must be at least 1")
	}
	if pageSize < 1 {
		return 0, models.NewValidationError("pageSize must be positive")
	}
	return int64(pageNumber-1) * int64(pageSize), nil
}

// hasNext reports whether more items exist beyond the returned window.
func hasNext(total, skip int64, returned int) bool {
	return total > skip+int64(returned)
}

// FetchThreads returns one page of the top-level feed, newest first.
// A page beyond the available data yields empty items with hasNext false.
func (s *ThreadService) FetchThreads(ctx context.Context, pageNumber, pageSize int) (*ThreadPage, error) {
	skip, err := pageWindow(pageNumber, pageSize)
	if err != nil {
		return nil, err
	}

	items, total, err := s.threads.GetRootPage(ctx, skip, int64(pageSize))
	if err != nil {
		return nil, models.WrapOp("Failed to fetch threads", err)
	}

	return &ThreadPage{Items: items, HasNext: hasNext(total, skip, len(items))}, nil
}

// FetchThreadByID returns the thread with author, community, and replies
// expanded two levels deep.
func (s *ThreadService) FetchThreadByID(ctx context.Context, id string) (*models.Thread, error) {
	threadID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewValidationError("invalid thread id")
	}

	thread, err := s.threads.GetByIDExpanded(ctx, threadID)
	if err != nil {
		return nil, models.WrapOp("Failed to fetch thread", err)
	}
	return thread, nil
}

// CreateThread inserts a new top-level thread and registers it in the
// author's (and, when resolved, the community's) denormalized threads index.
func (s *ThreadService) CreateThread(ctx context.Context, in CreateThreadInput) (*models.Thread, error) {
	ctx, span := observability.TraceServiceCall(ctx, "ThreadService", "CreateThread")
	defer span.End()

	if in.Text == "" {
		return nil, models.NewValidationError("Text is required")
	}
	if len(in.Text) > maxThreadLen {
		return nil, models.NewValidationError("Thread too long (max 5000 characters)")
	}
	if in.AuthorID == "" {
		return nil, models.NewValidationError("Author is required")
	}

	author, err := s.resolveUser(ctx, in.AuthorID)
	if err != nil {
		return nil, models.WrapOp("Failed to create thread", err)
	}

	communityID, err := s.resolveCommunity(ctx, in.CommunityID, author.ExternalID)
	if err != nil {
		return nil, models.WrapOp("Failed to create thread", err)
	}

	thread := &models.Thread{
		Text:        in.Text,
		AuthorID:    author.ID,
		CommunityID: communityID,
	}
	if err := s.threads.Create(ctx, thread); err != nil {
		return nil, models.WrapOp("Failed to create thread", err)
	}

	if err := s.users.AddThread(ctx, author.ID, thread.ID); err != nil {
		return nil, models.WrapOp("Failed to create thread", err)
	}
	if communityID != nil {
		if err := s.communities.AddThread(ctx, *communityID, thread.ID); err != nil {
			return nil, models.WrapOp("Failed to create thread", err)
		}
	}

	cache.InvalidatePath(ctx, in.Path)
	return thread, nil
}

// resolveCommunity maps an external community id to the store primary key.
// When resolution fails and strict resolution is off, the thread falls back
// to a personal (community-less) post, matching the historical behavior.
func (s *ThreadService) resolveCommunity(ctx context.Context, communityID, subject string) (*primitive.ObjectID, error) {
	if communityID == "" {
		return nil, nil
	}

	community, err := s.communities.GetByExternalID(ctx, communityID)
	if err == nil {
		return &community.ID, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}
	if s.flags.Enabled(featureflags.StrictCommunityResolution, subject) {
		return nil, err
	}

	observability.GlobalLogger.WarnContext(ctx, "community did not resolve, creating personal thread",
		"communityId", communityID)
	return nil, nil
}

// AddComment creates a reply under an existing thread.
//
// This is two sequential writes: the reply insert, then the parent's
// children update. A crash between them leaves a reply without a parent
// back-reference; the store offers no multi-document transaction on a
// standalone deployment. Retrying the whole operation cannot duplicate the
// child entry because the parent update uses add-set semantics.
func (s *ThreadService) AddComment(ctx context.Context, in AddCommentInput) (*models.Thread, error) {
	ctx, span := observability.TraceServiceCall(ctx, "ThreadService", "AddComment")
	defer span.End()

	parentID, err := primitive.ObjectIDFromHex(in.ThreadID)
	if err != nil {
		return nil, models.NewValidationError("invalid thread id")
	}
	if in.Text == "" {
		return nil, models.NewValidationError("Text is required")
	}
	if len(in.Text) > maxThreadLen {
		return nil, models.NewValidationError("Comment too long (max 5000 characters)")
	}

	parent, err := s.threads.GetByID(ctx, parentID)
	if err != nil {
		return nil, models.WrapOp("Failed to add comment", err)
	}

	author, err := s.resolveUser(ctx, in.UserID)
	if err != nil {
		return nil, models.WrapOp("Failed to add comment", err)
	}

	comment := &models.Thread{
		Text:     in.Text,
		AuthorID: author.ID,
		ParentID: &parent.ID,
	}
	if err := s.threads.Create(ctx, comment); err != nil {
		return nil, models.WrapOp("Failed to add comment", err)
	}
	if err := s.threads.AddChild(ctx, parent.ID, comment.ID); err != nil {
		return nil, models.WrapOp("Failed to add comment", err)
	}

	cache.InvalidatePath(ctx, in.Path)
	return comment, nil
}

// DeleteThread removes a thread and its entire reply subtree, then repairs
// the denormalized thread indexes of every touched user and community. When
// the deleted thread is itself a reply, its id is also pulled from the
// surviving parent's children set.
//
// The gather phase walks the reply forest with an iterative worklist and a
// visited set, so traversal depth is bounded by the number of stored threads
// and a cycle (which the forest invariant forbids, but the guard is cheap to
// state) cannot loop. All ids are collected before the first mutation,
// because the traversal reads parentId links the bulk delete removes.
//
// The mutate phase is not transactional: a failure after the bulk delete
// leaves dangling references in user/community threads sets. Partial
// progress is not rolled back.
func (s *ThreadService) DeleteThread(ctx context.Context, id, path string) error {
	ctx, span := observability.TraceServiceCall(ctx, "ThreadService", "DeleteThread")
	defer span.End()

	rootID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.NewValidationError("invalid thread id")
	}

	root, err := s.threads.GetByID(ctx, rootID)
	if err != nil {
		return models.WrapOp("Failed to delete thread", err)
	}

	// Gather phase.
	all := []*models.Thread{root}
	visited := map[primitive.ObjectID]bool{root.ID: true}
	worklist := []primitive.ObjectID{root.ID}

	for len(worklist) > 0 {
		next := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		children, err := s.threads.ChildrenOf(ctx, next)
		if err != nil {
			return models.WrapOp("Failed to delete thread", err)
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			all = append(all, child)
			worklist = append(worklist, child.ID)
		}
	}

	ids := make([]primitive.ObjectID, 0, len(all))
	authorSet := make(map[primitive.ObjectID]bool)
	communitySet := make(map[primitive.ObjectID]bool)
	for _, t := range all {
		ids = append(ids, t.ID)
		if !t.AuthorID.IsZero() {
			authorSet[t.AuthorID] = true
		}
		if t.CommunityID != nil && !t.CommunityID.IsZero() {
			communitySet[*t.CommunityID] = true
		}
	}

	// Mutate phase.
	deleted, err := s.threads.DeleteByIDs(ctx, ids)
	if err != nil {
		return models.WrapOp("Failed to delete thread", err)
	}
	observability.CascadeDeletedThreads.Add(float64(deleted))

	if root.ParentID != nil {
		if err := s.threads.RemoveChild(ctx, *root.ParentID, root.ID); err != nil {
			return models.WrapOp("Failed to delete thread", err)
		}
	}
	if err := s.users.PullThreads(ctx, setToSlice(authorSet), ids); err != nil {
		return models.WrapOp("Failed to delete thread", err)
	}
	if err := s.communities.PullThreads(ctx, setToSlice(communitySet), ids); err != nil {
		return models.WrapOp("Failed to delete thread", err)
	}

	cache.InvalidatePath(ctx, path)
	return nil
}

// resolveUser accepts either a store primary key (hex) or an external id.
// A 24-hex external id is tried as a primary key first, then as an external
// id, so such ids cannot shadow a real user.
func (s *ThreadService) resolveUser(ctx context.Context, id string) (*models.User, error) {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		user, err := s.users.GetByID(ctx, oid)
		if err == nil || !models.IsNotFound(err) {
			return user, err
		}
	}
	return s.users.GetByExternalID(ctx, id)
}

func setToSlice(set map[primitive.ObjectID]bool) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
