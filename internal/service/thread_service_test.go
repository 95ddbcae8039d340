package service

import (
	"context"
	"strings"
	"testing"

	"threads/internal/featureflags"
	"threads/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newThreadService(threads *threadRepoStub, users *userRepoStub, communities *communityRepoStub, flags string) *ThreadService {
	return NewThreadService(threads, users, communities, featureflags.NewManager(flags))
}

func TestThreadService_FetchThreads_Validation(t *testing.T) {
	t.Parallel()

	svc := newThreadService(noopThreadRepo(), noopUserRepo(), noopCommunityRepo(), "")
	ctx := context.Background()

	tests := []struct {
		name       string
		pageNumber int
		pageSize   int
	}{
		{name: "zero page number", pageNumber: 0, pageSize: 20},
		{name: "negative page number", pageNumber: -1, pageSize: 20},
		{name: "zero page size", pageNumber: 1, pageSize: 0},
		{name: "negative page size", pageNumber: 1, pageSize: -5},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.FetchThreads(ctx, tc.pageNumber, tc.pageSize)
			assertValidationError(t, err)
		})
	}
}

func TestThreadService_FetchThreads_HasNext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name       string
		pageNumber int
		pageSize   int
		total      int64
		returned   int
		wantSkip   int64
		wantNext   bool
	}{
		{name: "full page with more behind", pageNumber: 1, pageSize: 3, total: 7, returned: 3, wantSkip: 0, wantNext: true},
		{name: "exact final page", pageNumber: 3, pageSize: 3, total: 7, returned: 1, wantSkip: 6, wantNext: false},
		{name: "total an exact multiple", pageNumber: 2, pageSize: 3, total: 6, returned: 3, wantSkip: 3, wantNext: false},
		{name: "page beyond data", pageNumber: 9, pageSize: 3, total: 7, returned: 0, wantSkip: 24, wantNext: false},
		{name: "empty store", pageNumber: 1, pageSize: 20, total: 0, returned: 0, wantSkip: 0, wantNext: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			threads := noopThreadRepo()
			var gotSkip, gotLimit int64
			threads.getRootPageFn = func(_ context.Context, skip, limit int64) ([]*models.Thread, int64, error) {
				gotSkip, gotLimit = skip, limit
				items := make([]*models.Thread, tc.returned)
				for i := range items {
					items[i] = &models.Thread{ID: primitive.NewObjectID()}
				}
				return items, tc.total, nil
			}

			svc := newThreadService(threads, noopUserRepo(), noopCommunityRepo(), "")
			page, err := svc.FetchThreads(ctx, tc.pageNumber, tc.pageSize)
			require.NoError(t, err)

			assert.Equal(t, tc.wantSkip, gotSkip)
			assert.Equal(t, int64(tc.pageSize), gotLimit)
			assert.Len(t, page.Items, tc.returned)
			assert.Equal(t, tc.wantNext, page.HasNext)
		})
	}
}

func TestThreadService_FetchThreadByID_InvalidID(t *testing.T) {
	t.Parallel()

	svc := newThreadService(noopThreadRepo(), noopUserRepo(), noopCommunityRepo(), "")
	_, err := svc.FetchThreadByID(context.Background(), "not-a-hex-id")
	assertValidationError(t, err)
}

func TestThreadService_CreateThread_Validation(t *testing.T) {
	t.Parallel()

	svc := newThreadService(noopThreadRepo(), noopUserRepo(), noopCommunityRepo(), "")
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateThreadInput
	}{
		{name: "empty text", input: CreateThreadInput{AuthorID: primitive.NewObjectID().Hex()}},
		{name: "text too long", input: CreateThreadInput{Text: strings.Repeat("x", 5001), AuthorID: primitive.NewObjectID().Hex()}},
		{name: "missing author", input: CreateThreadInput{Text: "hello"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreateThread(ctx, tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestThreadService_CreateThread_UnknownAuthor(t *testing.T) {
	t.Parallel()

	users := noopUserRepo()
	users.getByExternalIDFn = func(_ context.Context, id string) (*models.User, error) {
		return nil, models.NewNotFoundError("User", id)
	}

	svc := newThreadService(noopThreadRepo(), users, noopCommunityRepo(), "")
	_, err := svc.CreateThread(context.Background(), CreateThreadInput{Text: "hello", AuthorID: "ghost"})
	assertNotFoundError(t, err)
}

// An external id that happens to be 24 hex characters must still resolve:
// the primary-key lookup is tried first, then the external id.
func TestThreadService_CreateThread_HexShapedExternalID(t *testing.T) {
	t.Parallel()

	externalID := "abcdefabcdefabcdefabcdef"
	userID := primitive.NewObjectID()

	users := noopUserRepo()
	users.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.User, error) {
		return nil, models.NewNotFoundError("User", id.Hex())
	}
	var lookedUp string
	users.getByExternalIDFn = func(_ context.Context, id string) (*models.User, error) {
		lookedUp = id
		return &models.User{ID: userID, ExternalID: id}, nil
	}

	svc := newThreadService(noopThreadRepo(), users, noopCommunityRepo(), "")
	thread, err := svc.CreateThread(context.Background(), CreateThreadInput{Text: "hello", AuthorID: externalID})
	require.NoError(t, err)
	assert.Equal(t, externalID, lookedUp)
	assert.Equal(t, userID, thread.AuthorID)
}

func TestThreadService_CreateThread_RegistersBackReferences(t *testing.T) {
	t.Parallel()

	authorID := primitive.NewObjectID()
	communityID := primitive.NewObjectID()

	users := noopUserRepo()
	users.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.User, error) {
		return &models.User{ID: id, ExternalID: "user-1"}, nil
	}
	var userAddCalls int
	users.addThreadFn = func(_ context.Context, uID, _ primitive.ObjectID) error {
		userAddCalls++
		assert.Equal(t, authorID, uID)
		return nil
	}

	communities := noopCommunityRepo()
	communities.getByExternalIDFn = func(_ context.Context, id string) (*models.Community, error) {
		return &models.Community{ID: communityID, ExternalID: id}, nil
	}
	var communityAddCalls int
	communities.addThreadFn = func(_ context.Context, cID, _ primitive.ObjectID) error {
		communityAddCalls++
		assert.Equal(t, communityID, cID)
		return nil
	}

	threads := noopThreadRepo()
	threads.createFn = func(_ context.Context, thread *models.Thread) error {
		thread.ID = primitive.NewObjectID()
		return nil
	}

	svc := newThreadService(threads, users, communities, "")
	thread, err := svc.CreateThread(context.Background(), CreateThreadInput{
		Text:        "hello",
		AuthorID:    authorID.Hex(),
		CommunityID: "org_1",
		Path:        "/",
	})
	require.NoError(t, err)

	assert.True(t, thread.IsTopLevel())
	require.NotNil(t, thread.CommunityID)
	assert.Equal(t, communityID, *thread.CommunityID)
	assert.Equal(t, 1, userAddCalls)
	assert.Equal(t, 1, communityAddCalls)
}

func TestThreadService_CreateThread_CommunityFallback(t *testing.T) {
	t.Parallel()

	communities := noopCommunityRepo()
	communities.getByExternalIDFn = func(_ context.Context, id string) (*models.Community, error) {
		return nil, models.NewNotFoundError("Community", id)
	}
	var communityAddCalls int
	communities.addThreadFn = func(_ context.Context, _, _ primitive.ObjectID) error {
		communityAddCalls++
		return nil
	}

	threads := noopThreadRepo()
	threads.createFn = func(_ context.Context, thread *models.Thread) error {
		thread.ID = primitive.NewObjectID()
		return nil
	}

	svc := newThreadService(threads, noopUserRepo(), communities, "")
	thread, err := svc.CreateThread(context.Background(), CreateThreadInput{
		Text:        "hello",
		AuthorID:    "user-1",
		CommunityID: "org_missing",
	})
	require.NoError(t, err)

	assert.Nil(t, thread.CommunityID, "unresolved community falls back to a personal thread")
	assert.Equal(t, 0, communityAddCalls)
}

func TestThreadService_CreateThread_StrictCommunityResolution(t *testing.T) {
	t.Parallel()

	communities := noopCommunityRepo()
	communities.getByExternalIDFn = func(_ context.Context, id string) (*models.Community, error) {
		return nil, models.NewNotFoundError("Community", id)
	}

	svc := newThreadService(noopThreadRepo(), noopUserRepo(), communities,
		featureflags.StrictCommunityResolution+"=on")
	_, err := svc.CreateThread(context.Background(), CreateThreadInput{
		Text:        "hello",
		AuthorID:    "user-1",
		CommunityID: "org_missing",
	})
	assertNotFoundError(t, err)
}

func TestThreadService_AddComment_ParentNotFound(t *testing.T) {
	t.Parallel()

	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		return nil, models.NewNotFoundError("Thread", id.Hex())
	}

	svc := newThreadService(threads, noopUserRepo(), noopCommunityRepo(), "")
	_, err := svc.AddComment(context.Background(), AddCommentInput{
		ThreadID: primitive.NewObjectID().Hex(),
		Text:     "reply",
		UserID:   "user-1",
	})
	assertNotFoundError(t, err)
}

func TestThreadService_AddComment_LinksParent(t *testing.T) {
	t.Parallel()

	parentID := primitive.NewObjectID()

	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		return &models.Thread{ID: id, Text: "root"}, nil
	}
	threads.createFn = func(_ context.Context, thread *models.Thread) error {
		thread.ID = primitive.NewObjectID()
		return nil
	}
	var linkedParent, linkedChild primitive.ObjectID
	threads.addChildFn = func(_ context.Context, pID, cID primitive.ObjectID) error {
		linkedParent, linkedChild = pID, cID
		return nil
	}

	users := noopUserRepo()
	var userAddCalls int
	users.addThreadFn = func(_ context.Context, _, _ primitive.ObjectID) error {
		userAddCalls++
		return nil
	}

	svc := newThreadService(threads, users, noopCommunityRepo(), "")
	comment, err := svc.AddComment(context.Background(), AddCommentInput{
		ThreadID: parentID.Hex(),
		Text:     "reply",
		UserID:   "user-2",
		Path:     "/thread/" + parentID.Hex(),
	})
	require.NoError(t, err)

	require.NotNil(t, comment.ParentID)
	assert.Equal(t, parentID, *comment.ParentID)
	assert.Nil(t, comment.CommunityID, "replies never carry a community")
	assert.Equal(t, parentID, linkedParent)
	assert.Equal(t, comment.ID, linkedChild)
	assert.Equal(t, 0, userAddCalls, "replies are not added to the author's threads index")
}

func TestThreadService_AddComment_Validation(t *testing.T) {
	t.Parallel()

	svc := newThreadService(noopThreadRepo(), noopUserRepo(), noopCommunityRepo(), "")
	ctx := context.Background()

	tests := []struct {
		name  string
		input AddCommentInput
	}{
		{name: "invalid thread id", input: AddCommentInput{ThreadID: "nope", Text: "x", UserID: "u"}},
		{name: "empty text", input: AddCommentInput{ThreadID: primitive.NewObjectID().Hex(), UserID: "u"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.AddComment(ctx, tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestThreadService_DeleteThread_InvalidID(t *testing.T) {
	t.Parallel()

	svc := newThreadService(noopThreadRepo(), noopUserRepo(), noopCommunityRepo(), "")
	err := svc.DeleteThread(context.Background(), "nope", "/")
	assertValidationError(t, err)
}

func TestThreadService_DeleteThread_RootNotFound(t *testing.T) {
	t.Parallel()

	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		return nil, models.NewNotFoundError("Thread", id.Hex())
	}

	svc := newThreadService(threads, noopUserRepo(), noopCommunityRepo(), "")
	err := svc.DeleteThread(context.Background(), primitive.NewObjectID().Hex(), "/")
	assertNotFoundError(t, err)
}

// The delete engine must collect the whole reply subtree, the authors of
// every collected thread, and every referenced community before mutating.
func TestThreadService_DeleteThread_Cascade(t *testing.T) {
	t.Parallel()

	rootID := primitive.NewObjectID()
	childA := primitive.NewObjectID()
	childB := primitive.NewObjectID()
	grandchild := primitive.NewObjectID()

	rootAuthor := primitive.NewObjectID()
	replyAuthor := primitive.NewObjectID()
	communityID := primitive.NewObjectID()

	forest := map[primitive.ObjectID][]*models.Thread{
		rootID: {
			{ID: childA, AuthorID: replyAuthor, ParentID: &rootID},
			{ID: childB, AuthorID: rootAuthor, ParentID: &rootID},
		},
		childA: {
			{ID: grandchild, AuthorID: replyAuthor, ParentID: &childA},
		},
	}

	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		return &models.Thread{ID: id, AuthorID: rootAuthor, CommunityID: &communityID}, nil
	}
	threads.childrenOfFn = func(_ context.Context, parentID primitive.ObjectID) ([]*models.Thread, error) {
		return forest[parentID], nil
	}

	var deletedIDs []primitive.ObjectID
	threads.deleteByIDsFn = func(_ context.Context, ids []primitive.ObjectID) (int64, error) {
		deletedIDs = ids
		return int64(len(ids)), nil
	}

	users := noopUserRepo()
	var pulledUsers, pulledFromUsers []primitive.ObjectID
	users.pullThreadsFn = func(_ context.Context, userIDs, threadIDs []primitive.ObjectID) error {
		pulledUsers, pulledFromUsers = userIDs, threadIDs
		return nil
	}

	communities := noopCommunityRepo()
	var pulledCommunities []primitive.ObjectID
	communities.pullThreadsFn = func(_ context.Context, communityIDs, _ []primitive.ObjectID) error {
		pulledCommunities = communityIDs
		return nil
	}

	svc := newThreadService(threads, users, communities, "")
	err := svc.DeleteThread(context.Background(), rootID.Hex(), "/")
	require.NoError(t, err)

	assert.ElementsMatch(t, []primitive.ObjectID{rootID, childA, childB, grandchild}, deletedIDs)
	assert.ElementsMatch(t, []primitive.ObjectID{rootAuthor, replyAuthor}, pulledUsers)
	assert.ElementsMatch(t, deletedIDs, pulledFromUsers)
	assert.ElementsMatch(t, []primitive.ObjectID{communityID}, pulledCommunities)
}

// Deleting a reply must pull its id from the surviving parent's children
// set; deleting a top-level thread has no parent to repair.
func TestThreadService_DeleteThread_DetachesFromParent(t *testing.T) {
	t.Parallel()

	parentID := primitive.NewObjectID()
	replyID := primitive.NewObjectID()
	author := primitive.NewObjectID()

	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		if id == replyID {
			return &models.Thread{ID: id, AuthorID: author, ParentID: &parentID}, nil
		}
		return &models.Thread{ID: id, AuthorID: author}, nil
	}

	var removedFrom, removed primitive.ObjectID
	var removeCalls int
	threads.removeChildFn = func(_ context.Context, pID, cID primitive.ObjectID) error {
		removeCalls++
		removedFrom, removed = pID, cID
		return nil
	}

	svc := newThreadService(threads, noopUserRepo(), noopCommunityRepo(), "")

	require.NoError(t, svc.DeleteThread(context.Background(), replyID.Hex(), "/"))
	assert.Equal(t, 1, removeCalls)
	assert.Equal(t, parentID, removedFrom)
	assert.Equal(t, replyID, removed)

	require.NoError(t, svc.DeleteThread(context.Background(), primitive.NewObjectID().Hex(), "/"))
	assert.Equal(t, 1, removeCalls, "a top-level delete must not touch any parent")
}

// A linear reply chain deeper than any recursion limit must still be fully
// collected; the worklist traversal is iterative.
func TestThreadService_DeleteThread_DeepChain(t *testing.T) {
	t.Parallel()

	const depth = 5000

	rootID := primitive.NewObjectID()
	author := primitive.NewObjectID()

	forest := make(map[primitive.ObjectID][]*models.Thread, depth)
	parent := rootID
	for i := 0; i < depth; i++ {
		p := parent
		child := &models.Thread{ID: primitive.NewObjectID(), AuthorID: author, ParentID: &p}
		forest[parent] = []*models.Thread{child}
		parent = child.ID
	}

	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		return &models.Thread{ID: id, AuthorID: author}, nil
	}
	threads.childrenOfFn = func(_ context.Context, parentID primitive.ObjectID) ([]*models.Thread, error) {
		return forest[parentID], nil
	}

	var deleted int
	threads.deleteByIDsFn = func(_ context.Context, ids []primitive.ObjectID) (int64, error) {
		deleted = len(ids)
		return int64(deleted), nil
	}

	svc := newThreadService(threads, noopUserRepo(), noopCommunityRepo(), "")
	err := svc.DeleteThread(context.Background(), rootID.Hex(), "/")
	require.NoError(t, err)
	assert.Equal(t, depth+1, deleted)
}

// Gathering happens strictly before the first mutation: every ChildrenOf
// call must precede DeleteByIDs.
func TestThreadService_DeleteThread_GatherBeforeMutate(t *testing.T) {
	t.Parallel()

	rootID := primitive.NewObjectID()
	childID := primitive.NewObjectID()

	var deleteStarted bool
	threads := noopThreadRepo()
	threads.getByIDFn = func(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
		return &models.Thread{ID: id, AuthorID: primitive.NewObjectID()}, nil
	}
	threads.childrenOfFn = func(_ context.Context, parentID primitive.ObjectID) ([]*models.Thread, error) {
		require.False(t, deleteStarted, "traversal must not read after deletion began")
		if parentID == rootID {
			return []*models.Thread{{ID: childID, AuthorID: primitive.NewObjectID(), ParentID: &rootID}}, nil
		}
		return nil, nil
	}
	threads.deleteByIDsFn = func(_ context.Context, ids []primitive.ObjectID) (int64, error) {
		deleteStarted = true
		return int64(len(ids)), nil
	}

	svc := newThreadService(threads, noopUserRepo(), noopCommunityRepo(), "")
	require.NoError(t, svc.DeleteThread(context.Background(), rootID.Hex(), "/"))
	assert.True(t, deleteStarted)
}
