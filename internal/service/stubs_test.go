package service

import (
	"context"
	"errors"
	"testing"

	"threads/internal/models"
	"threads/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// threadRepoStub is a stub for repository.ThreadRepository.
type threadRepoStub struct {
	createFn           func(context.Context, *models.Thread) error
	getByIDFn          func(context.Context, primitive.ObjectID) (*models.Thread, error)
	getByIDExpandedFn  func(context.Context, primitive.ObjectID) (*models.Thread, error)
	getByIDsFn         func(context.Context, []primitive.ObjectID) ([]*models.Thread, error)
	getRootPageFn      func(context.Context, int64, int64) ([]*models.Thread, int64, error)
	getByIDsExpandedFn func(context.Context, []primitive.ObjectID) ([]*models.Thread, error)
	addChildFn         func(context.Context, primitive.ObjectID, primitive.ObjectID) error
	removeChildFn      func(context.Context, primitive.ObjectID, primitive.ObjectID) error
	childrenOfFn       func(context.Context, primitive.ObjectID) ([]*models.Thread, error)
	findCommentsFn     func(context.Context, []primitive.ObjectID, primitive.ObjectID, int64, int64) ([]*models.Thread, int64, error)
	deleteByIDsFn      func(context.Context, []primitive.ObjectID) (int64, error)
}

func (s *threadRepoStub) Create(ctx context.Context, thread *models.Thread) error {
	return s.createFn(ctx, thread)
}
func (s *threadRepoStub) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	return s.getByIDFn(ctx, id)
}
func (s *threadRepoStub) GetByIDExpanded(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	return s.getByIDExpandedFn(ctx, id)
}
func (s *threadRepoStub) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Thread, error) {
	return s.getByIDsFn(ctx, ids)
}
func (s *threadRepoStub) GetRootPage(ctx context.Context, skip, limit int64) ([]*models.Thread, int64, error) {
	return s.getRootPageFn(ctx, skip, limit)
}
func (s *threadRepoStub) GetByIDsExpanded(ctx context.Context, ids []primitive.ObjectID) ([]*models.Thread, error) {
	return s.getByIDsExpandedFn(ctx, ids)
}
func (s *threadRepoStub) AddChild(ctx context.Context, parentID, childID primitive.ObjectID) error {
	return s.addChildFn(ctx, parentID, childID)
}
func (s *threadRepoStub) RemoveChild(ctx context.Context, parentID, childID primitive.ObjectID) error {
	return s.removeChildFn(ctx, parentID, childID)
}
func (s *threadRepoStub) ChildrenOf(ctx context.Context, parentID primitive.ObjectID) ([]*models.Thread, error) {
	return s.childrenOfFn(ctx, parentID)
}
func (s *threadRepoStub) FindComments(ctx context.Context, ids []primitive.ObjectID, excludeAuthor primitive.ObjectID, skip, limit int64) ([]*models.Thread, int64, error) {
	return s.findCommentsFn(ctx, ids, excludeAuthor, skip, limit)
}
func (s *threadRepoStub) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	return s.deleteByIDsFn(ctx, ids)
}

func noopThreadRepo() *threadRepoStub {
	return &threadRepoStub{
		createFn:          func(_ context.Context, _ *models.Thread) error { return nil },
		getByIDFn:         func(_ context.Context, _ primitive.ObjectID) (*models.Thread, error) { return &models.Thread{}, nil },
		getByIDExpandedFn: func(_ context.Context, _ primitive.ObjectID) (*models.Thread, error) { return &models.Thread{}, nil },
		getByIDsFn:        func(_ context.Context, _ []primitive.ObjectID) ([]*models.Thread, error) { return nil, nil },
		getRootPageFn: func(_ context.Context, _, _ int64) ([]*models.Thread, int64, error) {
			return nil, 0, nil
		},
		getByIDsExpandedFn: func(_ context.Context, _ []primitive.ObjectID) ([]*models.Thread, error) { return nil, nil },
		addChildFn:         func(_ context.Context, _, _ primitive.ObjectID) error { return nil },
		removeChildFn:      func(_ context.Context, _, _ primitive.ObjectID) error { return nil },
		childrenOfFn:       func(_ context.Context, _ primitive.ObjectID) ([]*models.Thread, error) { return nil, nil },
		findCommentsFn: func(_ context.Context, _ []primitive.ObjectID, _ primitive.ObjectID, _, _ int64) ([]*models.Thread, int64, error) {
			return nil, 0, nil
		},
		deleteByIDsFn: func(_ context.Context, ids []primitive.ObjectID) (int64, error) { return int64(len(ids)), nil },
	}
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByExternalIDFn func(context.Context, string) (*models.User, error)
	getByIDFn         func(context.Context, primitive.ObjectID) (*models.User, error)
	upsertFn          func(context.Context, *models.User) error
	listFn            func(context.Context, repository.UserFilter) ([]*models.User, int64, error)
	addThreadFn       func(context.Context, primitive.ObjectID, primitive.ObjectID) error
	pullThreadsFn     func(context.Context, []primitive.ObjectID, []primitive.ObjectID) error
}

func (s *userRepoStub) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getByExternalIDFn(ctx, externalID)
}
func (s *userRepoStub) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) Upsert(ctx context.Context, user *models.User) error {
	return s.upsertFn(ctx, user)
}
func (s *userRepoStub) List(ctx context.Context, filter repository.UserFilter) ([]*models.User, int64, error) {
	return s.listFn(ctx, filter)
}
func (s *userRepoStub) AddThread(ctx context.Context, userID, threadID primitive.ObjectID) error {
	return s.addThreadFn(ctx, userID, threadID)
}
func (s *userRepoStub) PullThreads(ctx context.Context, userIDs, threadIDs []primitive.ObjectID) error {
	return s.pullThreadsFn(ctx, userIDs, threadIDs)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByExternalIDFn: func(_ context.Context, id string) (*models.User, error) {
			return &models.User{ID: primitive.NewObjectID(), ExternalID: id}, nil
		},
		getByIDFn: func(_ context.Context, id primitive.ObjectID) (*models.User, error) {
			return &models.User{ID: id}, nil
		},
		upsertFn: func(_ context.Context, _ *models.User) error { return nil },
		listFn: func(_ context.Context, _ repository.UserFilter) ([]*models.User, int64, error) {
			return nil, 0, nil
		},
		addThreadFn:   func(_ context.Context, _, _ primitive.ObjectID) error { return nil },
		pullThreadsFn: func(_ context.Context, _, _ []primitive.ObjectID) error { return nil },
	}
}

// communityRepoStub is a stub for repository.CommunityRepository.
type communityRepoStub struct {
	getByExternalIDFn func(context.Context, string) (*models.Community, error)
	upsertFn          func(context.Context, *models.Community) error
	addThreadFn       func(context.Context, primitive.ObjectID, primitive.ObjectID) error
	addMemberFn       func(context.Context, primitive.ObjectID, primitive.ObjectID) error
	removeMemberFn    func(context.Context, primitive.ObjectID, primitive.ObjectID) error
	pullThreadsFn     func(context.Context, []primitive.ObjectID, []primitive.ObjectID) error
}

func (s *communityRepoStub) GetByExternalID(ctx context.Context, externalID string) (*models.Community, error) {
	return s.getByExternalIDFn(ctx, externalID)
}
func (s *communityRepoStub) Upsert(ctx context.Context, community *models.Community) error {
	return s.upsertFn(ctx, community)
}
func (s *communityRepoStub) AddThread(ctx context.Context, communityID, threadID primitive.ObjectID) error {
	return s.addThreadFn(ctx, communityID, threadID)
}
func (s *communityRepoStub) AddMember(ctx context.Context, communityID, userID primitive.ObjectID) error {
	return s.addMemberFn(ctx, communityID, userID)
}
func (s *communityRepoStub) RemoveMember(ctx context.Context, communityID, userID primitive.ObjectID) error {
	return s.removeMemberFn(ctx, communityID, userID)
}
func (s *communityRepoStub) PullThreads(ctx context.Context, communityIDs, threadIDs []primitive.ObjectID) error {
	return s.pullThreadsFn(ctx, communityIDs, threadIDs)
}

func noopCommunityRepo() *communityRepoStub {
	return &communityRepoStub{
		getByExternalIDFn: func(_ context.Context, id string) (*models.Community, error) {
			return &models.Community{ID: primitive.NewObjectID(), ExternalID: id}, nil
		},
		upsertFn:       func(_ context.Context, _ *models.Community) error { return nil },
		addThreadFn:    func(_ context.Context, _, _ primitive.ObjectID) error { return nil },
		addMemberFn:    func(_ context.Context, _, _ primitive.ObjectID) error { return nil },
		removeMemberFn: func(_ context.Context, _, _ primitive.ObjectID) error { return nil },
		pullThreadsFn:  func(_ context.Context, _, _ []primitive.ObjectID) error { return nil },
	}
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

// assertNotFoundError asserts that err is an AppError with code NOT_FOUND.
func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}
