package service

import (
	"context"

	"threads/internal/cache"
	"threads/internal/models"
	"threads/internal/observability"
	"threads/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProfileEditPath is the only path whose cached entry a profile update
// invalidates. Other paths are left untouched on purpose.
const ProfileEditPath = "/profile/edit"

// UserService implements profile, directory, and activity operations.
type UserService struct {
	users   repository.UserRepository
	threads repository.ThreadRepository
}

// NewUserService creates a new user service.
func NewUserService(users repository.UserRepository, threads repository.ThreadRepository) *UserService {
	return &UserService{users: users, threads: threads}
}

// UpdateUserInput carries the profile fields for onboarding or editing.
type UpdateUserInput struct {
	ExternalID string
	Username   string
	Name       string
	Bio        string
	Image      string
	Path       string
}

// FetchUsersInput describes one page of the user directory. The caller
// identified by ExcludeExternalID never appears in its own results.
type FetchUsersInput struct {
	ExcludeExternalID string
	SearchTerm        string
	PageNumber        int
	PageSize          int
	SortAsc           bool
}

// UserPage is one page of the user directory.
type UserPage struct {
	Items   []*models.User `json:"items"`
	HasNext bool           `json:"hasNext"`
}

// ActivityPage is one page of replies other users left on the subject's
// threads, newest first.
type ActivityPage struct {
	Items   []*models.Thread `json:"items"`
	HasNext bool             `json:"hasNext"`
}

// FetchUser returns the user with the given external id.
func (s *UserService) FetchUser(ctx context.Context, externalID string) (*models.User, error) {
	if externalID == "" {
		return nil, models.NewValidationError("user id is required")
	}
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, models.WrapOp("Failed to fetch user", err)
	}
	return user, nil
}

// UpdateUser creates or updates the profile keyed by external id and marks
// it onboarded. The username is stored lowercased.
func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*models.User, error) {
	ctx, span := observability.TraceServiceCall(ctx, "UserService", "UpdateUser")
	defer span.End()

	if in.ExternalID == "" {
		return nil, models.NewValidationError("user id is required")
	}
	if in.Username == "" {
		return nil, models.NewValidationError("Username is required")
	}
	if in.Name == "" {
		return nil, models.NewValidationError("Name is required")
	}

	user := &models.User{
		ExternalID: in.ExternalID,
		Username:   in.Username,
		Name:       in.Name,
		Bio:        in.Bio,
		Image:      in.Image,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, models.WrapOp("Failed to create/update user", err)
	}

	// Only the profile edit page re-renders from this write.
	if in.Path == ProfileEditPath {
		cache.InvalidatePath(ctx, in.Path)
	}
	return user, nil
}

// FetchUserThreads returns the user together with their authored threads
// (from the denormalized threads index), expanded and newest first.
func (s *UserService) FetchUserThreads(ctx context.Context, externalID string) (*models.User, []*models.Thread, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, nil, models.WrapOp("Failed to fetch user threads", err)
	}

	threads, err := s.threads.GetByIDsExpanded(ctx, user.ThreadIDs)
	if err != nil {
		return nil, nil, models.WrapOp("Failed to fetch user threads", err)
	}
	return user, threads, nil
}

// FetchUsers returns one page of the user directory, optionally filtered by
// a case-insensitive search over username and name.
func (s *UserService) FetchUsers(ctx context.Context, in FetchUsersInput) (*UserPage, error) {
	skip, err := pageWindow(in.PageNumber, in.PageSize)
	if err != nil {
		return nil, err
	}

	filter := repository.UserFilter{
		ExcludeExternalID: in.ExcludeExternalID,
		SearchTerm:        in.SearchTerm,
		Skip:              skip,
		Limit:             int64(in.PageSize),
		SortAsc:           in.SortAsc,
	}
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, models.WrapOp("Failed to fetch users", err)
	}

	return &UserPage{Items: users, HasNext: hasNext(total, skip, len(users))}, nil
}

// GetActivity returns replies other users left on the subject's threads,
// newest first. The candidate set is derived from the children arrays of the
// subject's threads; replies added concurrently with this read may be missed
// until the next call.
func (s *UserService) GetActivity(ctx context.Context, externalID string, pageNumber, pageSize int) (*ActivityPage, error) {
	skip, err := pageWindow(pageNumber, pageSize)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, models.WrapOp("Failed to fetch activity", err)
	}

	authored, err := s.threads.GetByIDs(ctx, user.ThreadIDs)
	if err != nil {
		return nil, models.WrapOp("Failed to fetch activity", err)
	}

	var candidates []primitive.ObjectID
	for _, t := range authored {
		candidates = append(candidates, t.ChildIDs...)
	}

	comments, total, err := s.threads.FindComments(ctx, candidates, user.ID, skip, int64(pageSize))
	if err != nil {
		return nil, models.WrapOp("Failed to fetch activity", err)
	}

	return &ActivityPage{Items: comments, HasNext: hasNext(total, skip, len(comments))}, nil
}
