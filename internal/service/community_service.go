package service

import (
	"context"

	"threads/internal/models"
	"threads/internal/observability"
	"threads/internal/repository"
)

// CommunityService implements community lifecycle and membership operations.
type CommunityService struct {
	communities repository.CommunityRepository
	users       repository.UserRepository
}

// NewCommunityService creates a new community service.
func NewCommunityService(communities repository.CommunityRepository, users repository.UserRepository) *CommunityService {
	return &CommunityService{communities: communities, users: users}
}

// CreateCommunityInput carries the fields for creating or updating a
// community keyed by its external id.
type CreateCommunityInput struct {
	ExternalID          string
	Name                string
	Username            string
	Image               string
	Bio                 string
	CreatedByExternalID string
}

// CreateCommunity upserts a community. The creator is resolved by external
// id and becomes the first member on insert.
func (s *CommunityService) CreateCommunity(ctx context.Context, in CreateCommunityInput) (*models.Community, error) {
	ctx, span := observability.TraceServiceCall(ctx, "CommunityService", "CreateCommunity")
	defer span.End()

	if in.ExternalID == "" {
		return nil, models.NewValidationError("community id is required")
	}
	if in.Username == "" {
		return nil, models.NewValidationError("Username is required")
	}
	if in.Name == "" {
		return nil, models.NewValidationError("Name is required")
	}

	creator, err := s.users.GetByExternalID(ctx, in.CreatedByExternalID)
	if err != nil {
		return nil, models.WrapOp("Failed to create community", err)
	}

	community := &models.Community{
		ExternalID: in.ExternalID,
		Username:   in.Username,
		Name:       in.Name,
		Image:      in.Image,
		Bio:        in.Bio,
		CreatedBy:  creator.ID,
	}
	if err := s.communities.Upsert(ctx, community); err != nil {
		return nil, models.WrapOp("Failed to create community", err)
	}
	return community, nil
}

// FetchCommunity returns the community with the given external id.
func (s *CommunityService) FetchCommunity(ctx context.Context, externalID string) (*models.Community, error) {
	if externalID == "" {
		return nil, models.NewValidationError("community id is required")
	}
	community, err := s.communities.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, models.WrapOp("Failed to fetch community", err)
	}
	return community, nil
}

// AddMember adds the user to the community's member set. Re-adding an
// existing member is a no-op.
func (s *CommunityService) AddMember(ctx context.Context, communityExternalID, userExternalID string) error {
	community, user, err := s.resolvePair(ctx, communityExternalID, userExternalID)
	if err != nil {
		return models.WrapOp("Failed to add member to community", err)
	}
	if err := s.communities.AddMember(ctx, community.ID, user.ID); err != nil {
		return models.WrapOp("Failed to add member to community", err)
	}
	return nil
}

// RemoveMember removes the user from the community's member set.
func (s *CommunityService) RemoveMember(ctx context.Context, communityExternalID, userExternalID string) error {
	community, user, err := s.resolvePair(ctx, communityExternalID, userExternalID)
	if err != nil {
		return models.WrapOp("Failed to remove member from community", err)
	}
	if err := s.communities.RemoveMember(ctx, community.ID, user.ID); err != nil {
		return models.WrapOp("Failed to remove member from community", err)
	}
	return nil
}

func (s *CommunityService) resolvePair(ctx context.Context, communityExternalID, userExternalID string) (*models.Community, *models.User, error) {
	community, err := s.communities.GetByExternalID(ctx, communityExternalID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetByExternalID(ctx, userExternalID)
	if err != nil {
		return nil, nil, err
	}
	return community, user, nil
}
