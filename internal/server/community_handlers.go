package server

import (
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetCommunity handles GET /api/communities/:id
func (s *Server) GetCommunity(c *fiber.Ctx) error {
	ctx := c.UserContext()

	community, err := s.communityService.FetchCommunity(ctx, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(community)
}

// CreateCommunity handles POST /api/communities
func (s *Server) CreateCommunity(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Image    string `json:"image,omitempty"`
		Bio      string `json:"bio,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	community, err := s.communityService.CreateCommunity(ctx, service.CreateCommunityInput{
		ExternalID:          req.ID,
		Name:                req.Name,
		Username:            req.Username,
		Image:               req.Image,
		Bio:                 req.Bio,
		CreatedByExternalID: middleware.CallerExternalID(c),
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(community)
}

// AddCommunityMember handles POST /api/communities/:id/members
func (s *Server) AddCommunityMember(c *fiber.Ctx) error {
	ctx := c.UserContext()

	// An empty body means the caller is joining themselves.
	var req struct {
		UserID string `json:"userId"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
		}
	}
	if req.UserID == "" {
		req.UserID = middleware.CallerExternalID(c)
	}

	if err := s.communityService.AddMember(ctx, c.Params("id"), req.UserID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveCommunityMember handles DELETE /api/communities/:id/members/:userId
func (s *Server) RemoveCommunityMember(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if err := s.communityService.RemoveMember(ctx, c.Params("id"), c.Params("userId")); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
