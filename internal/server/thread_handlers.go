package server

import (
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetThreads handles GET /api/threads
func (s *Server) GetThreads(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := parsePage(c, 20)

	feed, err := s.threadService.FetchThreads(ctx, page.Number, page.Size)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(feed)
}

// GetThread handles GET /api/threads/:id
func (s *Server) GetThread(c *fiber.Ctx) error {
	ctx := c.UserContext()

	thread, err := s.threadService.FetchThreadByID(ctx, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(thread)
}

// CreateThread handles POST /api/threads
func (s *Server) CreateThread(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		Text        string `json:"text"`
		CommunityID string `json:"communityId,omitempty"`
		Path        string `json:"path,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	thread, err := s.threadService.CreateThread(ctx, service.CreateThreadInput{
		Text:        req.Text,
		AuthorID:    middleware.CallerExternalID(c),
		CommunityID: req.CommunityID,
		Path:        req.Path,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(thread)
}

// AddComment handles POST /api/threads/:id/comments
func (s *Server) AddComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		Text string `json:"text"`
		Path string `json:"path,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	comment, err := s.threadService.AddComment(ctx, service.AddCommentInput{
		ThreadID: c.Params("id"),
		Text:     req.Text,
		UserID:   middleware.CallerExternalID(c),
		Path:     req.Path,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteThread handles DELETE /api/threads/:id
func (s *Server) DeleteThread(c *fiber.Ctx) error {
	ctx := c.UserContext()
	path := c.Query("path")

	if err := s.threadService.DeleteThread(ctx, c.Params("id"), path); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
