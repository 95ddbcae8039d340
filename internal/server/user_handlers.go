package server

import (
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	ctx := c.UserContext()

	user, err := s.userService.FetchUser(ctx, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PUT /api/users/me
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		Bio      string `json:"bio,omitempty"`
		Image    string `json:"image,omitempty"`
		Path     string `json:"path,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.UpdateUser(ctx, service.UpdateUserInput{
		ExternalID: middleware.CallerExternalID(c),
		Username:   req.Username,
		Name:       req.Name,
		Bio:        req.Bio,
		Image:      req.Image,
		Path:       req.Path,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(user)
}

// GetUsers handles GET /api/users
func (s *Server) GetUsers(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := parsePage(c, 20)

	directory, err := s.userService.FetchUsers(ctx, service.FetchUsersInput{
		ExcludeExternalID: middleware.CallerExternalID(c),
		SearchTerm:        c.Query("q"),
		PageNumber:        page.Number,
		PageSize:          page.Size,
		SortAsc:           c.Query("sort") == "asc",
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(directory)
}

// GetUserThreads handles GET /api/users/:id/threads
func (s *Server) GetUserThreads(c *fiber.Ctx) error {
	ctx := c.UserContext()

	user, threads, err := s.userService.FetchUserThreads(ctx, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"user":    user,
		"threads": threads,
	})
}

// GetUserActivity handles GET /api/users/:id/activity
func (s *Server) GetUserActivity(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := parsePage(c, 20)

	activity, err := s.userService.GetActivity(ctx, c.Params("id"), page.Number, page.Size)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(activity)
}
