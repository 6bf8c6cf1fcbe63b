package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mentor-ticket-service/internal/service"
)

// ProfileHandler exposes student profiles to mentors.
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler constructs handler.
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetProfile GET /api/students/:userHash/profile?course_id=.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	profile, err := h.profiles.Get(c.UserContext(), c.Params("userHash"), c.Query("course_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}
