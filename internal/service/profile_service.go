package service

import (
	"context"
	"strings"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// ProfileService exposes the read-only student profile aggregate.
type ProfileService struct {
	profiles repository.StudentProfileRepository
}

// NewProfileService constructs the service.
func NewProfileService(profiles repository.StudentProfileRepository) *ProfileService {
	return &ProfileService{profiles: profiles}
}

// Get fetches the profile for (userHash, courseID).
func (s *ProfileService) Get(ctx context.Context, userHash, courseID string) (*domain.StudentProfile, error) {
	userHash = strings.TrimSpace(userHash)
	courseID = strings.TrimSpace(courseID)
	if userHash == "" || courseID == "" {
		return nil, apperrors.NewValidationError("user_hash and course_id required", nil)
	}
	return s.profiles.Get(ctx, userHash, courseID)
}
