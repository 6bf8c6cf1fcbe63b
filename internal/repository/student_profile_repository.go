package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// StudentProfileRepository reads the externally computed learner aggregate.
// Nothing in this service writes profiles.
type StudentProfileRepository interface {
	Get(ctx context.Context, userHash, courseID string) (*domain.StudentProfile, error)
}

type studentProfileRepository struct {
	pool *pgxpool.Pool
}

// NewStudentProfileRepository builds the postgres reader.
func NewStudentProfileRepository(pool *pgxpool.Pool) StudentProfileRepository {
	return &studentProfileRepository{pool: pool}
}

func (r *studentProfileRepository) Get(ctx context.Context, userHash, courseID string) (*domain.StudentProfile, error) {
	const query = `
        SELECT user_hash, course_id, risk_score, engagement_level, last_activity, total_tickets,
               resolved_tickets, avg_resolution_minutes, preferred_language, learning_progress
        FROM student_profiles WHERE user_hash=$1 AND course_id=$2`
	var p domain.StudentProfile
	err := withRetry(ctx, func() error {
		err := r.pool.QueryRow(ctx, query, userHash, courseID).Scan(
			&p.UserHash,
			&p.CourseID,
			&p.RiskScore,
			&p.EngagementLevel,
			&p.LastActivity,
			&p.TotalTickets,
			&p.ResolvedTickets,
			&p.AvgResolutionMinutes,
			&p.PreferredLanguage,
			&p.LearningProgress,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return backoff.Permanent(profileNotFound(userHash, courseID))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MemoryStudentProfileRepository serves profiles seeded in process.
type MemoryStudentProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.StudentProfile
}

// NewMemoryStudentProfileRepository seeds the repository with profiles.
func NewMemoryStudentProfileRepository(profiles ...domain.StudentProfile) *MemoryStudentProfileRepository {
	r := &MemoryStudentProfileRepository{profiles: make(map[string]domain.StudentProfile)}
	for _, p := range profiles {
		r.profiles[profileKey(p.UserHash, p.CourseID)] = p
	}
	return r
}

func (r *MemoryStudentProfileRepository) Get(ctx context.Context, userHash, courseID string) (*domain.StudentProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[profileKey(userHash, courseID)]
	if !ok {
		return nil, profileNotFound(userHash, courseID)
	}
	return &p, nil
}

// CachedStudentProfileRepository reads through a Redis JSON cache. Cache
// failures are logged and fall through to the inner repository.
type CachedStudentProfileRepository struct {
	inner  StudentProfileRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStudentProfileRepository wraps inner. A nil client disables caching.
func NewCachedStudentProfileRepository(inner StudentProfileRepository, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) StudentProfileRepository {
	if client == nil {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStudentProfileRepository{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (r *CachedStudentProfileRepository) Get(ctx context.Context, userHash, courseID string) (*domain.StudentProfile, error) {
	key := "profile:" + profileKey(userHash, courseID)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p domain.StudentProfile
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return &p, nil
		}
		r.logger.Warn("discarding malformed cached profile", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("profile cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := r.inner.Get(ctx, userHash, courseID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(p); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.logger.Warn("profile cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return p, nil
}

func profileKey(userHash, courseID string) string {
	return fmt.Sprintf("%s:%s", userHash, courseID)
}

func profileNotFound(userHash, courseID string) error {
	return apperrors.NewNotFound("student profile", map[string]any{"user_hash": userHash, "course_id": courseID})
}
