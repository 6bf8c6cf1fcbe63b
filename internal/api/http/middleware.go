package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/observability"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration, limits config.RateLimitConfig) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	if limits.RPS > 0 {
		app.Use(NewRateLimiter(limits.RPS, limits.Burst).Handle)
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				writeError(c, logger, metrics, err)
				err = nil
			}
		}()
		return c.Next()
	}
}

// writeError renders err as the standard error envelope.
func writeError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, err error) {
	if fe, ok := err.(*fiber.Error); ok {
		err = fiberError(fe)
	}
	domainErr := apperrors.ToDomainError(err)
	metrics.RecordError(c.UserContext(), c.Route().Path, c.Method(), domainErr.Code)

	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	if domainErr.HTTPStatus >= 500 {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(domainErr))
	}
	c.Status(domainErr.HTTPStatus)
	_ = c.JSON(fiber.Map{"error": body})
}

func fiberError(fe *fiber.Error) error {
	switch fe.Code {
	case fiber.StatusNotFound:
		return apperrors.NewNotFound("route", nil)
	case fiber.StatusMethodNotAllowed, fiber.StatusBadRequest:
		return apperrors.NewValidationError(fe.Message, nil)
	case fiber.StatusTooManyRequests:
		return apperrors.NewRateLimited()
	}
	return apperrors.NewDomainError(apperrors.CodeInternal, fe.Message, fe.Code, nil)
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per IP with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     3 * time.Minute,
		lastGC:   time.Now(),
	}
}

// Handle rejects requests over the client's budget with RATE_LIMITED.
func (rl *RateLimiter) Handle(c *fiber.Ctx) error {
	if !rl.visitor(c.IP()).Allow() {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(1))
		return apperrors.NewRateLimited()
	}
	return c.Next()
}

func (rl *RateLimiter) visitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastGC) > time.Minute {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idle {
				delete(rl.visitors, key)
			}
		}
		rl.lastGC = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}
