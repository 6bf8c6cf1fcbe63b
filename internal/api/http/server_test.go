package http

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/mentor-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/mentor-ticket-service/internal/auth"
	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/config"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	"github.com/spec-kit/mentor-ticket-service/internal/service"
	"github.com/spec-kit/mentor-ticket-service/internal/sla"
	"github.com/spec-kit/mentor-ticket-service/internal/triage"
)

const chatKey = "chat-secret"

type harness struct {
	app    *fiber.App
	clock  *clock.FakeClock
	mentor string
	lead   string
}

func newHarness(t *testing.T, limits config.RateLimitConfig) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.Fake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryTicketRepository()
	profiles := service.NewProfileService(repository.NewMemoryStudentProfileRepository(domain.StudentProfile{
		UserHash: "u-1", CourseID: "c-1", RiskScore: 72, PreferredLanguage: "Tamil",
	}))
	dispatcher := events.NewInMemoryDispatcher(logger)
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repo,
		Triage:     triage.NewPolicy(sla.DefaultPolicy()),
		Clock:      clk,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	bridge := service.NewEscalationBridge(service.EscalationDependencies{
		Tickets: tickets, TicketRepo: repo, Profiles: profiles, Clock: clk, Dispatcher: dispatcher, Logger: logger,
	})
	query := service.NewQueryService(repo, sla.DefaultPolicy(), clk)

	tm := auth.NewTokenManager("test-secret", time.Hour)
	mentorToken, _, err := tm.GenerateToken("mentor_1", auth.RoleMentor)
	require.NoError(t, err)
	leadToken, _, err := tm.GenerateToken("lead_1", auth.RoleLead)
	require.NoError(t, err)
	hash, err := auth.HashKey(chatKey, bcrypt.MinCost)
	require.NoError(t, err)

	app := NewServer(ServerConfig{
		Name:      "test",
		Logger:    logger,
		RateLimit: limits,
		Routes: RouteConfig{
			Health:         handlers.NewHealthHandler("test", "v0", nil),
			Tickets:        handlers.NewTicketsHandler(tickets, query),
			Chat:           handlers.NewChatHandler(bridge, tickets),
			Profiles:       handlers.NewProfileHandler(profiles),
			AuthMiddleware: auth.NewAuthMiddleware(tm),
			ServiceKey:     auth.NewServiceKeyMiddleware(hash),
		},
	})
	return &harness{app: app, clock: clk, mentor: mentorToken, lead: leadToken}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	switch {
	case token == chatKey:
		req.Header.Set(auth.ServiceKeyHeader, chatKey)
	case token != "":
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealthProbes(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})
	assert.True(t, h.app.Config().Immutable, "path params are kept past the request")
	status, _ := h.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	status, _ = h.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestMentorRoutesRequireToken(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})
	status, env := h.do(t, nethttp.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestChatRoutesRequireServiceKey(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})
	status, _ := h.do(t, nethttp.MethodPost, "/api/chat/escalations", h.mentor, map[string]any{"conversation_id": "c"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})

	status, env := h.do(t, nethttp.MethodPost, "/api/tickets", h.lead, map[string]any{
		"user_hash": "u-9", "course_id": "c-1", "title": "Exam panic", "risk_score": 85, "scenario": "exam_anxiety",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	created := decode[map[string]any](t, env)
	id := created["id"].(string)
	assert.Equal(t, "urgent", created["priority"])
	assert.Equal(t, "on_time", created["sla_status"])
	assert.EqualValues(t, 85, created["student_risk_score"])

	status, env = h.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/assign", h.lead, map[string]any{"assigned_to": "mentor_1"})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "in_progress", decode[map[string]any](t, env)["status"])

	status, env = h.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/resolve", h.mentor, map[string]any{"resolution_notes": ""})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = h.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/resolve", h.mentor, map[string]any{"resolution_notes": "Provided breathing exercises"})
	require.Equal(t, nethttp.StatusOK, status)
	status, _ = h.do(t, nethttp.MethodPost, "/api/tickets/"+id+"/close", h.mentor, nil)
	require.Equal(t, nethttp.StatusOK, status)

	status, env = h.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/assign", h.lead, map[string]any{"assigned_to": "mentor_2"})
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	assert.Equal(t, "closed", env.Error.Details["from_status"])

	status, env = h.do(t, nethttp.MethodPost, "/api/tickets/"+id+"/comment", h.mentor, map[string]any{"comment": "checking in", "is_internal": false})
	require.Equal(t, nethttp.StatusCreated, status)
	assert.Equal(t, "mentor_1", decode[map[string]any](t, env)["author"])

	status, env = h.do(t, nethttp.MethodGet, "/api/tickets/"+id+"/comments", h.mentor, nil)
	require.Equal(t, nethttp.StatusOK, status)
	comments := decode[[]map[string]any](t, env)
	require.Len(t, comments, 4)
	assert.Equal(t, "system", comments[0]["author"])
	assert.Equal(t, true, comments[0]["is_internal"])
}

func TestListFiltersAndUnknownTicket(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})
	for _, risk := range []int{10, 90, 45} {
		status, _ := h.do(t, nethttp.MethodPost, "/api/tickets", h.lead, map[string]any{
			"user_hash": "u", "course_id": "c", "risk_score": risk, "scenario": "academic_doubt",
		})
		require.Equal(t, nethttp.StatusCreated, status)
	}

	status, env := h.do(t, nethttp.MethodGet, "/api/tickets", h.mentor, nil)
	require.Equal(t, nethttp.StatusOK, status)
	list := decode[[]map[string]any](t, env)
	require.Len(t, list, 3)
	assert.Equal(t, []any{"urgent", "medium", "low"}, []any{list[0]["priority"], list[1]["priority"], list[2]["priority"]})

	status, env = h.do(t, nethttp.MethodGet, "/api/tickets?priority=low,medium&assigned_to=unassigned", h.mentor, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, env), 2)

	status, _ = h.do(t, nethttp.MethodGet, "/api/tickets?sla_filter=soon", h.mentor, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	status, _ = h.do(t, nethttp.MethodGet, "/api/tickets?limit=-1", h.mentor, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, env = h.do(t, nethttp.MethodGet, "/api/tickets/does-not-exist", h.mentor, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	key := list[0]["key"].(string)
	status, env = h.do(t, nethttp.MethodGet, "/api/tickets/by-key/"+key, h.mentor, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, list[0]["id"], decode[map[string]any](t, env)["id"])

	status, _ = h.do(t, nethttp.MethodGet, "/api/tickets/by-key/TCK-NOPE", h.mentor, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
}

func TestChatEscalationDedupAndStudentView(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})
	body := map[string]any{
		"conversation_id": "conv-1",
		"user_id_hash":    "u-1",
		"course_id":       "c-1",
		"last_question":   "I can't follow lecture 4",
		"ai_answer":       "Let's review the slides together.",
	}

	status, env := h.do(t, nethttp.MethodPost, "/api/chat/escalations", chatKey, body)
	require.Equal(t, nethttp.StatusCreated, status)
	first := decode[map[string]any](t, env)
	assert.Equal(t, true, first["created"])
	assert.Equal(t, "high", first["priority"], "risk comes from the profile")

	h.clock.Advance(2 * time.Minute)
	status, env = h.do(t, nethttp.MethodPost, "/api/chat/escalations", chatKey, body)
	require.Equal(t, nethttp.StatusOK, status)
	second := decode[map[string]any](t, env)
	assert.Equal(t, first["ticket_id"], second["ticket_id"])
	id := second["ticket_id"].(string)

	status, env = h.do(t, nethttp.MethodGet, "/api/chat/tickets/"+id+"?user_id_hash=u-1", chatKey, nil)
	require.Equal(t, nethttp.StatusOK, status)
	view := decode[map[string]any](t, env)
	assert.Empty(t, view["comments"], "system comments are internal")

	status, _ = h.do(t, nethttp.MethodGet, "/api/chat/tickets/"+id+"?user_id_hash=other", chatKey, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, _ = h.do(t, nethttp.MethodPost, "/api/chat/tickets/"+id+"/feedback", chatKey, map[string]any{
		"message_id": "m-1", "user_id_hash": "u-1", "helpful": true,
	})
	assert.Equal(t, nethttp.StatusNoContent, status)

	status, env = h.do(t, nethttp.MethodGet, "/api/students/u-1/profile?course_id=c-1", h.mentor, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 72, decode[map[string]any](t, env)["risk_score"])
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{RPS: 0.001, Burst: 2})
	for i := 0; i < 2; i++ {
		status, _ := h.do(t, nethttp.MethodGet, "/health/live", "", nil)
		require.Equal(t, nethttp.StatusOK, status)
	}
	status, env := h.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	h := newHarness(t, config.RateLimitConfig{})
	status, env := h.do(t, nethttp.MethodGet, "/nope", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
