package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/mentor-ticket-service/internal/clock"
	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/repository"
	"github.com/spec-kit/mentor-ticket-service/internal/sla"
	"github.com/spec-kit/mentor-ticket-service/internal/triage"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

var start = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *clock.FakeClock
	repo     *repository.MemoryTicketRepository
	profiles *repository.MemoryStudentProfileRepository
	tickets  *TicketService
	bridge   *EscalationBridge
	query    *QueryService
	events   *recorder
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newFixture(t *testing.T, profiles ...domain.StudentProfile) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.Fake(start)
	repo := repository.NewMemoryTicketRepository()
	profileRepo := repository.NewMemoryStudentProfileRepository(profiles...)
	dispatcher := events.NewInMemoryDispatcher(logger)
	rec := &recorder{}
	dispatcher.SubscribeAll(rec.handle)

	tickets := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Triage:     triage.NewPolicy(sla.DefaultPolicy()),
		Clock:      clk,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	bridge := NewEscalationBridge(EscalationDependencies{
		Tickets:    tickets,
		TicketRepo: repo,
		Profiles:   NewProfileService(profileRepo),
		Clock:      clk,
		Dispatcher: dispatcher,
		Logger:     logger,
		Config:     EscalationConfig{DedupWindow: 10 * time.Minute, MaxDescriptionChars: 120},
	})
	return &fixture{
		clock:    clk,
		repo:     repo,
		profiles: profileRepo,
		tickets:  tickets,
		bridge:   bridge,
		query:    NewQueryService(repo, sla.DefaultPolicy(), clk),
		events:   rec,
	}
}

func (f *fixture) create(t *testing.T, risk int, scenario string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), "mentor_lead", TicketCreateInput{
		Origin:    domain.Origin{UserHash: "u-hash", CourseID: "course-1", Title: "Need help"},
		RiskScore: risk,
		Scenario:  scenario,
		Channel:   "console",
	})
	require.NoError(t, err)
	return ticket
}

func TestExamAnxietyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket := f.create(t, 85, "exam_anxiety")
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)
	assert.Equal(t, start.Add(2*time.Hour), ticket.SLADueAt)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Zero(t, ticket.CommentCount)
	assert.Regexp(t, `^TCK-[0-9A-F]{8}$`, ticket.Key)

	f.clock.Advance(5 * time.Minute)
	assigned, err := f.tickets.Assign(ctx, "mentor_lead", ticket.ID, "mentor_1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, assigned.Status)
	assert.Equal(t, start.Add(5*time.Minute), assigned.UpdatedAt)

	_, err = f.tickets.Resolve(ctx, "mentor_1", ticket.ID, "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	unchanged, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, unchanged.Status)

	f.clock.Advance(10 * time.Minute)
	resolved, err := f.tickets.Resolve(ctx, "mentor_1", ticket.ID, "Provided breathing exercises")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, start.Add(15*time.Minute), *resolved.ResolvedAt)

	closed, err := f.tickets.Close(ctx, "mentor_1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	_, err = f.tickets.Assign(ctx, "mentor_lead", ticket.ID, "mentor_2", "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	// Comments still append after close.
	_, err = f.tickets.AddComment(ctx, "mentor_1", ticket.ID, "follow-up sent", false)
	require.NoError(t, err)

	comments, err := f.tickets.ListComments(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 4)
	for _, c := range comments[:3] {
		assert.Equal(t, domain.SystemAuthor, c.Author)
		assert.True(t, c.Internal)
	}
	final, _ := f.tickets.GetTicket(ctx, ticket.ID)
	assert.Equal(t, 4, final.CommentCount)

	assert.Contains(t, f.events.types(), events.EventTicketAssigned)
	assert.Contains(t, f.events.types(), events.EventTicketStatusChanged)
}

func TestAssignNotesBecomeInternalComment(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, 10, "academic_doubt")

	_, err := f.tickets.Assign(context.Background(), "lead_1", ticket.ID, "mentor_1", "student prefers mornings")
	require.NoError(t, err)

	comments, err := f.tickets.ListComments(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "lead_1", comments[1].Author)
	assert.Equal(t, "student prefers mornings", comments[1].Text)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tickets.CreateTicket(ctx, "lead", TicketCreateInput{
		Origin: domain.Origin{CourseID: "c1"}, Scenario: "academic_doubt", Channel: "chat",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrigin))

	_, err = f.tickets.CreateTicket(ctx, "lead", TicketCreateInput{
		Origin: domain.Origin{UserHash: "u", CourseID: "c1"}, Scenario: "unknown", Channel: "chat",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = f.tickets.CreateTicket(ctx, "", TicketCreateInput{
		Origin: domain.Origin{UserHash: "u", CourseID: "c1"}, Scenario: "academic_doubt", Channel: "chat",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	all, _ := f.repo.List(ctx, repository.TicketFilter{})
	assert.Empty(t, all)
}

func TestBridgeDeduplicatesWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := EscalationInput{
		ConversationID: "c1",
		UserHash:       "u-hash",
		CourseID:       "course-1",
		ModuleID:       "m-3",
		LastQuestion:   "I keep failing the recursion quiz",
		AIAnswer:       "Try tracing small inputs by hand.",
	}

	first, err := f.bridge.BridgeFromChat(ctx, input)
	require.NoError(t, err)
	assert.True(t, first.Created)

	f.clock.Advance(time.Minute)
	second, err := f.bridge.BridgeFromChat(ctx, input)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)

	all, err := f.repo.List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].CorrelationKey)
	assert.Equal(t, "c1", *all[0].CorrelationKey)
	assert.Equal(t, triage.ScenarioChatEscalation, all[0].Scenario)

	comments, err := f.repo.ListComments(ctx, first.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	for _, c := range comments {
		assert.True(t, c.Internal)
		assert.Equal(t, domain.SystemAuthor, c.Author)
	}
	assert.Equal(t, 2, second.Ticket.CommentCount)
	assert.Contains(t, f.events.types(), events.EventEscalationMerged)
}

func TestBridgeOutsideWindowOpensNewTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := EscalationInput{ConversationID: "c1", UserHash: "u", CourseID: "c", LastQuestion: "q"}

	first, err := f.bridge.BridgeFromChat(ctx, input)
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)
	second, err := f.bridge.BridgeFromChat(ctx, input)
	require.NoError(t, err)

	assert.True(t, second.Created)
	assert.NotEqual(t, first.Ticket.ID, second.Ticket.ID)
}

func TestBridgeConcurrentEscalationsCreateOneTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := EscalationInput{ConversationID: "c-race", UserHash: "u", CourseID: "c", LastQuestion: "q"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bridge.BridgeFromChat(ctx, input)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := f.repo.List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 8, all[0].CommentCount)
}

func TestBridgeRiskFallsBackToProfile(t *testing.T) {
	f := newFixture(t, domain.StudentProfile{UserHash: "u", CourseID: "c", RiskScore: 65, PreferredLanguage: "Hindi"})
	ctx := context.Background()

	res, err := f.bridge.BridgeFromChat(ctx, EscalationInput{ConversationID: "c2", UserHash: "u", CourseID: "c", LastQuestion: "q"})
	require.NoError(t, err)
	assert.Equal(t, 65, res.Ticket.RiskScore)
	assert.Equal(t, domain.TicketPriorityHigh, res.Ticket.Priority)
	assert.Equal(t, "Hindi", res.Ticket.Language)

	hint := 90
	res, err = f.bridge.BridgeFromChat(ctx, EscalationInput{ConversationID: "c3", UserHash: "u", CourseID: "c", LastQuestion: "q", RiskScoreHint: &hint})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, res.Ticket.Priority)

	res, err = f.bridge.BridgeFromChat(ctx, EscalationInput{ConversationID: "c4", UserHash: "nobody", CourseID: "c", LastQuestion: "q"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ticket.RiskScore)
	assert.Equal(t, domain.TicketPriorityLow, res.Ticket.Priority)
}

func TestBridgeTruncatesDescription(t *testing.T) {
	f := newFixture(t)
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}
	res, err := f.bridge.BridgeFromChat(context.Background(), EscalationInput{
		ConversationID: "c5", UserHash: "u", CourseID: "c", LastQuestion: "why?", AIAnswer: string(long),
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(res.Ticket.Description)), 120)
	assert.Contains(t, res.Ticket.Description, "Student question:\nwhy?")
}

func TestBridgeRejectsMissingOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := f.bridge.BridgeFromChat(context.Background(), EscalationInput{ConversationID: "c1", CourseID: "c"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrigin))

	_, err = f.bridge.BridgeFromChat(context.Background(), EscalationInput{UserHash: "u", CourseID: "c"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

type flakyRepo struct {
	*repository.MemoryTicketRepository
	failCreate bool
	failMutate bool
}

var errStorageDown = errors.New("storage unavailable")

func (r *flakyRepo) Create(ctx context.Context, ticket *domain.Ticket, seed ...domain.Comment) error {
	if r.failCreate {
		return errStorageDown
	}
	return r.MemoryTicketRepository.Create(ctx, ticket, seed...)
}

func (r *flakyRepo) Mutate(ctx context.Context, id string, fn repository.MutateFunc) (*domain.Ticket, error) {
	if r.failMutate {
		return nil, errStorageDown
	}
	return r.MemoryTicketRepository.Mutate(ctx, id, fn)
}

func newBridgeOn(t *testing.T, repo repository.TicketRepository) *EscalationBridge {
	t.Helper()
	clk := clock.Fake(start)
	tickets := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Triage:     triage.NewPolicy(sla.DefaultPolicy()),
		Clock:      clk,
		Logger:     zaptest.NewLogger(t),
	})
	return NewEscalationBridge(EscalationDependencies{
		Tickets:    tickets,
		TicketRepo: repo,
		Clock:      clk,
		Logger:     zaptest.NewLogger(t),
	})
}

func TestBridgeCreatesTicketAndNoteInOneWrite(t *testing.T) {
	ctx := context.Background()
	input := EscalationInput{ConversationID: "c1", UserHash: "u-1", CourseID: "c", LastQuestion: "q"}

	repo := &flakyRepo{MemoryTicketRepository: repository.NewMemoryTicketRepository(), failMutate: true}
	res, err := newBridgeOn(t, repo).BridgeFromChat(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ticket.CommentCount)
	thread, err := repo.ListComments(ctx, res.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Contains(t, thread[0].Text, "c1")

	down := &flakyRepo{MemoryTicketRepository: repository.NewMemoryTicketRepository(), failCreate: true}
	_, err = newBridgeOn(t, down).BridgeFromChat(ctx, input)
	assert.ErrorIs(t, err, errStorageDown)
	all, err := down.List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStudentViewAndFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.bridge.BridgeFromChat(ctx, EscalationInput{ConversationID: "c1", UserHash: "u-1", CourseID: "c", LastQuestion: "q"})
	require.NoError(t, err)
	id := res.Ticket.ID

	_, err = f.tickets.AddComment(ctx, "mentor_1", id, "Hi! Let's book a call.", false)
	require.NoError(t, err)

	ticket, comments, err := f.tickets.StudentView(ctx, id, "u-1")
	require.NoError(t, err)
	assert.Equal(t, id, ticket.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, "Hi! Let's book a call.", comments[0].Text)

	_, _, err = f.tickets.StudentView(ctx, id, "someone-else")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.tickets.RecordFeedback(ctx, FeedbackInput{TicketID: id, UserHash: "u-1", MessageID: "msg-9", Helpful: true})
	require.NoError(t, err)
	_, err = f.tickets.RecordFeedback(ctx, FeedbackInput{TicketID: id, UserHash: "intruder", MessageID: "msg-9"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	all, _ := f.tickets.ListComments(ctx, id)
	assert.Contains(t, all[len(all)-1].Text, "msg-9 as helpful")
}

func TestConcurrentAssignAndResolveNoLostUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, 50, "academic_doubt")
	_, err := f.tickets.Assign(ctx, "lead", ticket.ID, "mentor_1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.tickets.Assign(ctx, "lead", ticket.ID, "mentor_2", "")
	}()
	go func() {
		defer wg.Done()
		_, _ = f.tickets.Resolve(ctx, "mentor_1", ticket.ID, "done")
	}()
	wg.Wait()

	final, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, final.Status)
	require.NotNil(t, final.ResolvedAt)
	comments, _ := f.tickets.ListComments(ctx, ticket.ID)
	assert.Equal(t, len(comments), final.CommentCount)
}
