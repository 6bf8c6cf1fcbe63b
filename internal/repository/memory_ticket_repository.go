package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	"github.com/spec-kit/mentor-ticket-service/internal/lock"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// MemoryTicketRepository keeps tickets in process. Mutations of one ticket
// are serialized through a keyed lock; the maps themselves are swapped under
// a RWMutex so readers only ever see whole snapshots.
type MemoryTicketRepository struct {
	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	comments map[string][]domain.Comment
	keys     map[string]string
	locks    *lock.KeyedMutex
}

// NewMemoryTicketRepository builds an empty repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets:  make(map[string]*domain.Ticket),
		comments: make(map[string][]domain.Comment),
		keys:     make(map[string]string),
		locks:    lock.NewKeyedMutex(),
	}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket, seed ...domain.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return fmt.Errorf("insert ticket: id %s already exists", ticket.ID)
	}
	if ticket.Key != "" {
		if _, exists := r.keys[ticket.Key]; exists {
			return fmt.Errorf("insert ticket: key %s already exists", ticket.Key)
		}
		r.keys[ticket.Key] = ticket.ID
	}
	ticket.CommentCount = len(seed)
	r.tickets[ticket.ID] = ticket.Clone()
	if len(seed) > 0 {
		r.comments[ticket.ID] = append([]domain.Comment(nil), seed...)
	}
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, notFound(id)
	}
	return t.Clone(), nil
}

func (r *MemoryTicketRepository) GetByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	r.mu.RLock()
	id, ok := r.keys[key]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"lookup": key})
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryTicketRepository) FindByCorrelationKey(ctx context.Context, key string, since time.Time) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *domain.Ticket
	for _, t := range r.tickets {
		if t.CorrelationKey == nil || *t.CorrelationKey != key || t.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) ||
			(t.CreatedAt.Equal(newest.CreatedAt) && t.ID > newest.ID) {
			newest = t
		}
	}
	if newest == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"lookup": key})
	}
	return newest.Clone(), nil
}

func (r *MemoryTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	result := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		if matches(t, filter) {
			result = append(result, *t.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.SLADueAt.Equal(b.SLADueAt) {
			return a.SLADueAt.Before(b.SLADueAt)
		}
		return a.ID < b.ID
	})
	return result, nil
}

// Mutate holds the ticket's key lock for the whole read-modify-write.
func (r *MemoryTicketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	unlock, err := r.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	comments, err := fn(next)
	if err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Key = current.Key
	next.CommentCount = current.CommentCount + len(comments)

	r.mu.Lock()
	r.tickets[id] = next.Clone()
	r.comments[id] = append(r.comments[id], comments...)
	r.mu.Unlock()
	return next, nil
}

func (r *MemoryTicketRepository) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tickets[ticketID]; !ok {
		return nil, notFound(ticketID)
	}
	thread := r.comments[ticketID]
	out := make([]domain.Comment, len(thread))
	copy(out, thread)
	return out, nil
}

func matches(t *domain.Ticket, f TicketFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	if f.Language != nil && !strings.EqualFold(strings.TrimSpace(*f.Language), t.Language) {
		return false
	}
	if f.Assignee != nil {
		if *f.Assignee == Unassigned {
			if t.AssignedTo != nil {
				return false
			}
		} else if t.Assignee() != *f.Assignee {
			return false
		}
	}
	if f.CourseID != nil && t.CourseID != *f.CourseID {
		return false
	}
	if f.UserHash != nil && t.UserHash != *f.UserHash {
		return false
	}
	return true
}

func notFound(id string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
}
