package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// Unassigned is the assignee filter value matching tickets with no mentor.
const Unassigned = "unassigned"

// TicketFilter captures the storage-side list constraints. Empty fields do
// not constrain. SLA buckets are derived on read and filtered by the caller.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Language   *string
	Assignee   *string
	CourseID   *string
	UserHash   *string
}

// MutateFunc edits the ticket copy it is given and returns the comments to
// append with it. It may be invoked more than once when storage retries, so
// it must not have side effects beyond the ticket.
type MutateFunc func(ticket *domain.Ticket) ([]domain.Comment, error)

// TicketRepository is the authoritative store of tickets and their threads.
// Mutate calls for the same id are serialized; reads never observe a
// half-applied mutation.
type TicketRepository interface {
	// Create stores ticket together with its opening comments in one step.
	// CommentCount is set from len(seed).
	Create(ctx context.Context, ticket *domain.Ticket, seed ...domain.Comment) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByKey(ctx context.Context, key string) (*domain.Ticket, error)
	// FindByCorrelationKey returns the newest ticket with key created at or after since.
	FindByCorrelationKey(ctx context.Context, key string, since time.Time) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error)
	ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_key, user_hash, course_id, module_id, title, description, status, priority,
       language, scenario, channel, assigned_to, correlation_key, created_at, updated_at, resolved_at,
       sla_due_at, resolution_notes, comment_count, risk_score`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, seed ...domain.Comment) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	ticket.CommentCount = len(seed)
	return withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		_, err = tx.Exec(ctx, query,
			ticket.ID,
			ticket.Key,
			ticket.UserHash,
			ticket.CourseID,
			ticket.ModuleID,
			ticket.Title,
			ticket.Description,
			ticket.Status,
			ticket.Priority,
			ticket.Language,
			ticket.Scenario,
			ticket.Channel,
			ticket.AssignedTo,
			ticket.CorrelationKey,
			ticket.CreatedAt,
			ticket.UpdatedAt,
			ticket.ResolvedAt,
			ticket.SLADueAt,
			ticket.ResolutionNotes,
			ticket.CommentCount,
			ticket.RiskScore,
		)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		if err := insertComments(ctx, tx, seed); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit ticket: %w", err)
		}
		return nil
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_key=$1`, key)
}

func (r *ticketRepository) FindByCorrelationKey(ctx context.Context, key string, since time.Time) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets
        WHERE correlation_key=$1 AND created_at >= $2
        ORDER BY created_at DESC, id DESC LIMIT 1`
	return r.fetchSingle(ctx, query, key, since)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := withRetry(ctx, func() error {
		var scanErr error
		ticket, scanErr = scanTicket(r.pool.QueryRow(ctx, query, args...))
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return backoff.Permanent(apperrors.NewNotFound("ticket", map[string]any{"lookup": args[0]}))
		}
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Language != nil {
		args = append(args, strings.TrimSpace(*filter.Language))
		clauses = append(clauses, fmt.Sprintf("LOWER(language) = LOWER($%d)", len(args)))
	}
	if filter.Assignee != nil {
		if *filter.Assignee == Unassigned {
			clauses = append(clauses, "assigned_to IS NULL")
		} else {
			args = append(args, *filter.Assignee)
			clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
		}
	}
	if filter.CourseID != nil {
		args = append(args, *filter.CourseID)
		clauses = append(clauses, fmt.Sprintf("course_id=$%d", len(args)))
	}
	if filter.UserHash != nil {
		args = append(args, *filter.UserHash)
		clauses = append(clauses, fmt.Sprintf("user_hash=$%d", len(args)))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s, sla_due_at ASC, id ASC`,
		base, strings.Join(clauses, " AND "), priorityRankSQL)

	var result []domain.Ticket
	err := withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		result, err = scanTickets(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return result, nil
}

const priorityRankSQL = `CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC`

// Mutate locks the row with SELECT ... FOR UPDATE so concurrent mutations of
// one ticket queue behind each other inside postgres.
func (r *ticketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := withRetry(ctx, func() error {
		next, err := r.mutateOnce(ctx, id, fn)
		if err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ticketRepository) mutateOnce(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, backoff.Permanent(apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id}))
	}
	if err != nil {
		return nil, fmt.Errorf("lock ticket: %w", err)
	}

	next := current.Clone()
	comments, err := fn(next)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	next.ID = current.ID
	next.CommentCount = current.CommentCount + len(comments)

	const update = `
        UPDATE tickets SET assigned_to=$1, status=$2, priority=$3, title=$4, description=$5, language=$6,
            updated_at=$7, resolved_at=$8, resolution_notes=$9, comment_count=$10
        WHERE id=$11`
	if _, err := tx.Exec(ctx, update,
		next.AssignedTo,
		next.Status,
		next.Priority,
		next.Title,
		next.Description,
		next.Language,
		next.UpdatedAt,
		next.ResolvedAt,
		next.ResolutionNotes,
		next.CommentCount,
		next.ID,
	); err != nil {
		return nil, fmt.Errorf("update ticket: %w", err)
	}
	if err := insertComments(ctx, tx, comments); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ticket: %w", err)
	}
	return next, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Key,
		&ticket.UserHash,
		&ticket.CourseID,
		&ticket.ModuleID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Language,
		&ticket.Scenario,
		&ticket.Channel,
		&ticket.AssignedTo,
		&ticket.CorrelationKey,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.SLADueAt,
		&ticket.ResolutionNotes,
		&ticket.CommentCount,
		&ticket.RiskScore,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
