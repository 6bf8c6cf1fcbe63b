package repository

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/mentor-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

// insertComments appends thread entries inside the caller's ticket transaction.
func insertComments(ctx context.Context, tx pgx.Tx, comments []domain.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	const query = `
        INSERT INTO ticket_comments (id, ticket_id, body, author, is_internal, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	batch := &pgx.Batch{}
	for _, c := range comments {
		batch.Queue(query, c.ID, c.TicketID, c.Text, c.Author, c.Internal, c.CreatedAt)
	}
	results := tx.SendBatch(ctx, batch)
	for range comments {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert comment: %w", err)
		}
	}
	return results.Close()
}

func (r *ticketRepository) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, body, author, is_internal, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`

	var result []domain.Comment
	err := withRetry(ctx, func() error {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticketID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return backoff.Permanent(apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID}))
		}

		rows, err := r.pool.Query(ctx, query, ticketID)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var c domain.Comment
			if err := rows.Scan(
				&c.ID,
				&c.TicketID,
				&c.Text,
				&c.Author,
				&c.Internal,
				&c.CreatedAt,
			); err != nil {
				return err
			}
			result = append(result, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
