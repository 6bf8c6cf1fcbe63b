package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// Transient storage failures are retried here and nowhere else.
const storageRetryMaxElapsed = 5 * time.Second

func newStorageRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxElapsedTime = storageRetryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient postgres failure:
// serialization conflicts, deadlocks, dropped connections.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P01", "57P02", "57P03":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "broken pipe", "connection refused", "unexpected eof"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// withRetry runs op, retrying transient errors with exponential backoff.
// Errors already wrapped in backoff.Permanent stop immediately.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) || !isRetryableError(err) {
			if permanent != nil {
				return permanent
			}
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newStorageRetryBackoff(), ctx))
}
