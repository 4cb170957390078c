// Package idempotency implements the at-most-once command-effect store
// (§4.6): a command is identified by (companyID, key); the first caller to
// reserve the key runs the business function inside a transaction, and any
// concurrent or retried caller sharing the key observes the same stored
// result instead of re-executing it.
//
// The unique-constraint-violation-as-serializer idiom is grounded on the
// retrieved pack's punchamoorthee/ledgerops transfer store
// (ExecTransfer: reserve key, 23505 -> Conflict, poll on IN_PROGRESS).
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ledgercore/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status mirrors the IdempotencyRecord.status enumeration.
type Status string

const (
	InProgress Status = "IN_PROGRESS"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
)

// Store runs business functions under the (companyID, key) serializer.
type Store struct {
	pool        *pgxpool.Pool
	pollEvery   time.Duration
	pollTimeout time.Duration
}

// NewStore constructs a Store backed by pool. Poll parameters govern how a
// concurrent duplicate waits for the original caller's transaction to
// finish (§4.6: "poll the row up to a bounded timeout").
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, pollEvery: 100 * time.Millisecond, pollTimeout: 10 * time.Second}
}

// Result is what RunIdempotent returns to the caller.
type Result struct {
	Replay   bool
	Response json.RawMessage
}

// Fn is the business function executed exactly once per (companyID, key).
// It runs inside tx and must return a JSON-serializable response or an
// error; on error the transaction is rolled back and the idempotency record
// is stored as FAILED so replays observe the same failure (§4.12).
type Fn func(ctx context.Context, tx pgx.Tx) (any, error)

// RunIdempotent implements §4.6's contract.
func (s *Store) RunIdempotent(ctx context.Context, companyID int, key, fingerprint string, fn Fn) (Result, error) {
	inserted, err := s.reserve(ctx, companyID, key, fingerprint)
	if err != nil {
		return Result{}, err
	}

	if !inserted {
		return s.awaitDuplicate(ctx, companyID, key, fingerprint)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		_ = s.markFailed(ctx, companyID, key, err.Error())
		return Result{}, apperr.Wrap(apperr.Internal, err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	resp, fnErr := fn(ctx, tx)
	if fnErr != nil {
		_ = s.markFailed(ctx, companyID, key, fnErr.Error())
		return Result{}, fnErr
	}

	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		_ = s.markFailed(ctx, companyID, key, marshalErr.Error())
		return Result{}, apperr.Wrap(apperr.Internal, marshalErr, "failed to marshal response")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE idempotency_records
		SET status = $1, response_body = $2, completed_at = NOW()
		WHERE company_id = $3 AND key = $4
	`, string(Completed), body, companyID, key); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "failed to record idempotent completion")
	}

	if err := tx.Commit(ctx); err != nil {
		_ = s.markFailed(ctx, companyID, key, err.Error())
		return Result{}, apperr.Wrap(apperr.Internal, err, "failed to commit transaction")
	}

	return Result{Replay: false, Response: body}, nil
}

// reserve attempts to insert the IN_PROGRESS row. Returns inserted=false on
// a 23505 unique_violation, meaning a concurrent or prior caller owns the key.
func (s *Store) reserve(ctx context.Context, companyID int, key, fingerprint string) (bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_records (company_id, key, request_fingerprint, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, companyID, key, fingerprint, string(InProgress))
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, apperr.Wrap(apperr.Internal, err, "failed to reserve idempotency key")
}

// awaitDuplicate handles the path where another caller already holds the
// key: it checks the fingerprint, then polls until the row leaves
// IN_PROGRESS or the timeout elapses.
func (s *Store) awaitDuplicate(ctx context.Context, companyID int, key, fingerprint string) (Result, error) {
	deadline := time.Now().Add(s.pollTimeout)
	for {
		status, storedFingerprint, body, lastErr, err := s.read(ctx, companyID, key)
		if err != nil {
			return Result{}, err
		}

		if storedFingerprint != fingerprint {
			return Result{}, apperr.New(apperr.IdempotencyConflict,
				"idempotency key %q already used with a different request", key)
		}

		switch Status(status) {
		case Completed:
			return Result{Replay: true, Response: body}, nil
		case Failed:
			// last_error holds the original error's "KIND: message" text;
			// re-raise it under the same Kind when that Kind is recognized.
			kind, msg := apperr.Internal, "replayed command previously failed: "+lastErr
			if k, rest, ok := strings.Cut(lastErr, ": "); ok {
				switch apperr.Kind(k) {
				case apperr.Validation, apperr.Unbalanced, apperr.Backdated, apperr.InsufficientStock,
					apperr.PeriodClosed, apperr.InvalidState, apperr.NotFound, apperr.Conflict:
					kind, msg = apperr.Kind(k), rest
				}
			}
			return Result{}, apperr.New(kind, "%s", msg)
		}

		if time.Now().After(deadline) {
			return Result{}, apperr.New(apperr.Conflict,
				"concurrent request for idempotency key %q did not complete in time", key)
		}
		time.Sleep(s.pollEvery)
	}
}

func (s *Store) read(ctx context.Context, companyID int, key string) (status, fingerprint string, body json.RawMessage, lastErr string, err error) {
	var errText *string
	var bodyRaw []byte
	qErr := s.pool.QueryRow(ctx, `
		SELECT status, request_fingerprint, COALESCE(response_body, '{}'::jsonb), COALESCE(last_error, '')
		FROM idempotency_records
		WHERE company_id = $1 AND key = $2
	`, companyID, key).Scan(&status, &fingerprint, &bodyRaw, &errText)
	if qErr != nil {
		if errors.Is(qErr, pgx.ErrNoRows) {
			return "", "", nil, "", apperr.New(apperr.Internal, "idempotency record for key %q disappeared", key)
		}
		return "", "", nil, "", apperr.Wrap(apperr.Internal, qErr, "failed to read idempotency record")
	}
	if errText != nil {
		lastErr = *errText
	}
	return status, fingerprint, bodyRaw, lastErr, nil
}

func (s *Store) markFailed(ctx context.Context, companyID int, key, errText string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_records
		SET status = $1, last_error = $2, completed_at = NOW()
		WHERE company_id = $3 AND key = $4
	`, string(Failed), errText, companyID, key)
	return err
}
