// Package audit writes the immutable AuditLog trail (§3): one row per
// mutating command, recorded in the same transaction as the business write
// it describes so the log can never drift from what actually committed.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"ledgercore/internal/apperr"

	"github.com/jackc/pgx/v5"
)

// Entry is one audit row.
type Entry struct {
	CompanyID    int
	Action       string
	EntityType   string
	EntityID     string
	UserID       *int
	RequestBody  json.RawMessage
	CreatedAt    time.Time
}

// Writer inserts audit rows inside the caller's transaction.
type Writer struct{}

// NewWriter constructs a Writer.
func NewWriter() *Writer { return &Writer{} }

// Write records one audit entry within tx.
func (w *Writer) Write(ctx context.Context, tx pgx.Tx, e Entry) error {
	body := e.RequestBody
	if body == nil {
		body = json.RawMessage("{}")
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_logs (company_id, action, entity_type, entity_id, user_id, request_body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.CompanyID, e.Action, e.EntityType, e.EntityID, e.UserID, body)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to write audit log")
	}
	return nil
}
