// Package outbox implements the transactional outbox (§4.8): every domain
// event is inserted into the events table in the same database transaction
// as the business write it describes, so a committed business change and
// its event are never observed separately. A standalone publisher
// (cmd/outbox-publisher) later reads unpublished rows and hands them to
// downstream consumers.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"ledgercore/internal/apperr"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/jackc/pgx/v5"
)

// EventType is a closed enumeration of the domain event kinds §6 names.
type EventType string

const (
	JournalEntryCreated      EventType = "journal.entry.created"
	JournalEntryReversed     EventType = "journal.entry.reversed"
	InventoryRecalcRequested EventType = "inventory.recalc.requested"
)

// Event is one outbox row.
type Event struct {
	ID            string
	CompanyID     int
	Type          EventType
	Payload       json.RawMessage
	CorrelationID string
	CausationID   *string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// JournalEntryCreatedPayload is the wire shape for a journal.entry.created event.
type JournalEntryCreatedPayload struct {
	JournalEntryID           int    `json:"journalEntryId"`
	CompanyID                int    `json:"companyId"`
	TotalDebit               string `json:"totalDebit,omitempty"`
	TotalCredit              string `json:"totalCredit,omitempty"`
	ReversalOfJournalEntryID *int   `json:"reversalOfJournalEntryId,omitempty"`
}

// JournalEntryReversedPayload is the wire shape for a journal.entry.reversed event.
type JournalEntryReversedPayload struct {
	OriginalJournalEntryID int    `json:"originalJournalEntryId"`
	ReversalJournalEntryID int    `json:"reversalJournalEntryId"`
	CompanyID              int    `json:"companyId"`
	Reason                 string `json:"reason,omitempty"`
}

// InventoryRecalcRequestedPayload is the wire shape for an
// inventory.recalc.requested event, emitted after a backdated stock-move
// replay so downstream COGS/valuation consumers recompute from fromDate.
type InventoryRecalcRequestedPayload struct {
	CompanyID      int    `json:"companyId"`
	FromDate       string `json:"fromDate"`
	Reason         string `json:"reason"`
	Source         string `json:"source"`
	JournalEntryID *int   `json:"journalEntryId,omitempty"`
}

// schemas caches the generated JSON Schema per event type, used to validate
// payloads before they are persisted so a malformed producer fails loudly
// at write time rather than silently at consume time. ExpandedStruct puts
// each payload's properties and required list at the schema root, where
// validateAgainstSchema reads them.
var reflector = &jsonschema.Reflector{ExpandedStruct: true}

var schemas = map[EventType]*jsonschema.Schema{
	JournalEntryCreated:      reflector.Reflect(&JournalEntryCreatedPayload{}),
	JournalEntryReversed:     reflector.Reflect(&JournalEntryReversedPayload{}),
	InventoryRecalcRequested: reflector.Reflect(&InventoryRecalcRequestedPayload{}),
}

// Writer inserts outbox rows inside the caller's transaction.
type Writer struct{}

// NewWriter constructs a Writer.
func NewWriter() *Writer { return &Writer{} }

// Insert validates payload against its event type's schema, then inserts the
// row within tx. correlationID groups related events across a single
// command invocation; causationID, when set, is the ID of the event that
// caused this one (§6's event DAG).
func (w *Writer) Insert(ctx context.Context, tx pgx.Tx, companyID int, evType EventType, payload any, correlationID string, causationID *string) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, apperr.Wrap(apperr.Internal, err, "failed to marshal event payload")
	}

	if schema, ok := schemas[evType]; ok {
		if err := validateAgainstSchema(schema, body); err != nil {
			return Event{}, apperr.Wrap(apperr.Internal, err, "event payload failed schema validation for %s", evType)
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, company_id, type, payload, correlation_id, causation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, companyID, string(evType), body, correlationID, causationID, now)
	if err != nil {
		return Event{}, apperr.Wrap(apperr.Internal, err, "failed to insert outbox event")
	}

	return Event{
		ID:            id,
		CompanyID:     companyID,
		Type:          evType,
		Payload:       body,
		CorrelationID: correlationID,
		CausationID:   causationID,
		CreatedAt:     now,
	}, nil
}

// validateAgainstSchema is a structural check: every payload here is a Go
// struct marshaled by this package, so validation exists to catch a future
// field-shape drift between the struct and the schema generated from it
// rather than to police external input.
func validateAgainstSchema(schema *jsonschema.Schema, body []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return err
	}
	for _, required := range schema.Required {
		if _, ok := decoded[required]; !ok {
			return apperr.New(apperr.Internal, "payload missing required field %q", required)
		}
	}
	return nil
}
