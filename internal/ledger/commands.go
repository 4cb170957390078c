package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/audit"
	"ledgercore/internal/core"
	"ledgercore/internal/idempotency"
	"ledgercore/internal/lock"
	"ledgercore/internal/money"
	"ledgercore/internal/outbox"
	"ledgercore/internal/period"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Commands implements the journal-entry write surface of §4.3: the
// idempotency/lock/transaction/period-close/outbox/audit envelope wrapped
// around LedgerPoster.
type Commands struct {
	poster     *Poster
	outbox     *outbox.Writer
	audit      *audit.Writer
	idem       *idempotency.Store
	locks      *lock.Manager
	journalTTL time.Duration
	closeTTL   time.Duration
}

// NewCommands wires the envelope dependencies.
func NewCommands(idem *idempotency.Store, locks *lock.Manager, journalTTL, closeTTL time.Duration) *Commands {
	return &Commands{
		poster:     NewPoster(),
		outbox:     outbox.NewWriter(),
		audit:      audit.NewWriter(),
		idem:       idem,
		locks:      locks,
		journalTTL: journalTTL,
		closeTTL:   closeTTL,
	}
}

// LineDTO is one requested journal line in the external request shape.
type LineDTO struct {
	AccountID int          `json:"accountId"`
	Debit     money.Amount `json:"debit"`
	Credit    money.Amount `json:"credit"`
}

// CreateManualInput is the POST /journal-entries request body.
type CreateManualInput struct {
	Date            time.Time
	Description     string
	LocationID      *int
	CreatedByUserID *int
	Lines           []LineDTO
}

// EntryResponse is the common journal-entry response shape.
type EntryResponse struct {
	ID          int    `json:"id"`
	EntryNumber string `json:"entryNumber"`
	Date        string `json:"date"`
	Description string `json:"description"`
	TotalDebit  string `json:"totalDebit"`
	TotalCredit string `json:"totalCredit"`
	Balanced    bool   `json:"balanced"`
}

func toResponse(e *core.JournalEntry) EntryResponse {
	var debit, credit money.Amount
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return EntryResponse{
		ID:          e.ID,
		EntryNumber: e.EntryNumber,
		Date:        e.Date.Format("2006-01-02"),
		Description: e.Description,
		TotalDebit:  debit.String(),
		TotalCredit: credit.String(),
		Balanced:    debit.Equal(credit),
	}
}

// CreateManual implements the manual posting command.
func (c *Commands) CreateManual(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in CreateManualInput) (json.RawMessage, bool, error) {
	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, []string{journalLockKey(companyID)}, c.journalTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			if err := period.AssertOpen(ctx, tx, companyID, in.Date, "post journal entry"); err != nil {
				return nil, err
			}

			lines := make([]LineInput, len(in.Lines))
			for i, l := range in.Lines {
				lines[i] = LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit}
			}

			entry, err := c.poster.PostJournalEntry(ctx, tx, PostInput{
				CompanyID:       companyID,
				Date:            in.Date,
				Description:     in.Description,
				LocationID:      in.LocationID,
				CreatedByUserID: in.CreatedByUserID,
				Lines:           lines,
			})
			if err != nil {
				return nil, err
			}

			totalDebit, totalCredit := lineTotals(entry.Lines)
			correlationID := uuid.NewString()
			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: entry.ID, CompanyID: companyID, TotalDebit: totalDebit.String(), TotalCredit: totalCredit.String()},
				correlationID, nil); err != nil {
				return nil, err
			}

			if err := c.audit.Write(ctx, tx, auditEntry(companyID, "journal.entry.create", entry.ID, in.CreatedByUserID)); err != nil {
				return nil, err
			}

			return toResponse(entry), nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

// ReverseInput is the POST /journal-entries/{id}/reverse request body.
type ReverseInput struct {
	OriginalID      int
	Reason          *string
	Date            *time.Time
	CreatedByUserID *int
}

// ReverseResponse is returned by Reverse.
type ReverseResponse struct {
	OriginalJournalEntryID int `json:"originalJournalEntryId"`
	ReversalJournalEntryID int `json:"reversalJournalEntryId"`
}

// Reverse implements the reversal command.
func (c *Commands) Reverse(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in ReverseInput) (json.RawMessage, bool, error) {
	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, []string{journalLockKey(companyID)}, c.journalTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			original, err := fetchEntry(ctx, tx, companyID, in.OriginalID)
			if err != nil {
				return nil, err
			}
			if err := assertReversible(ctx, tx, companyID, original); err != nil {
				return nil, err
			}

			date := original.Date
			if in.Date != nil {
				date = *in.Date
			}
			if err := period.AssertOpen(ctx, tx, companyID, date, "reverse journal entry"); err != nil {
				return nil, err
			}

			reversalLines := swapLines(original.Lines)
			reversal, err := c.poster.PostJournalEntry(ctx, tx, PostInput{
				CompanyID:                companyID,
				Date:                     date,
				Description:              fmt.Sprintf("Reversal of %s", original.EntryNumber),
				CreatedByUserID:          in.CreatedByUserID,
				ReversalOfJournalEntryID: &original.ID,
				ReversalReason:           in.Reason,
				Lines:                    reversalLines,
			})
			if err != nil {
				return nil, err
			}

			correlationID := uuid.NewString()
			reversalOfID := original.ID
			created, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: reversal.ID, CompanyID: companyID, ReversalOfJournalEntryID: &reversalOfID},
				correlationID, nil)
			if err != nil {
				return nil, err
			}
			reason := ""
			if in.Reason != nil {
				reason = *in.Reason
			}
			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryReversed,
				outbox.JournalEntryReversedPayload{OriginalJournalEntryID: original.ID, ReversalJournalEntryID: reversal.ID, CompanyID: companyID, Reason: reason},
				correlationID, &created.ID); err != nil {
				return nil, err
			}

			if err := c.audit.Write(ctx, tx, auditEntry(companyID, "journal.entry.reverse", reversal.ID, in.CreatedByUserID)); err != nil {
				return nil, err
			}

			return ReverseResponse{OriginalJournalEntryID: original.ID, ReversalJournalEntryID: reversal.ID}, nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

// VoidInput is the POST /journal-entries/{id}/void request body.
type VoidInput struct {
	OriginalID      int
	Reason          string
	Date            *time.Time
	CreatedByUserID *int
}

// Void implements the void command: a reversal plus void metadata on the
// original, both in the same transaction.
func (c *Commands) Void(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in VoidInput) (json.RawMessage, bool, error) {
	if in.Reason == "" {
		return nil, false, apperr.New(apperr.Validation, "reason is required to void a journal entry")
	}

	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, []string{journalLockKey(companyID)}, c.journalTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			original, err := fetchEntry(ctx, tx, companyID, in.OriginalID)
			if err != nil {
				return nil, err
			}
			if err := assertReversible(ctx, tx, companyID, original); err != nil {
				return nil, err
			}

			date := original.Date
			if in.Date != nil {
				date = *in.Date
			}
			if err := period.AssertOpen(ctx, tx, companyID, date, "void journal entry"); err != nil {
				return nil, err
			}

			reason := in.Reason
			reversal, err := c.poster.PostJournalEntry(ctx, tx, PostInput{
				CompanyID:                companyID,
				Date:                     date,
				Description:              fmt.Sprintf("Void of %s", original.EntryNumber),
				CreatedByUserID:          in.CreatedByUserID,
				ReversalOfJournalEntryID: &original.ID,
				ReversalReason:           &reason,
				Lines:                    swapLines(original.Lines),
			})
			if err != nil {
				return nil, err
			}

			now := time.Now().UTC()
			if _, err := tx.Exec(ctx, `
				UPDATE journal_entries
				SET voided_at = $1, void_reason = $2, voided_by_user_id = $3
				WHERE id = $4 AND company_id = $5
			`, now, reason, in.CreatedByUserID, original.ID, companyID); err != nil {
				return nil, apperr.Wrap(apperr.Internal, err, "failed to record void metadata")
			}

			correlationID := uuid.NewString()
			reversalOfID := original.ID
			created, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: reversal.ID, CompanyID: companyID, ReversalOfJournalEntryID: &reversalOfID},
				correlationID, nil)
			if err != nil {
				return nil, err
			}
			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryReversed,
				outbox.JournalEntryReversedPayload{OriginalJournalEntryID: original.ID, ReversalJournalEntryID: reversal.ID, CompanyID: companyID, Reason: reason},
				correlationID, &created.ID); err != nil {
				return nil, err
			}

			if err := c.audit.Write(ctx, tx, auditEntry(companyID, "journal.entry.void", original.ID, in.CreatedByUserID)); err != nil {
				return nil, err
			}

			return ReverseResponse{OriginalJournalEntryID: original.ID, ReversalJournalEntryID: reversal.ID}, nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

// AdjustInput is the POST /journal-entries/{id}/adjust request body.
type AdjustInput struct {
	OriginalID      int
	Reason          string
	Date            *time.Time
	Description     *string
	CreatedByUserID *int
	Lines           []LineDTO
}

// AdjustResponse is returned by Adjust.
type AdjustResponse struct {
	OriginalJournalEntryID  int `json:"originalJournalEntryId"`
	ReversalJournalEntryID  int `json:"reversalJournalEntryId"`
	CorrectedJournalEntryID int `json:"correctedJournalEntryId"`
}

// Adjust reverses the original and posts a corrected entry with new lines.
func (c *Commands) Adjust(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in AdjustInput) (json.RawMessage, bool, error) {
	if in.Reason == "" {
		return nil, false, apperr.New(apperr.Validation, "reason is required to adjust a journal entry")
	}
	if len(in.Lines) == 0 {
		return nil, false, apperr.New(apperr.Validation, "lines are required to adjust a journal entry")
	}

	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, []string{journalLockKey(companyID)}, c.journalTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			original, err := fetchEntry(ctx, tx, companyID, in.OriginalID)
			if err != nil {
				return nil, err
			}
			if err := assertReversible(ctx, tx, companyID, original); err != nil {
				return nil, err
			}

			date := original.Date
			if in.Date != nil {
				date = *in.Date
			}
			if err := period.AssertOpen(ctx, tx, companyID, date, "adjust journal entry"); err != nil {
				return nil, err
			}

			reason := in.Reason
			reversal, err := c.poster.PostJournalEntry(ctx, tx, PostInput{
				CompanyID:                companyID,
				Date:                     date,
				Description:              fmt.Sprintf("Reversal of %s (adjustment)", original.EntryNumber),
				CreatedByUserID:          in.CreatedByUserID,
				ReversalOfJournalEntryID: &original.ID,
				ReversalReason:           &reason,
				Lines:                    swapLines(original.Lines),
			})
			if err != nil {
				return nil, err
			}

			description := original.Description
			if in.Description != nil {
				description = *in.Description
			}
			correctedLines := make([]LineInput, len(in.Lines))
			for i, l := range in.Lines {
				correctedLines[i] = LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit}
			}
			corrected, err := c.poster.PostJournalEntry(ctx, tx, PostInput{
				CompanyID:       companyID,
				Date:            date,
				Description:     description,
				CreatedByUserID: in.CreatedByUserID,
				Lines:           correctedLines,
			})
			if err != nil {
				return nil, err
			}

			correlationID := uuid.NewString()
			reversalOfID := original.ID
			ev1, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: reversal.ID, CompanyID: companyID, ReversalOfJournalEntryID: &reversalOfID},
				correlationID, nil)
			if err != nil {
				return nil, err
			}
			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryReversed,
				outbox.JournalEntryReversedPayload{OriginalJournalEntryID: original.ID, ReversalJournalEntryID: reversal.ID, CompanyID: companyID, Reason: reason},
				correlationID, &ev1.ID); err != nil {
				return nil, err
			}
			correctedTotalDebit, correctedTotalCredit := lineTotals(corrected.Lines)
			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: corrected.ID, CompanyID: companyID, TotalDebit: correctedTotalDebit.String(), TotalCredit: correctedTotalCredit.String()},
				correlationID, &ev1.ID); err != nil {
				return nil, err
			}

			if err := c.audit.Write(ctx, tx, auditEntry(companyID, "journal.entry.adjust", original.ID, in.CreatedByUserID)); err != nil {
				return nil, err
			}

			return AdjustResponse{
				OriginalJournalEntryID:  original.ID,
				ReversalJournalEntryID:  reversal.ID,
				CorrectedJournalEntryID: corrected.ID,
			}, nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

// PeriodCloseInput is the POST /period-close request.
type PeriodCloseInput struct {
	From            time.Time
	To              time.Time
	CreatedByUserID *int
}

// PeriodCloseResponse is returned by PeriodClose.
type PeriodCloseResponse struct {
	PeriodCloseID  int    `json:"periodCloseId"`
	JournalEntryID int    `json:"journalEntryId"`
	AlreadyClosed  bool   `json:"alreadyClosed"`
	NetProfit      string `json:"netProfit"`
}

// PeriodClose zeros income/expense activity for [from,to] into Retained
// Earnings and records the closed boundary.
func (c *Commands) PeriodClose(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in PeriodCloseInput) (json.RawMessage, bool, error) {
	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, []string{journalLockKey(companyID), periodCloseLockKey(companyID)}, c.closeTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			var existingID, existingJE int
			err := tx.QueryRow(ctx, `
				SELECT id, journal_entry_id FROM period_closes
				WHERE company_id = $1 AND from_date = $2 AND to_date = $3
			`, companyID, in.From, in.To).Scan(&existingID, &existingJE)
			if err == nil {
				return PeriodCloseResponse{PeriodCloseID: existingID, JournalEntryID: existingJE, AlreadyClosed: true}, nil
			}
			if err != pgx.ErrNoRows {
				return nil, apperr.Wrap(apperr.Internal, err, "failed to check existing period close")
			}

			retainedEarningsID, err := core.FindOrCreateAccount(ctx, tx, companyID, "3100", "Retained Earnings", core.Equity, core.Credit, nil, nil)
			if err != nil {
				return nil, err
			}

			lines, netProfit, err := buildClosingLines(ctx, tx, companyID, in.From, in.To, retainedEarningsID)
			if err != nil {
				return nil, err
			}
			if netProfit.IsZero() {
				return nil, apperr.New(apperr.Validation, "no income/expense activity to close for %s to %s",
					in.From.Format("2006-01-02"), in.To.Format("2006-01-02"))
			}

			entry, err := c.poster.PostJournalEntry(ctx, tx, PostInput{
				CompanyID:       companyID,
				Date:            in.To,
				Description:     fmt.Sprintf("Period close %s to %s", in.From.Format("2006-01-02"), in.To.Format("2006-01-02")),
				CreatedByUserID: in.CreatedByUserID,
				Lines:           lines,
			})
			if err != nil {
				return nil, err
			}

			var periodCloseID int
			err = tx.QueryRow(ctx, `
				INSERT INTO period_closes (company_id, from_date, to_date, journal_entry_id, created_by_user_id, created_at)
				VALUES ($1, $2, $3, $4, $5, NOW())
				RETURNING id
			`, companyID, in.From, in.To, entry.ID, in.CreatedByUserID).Scan(&periodCloseID)
			if err != nil {
				return nil, apperr.Wrap(apperr.Internal, err, "failed to insert period close")
			}

			totalDebit, totalCredit := lineTotals(entry.Lines)
			correlationID := uuid.NewString()
			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: entry.ID, CompanyID: companyID, TotalDebit: totalDebit.String(), TotalCredit: totalCredit.String()},
				correlationID, nil); err != nil {
				return nil, err
			}

			if err := c.audit.Write(ctx, tx, auditEntry(companyID, "period.close", periodCloseID, in.CreatedByUserID)); err != nil {
				return nil, err
			}

			return PeriodCloseResponse{PeriodCloseID: periodCloseID, JournalEntryID: entry.ID, NetProfit: netProfit.String()}, nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

func lineTotals(lines []core.JournalLine) (debit, credit money.Amount) {
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

func journalLockKey(companyID int) string     { return fmt.Sprintf("lock:journal:%d", companyID) }
func periodCloseLockKey(companyID int) string { return fmt.Sprintf("lock:period-close:%d", companyID) }

func auditEntry(companyID int, action string, entityID int, userID *int) audit.Entry {
	return audit.Entry{
		CompanyID:  companyID,
		Action:     action,
		EntityType: "journal_entry",
		EntityID:   fmt.Sprintf("%d", entityID),
		UserID:     userID,
	}
}

// assertReversible also checks for a prior reversal of e under a different
// idempotency key, since the idempotency store alone can't catch that case:
// it only replays a response for the same (companyId, idempotencyKey) pair.
func assertReversible(ctx context.Context, tx pgx.Tx, companyID int, e *core.JournalEntry) error {
	if e.ReversalOfJournalEntry != nil {
		return apperr.New(apperr.InvalidState, "journal entry %s is itself a reversal and cannot be reversed", e.EntryNumber)
	}
	if e.VoidedAt != nil {
		return apperr.New(apperr.InvalidState, "journal entry %s is already voided", e.EntryNumber)
	}
	var alreadyReversed bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM journal_entries
			WHERE company_id = $1 AND reversal_of_journal_entry_id = $2 AND voided_at IS NULL
		)
	`, companyID, e.ID).Scan(&alreadyReversed)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to check for an existing reversal of journal entry %s", e.EntryNumber)
	}
	if alreadyReversed {
		return apperr.New(apperr.InvalidState, "journal entry %s has already been reversed", e.EntryNumber)
	}
	return nil
}

func swapLines(lines []core.JournalLine) []LineInput {
	out := make([]LineInput, len(lines))
	for i, l := range lines {
		out[i] = LineInput{AccountID: l.AccountID, Debit: l.Credit, Credit: l.Debit}
	}
	return out
}

func fetchEntry(ctx context.Context, tx pgx.Tx, companyID, id int) (*core.JournalEntry, error) {
	e := &core.JournalEntry{}
	err := tx.QueryRow(ctx, `
		SELECT id, company_id, entry_number, date, description, location_id, created_by_user_id, created_at,
		       reversal_of_journal_entry_id, reversal_reason, voided_at, void_reason, voided_by_user_id
		FROM journal_entries
		WHERE id = $1 AND company_id = $2
	`, id, companyID).Scan(
		&e.ID, &e.CompanyID, &e.EntryNumber, &e.Date, &e.Description, &e.LocationID, &e.CreatedByUserID, &e.CreatedAt,
		&e.ReversalOfJournalEntry, &e.ReversalReason, &e.VoidedAt, &e.VoidReason, &e.VoidedByUserID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "journal entry %d not found", id)
		}
		return nil, apperr.Wrap(apperr.Internal, err, "failed to fetch journal entry")
	}

	rows, err := tx.Query(ctx, `
		SELECT id, company_id, journal_entry_id, account_id, debit, credit
		FROM journal_lines WHERE journal_entry_id = $1
		ORDER BY id
	`, e.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to fetch journal lines")
	}
	defer rows.Close()

	for rows.Next() {
		var l core.JournalLine
		var debit, credit decimal.Decimal
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.JournalEntryID, &l.AccountID, &debit, &credit); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan journal line")
		}
		l.Debit = money.New(debit)
		l.Credit = money.New(credit)
		e.Lines = append(e.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to fetch journal lines")
	}

	return e, nil
}

// buildClosingLines aggregates INCOME/EXPENSE activity in [from,to] and
// returns the closing lines plus overall net profit (positive) or loss
// (negative), per §4.3 PeriodClose.
func buildClosingLines(ctx context.Context, tx pgx.Tx, companyID int, from, to time.Time, retainedEarningsID int) ([]LineInput, money.Amount, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.type, COALESCE(SUM(jl.debit), 0), COALESCE(SUM(jl.credit), 0)
		FROM accounts a
		JOIN journal_lines jl ON jl.account_id = a.id AND jl.company_id = a.company_id
		JOIN journal_entries je ON je.id = jl.journal_entry_id
		WHERE a.company_id = $1 AND a.type IN ('INCOME', 'EXPENSE')
		  AND je.date BETWEEN $2 AND $3
		GROUP BY a.id, a.type
	`, companyID, from, to)
	if err != nil {
		return nil, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to aggregate period activity")
	}
	defer rows.Close()

	var lines []LineInput
	netProfit := money.Zero

	for rows.Next() {
		var accountID int
		var accType string
		var debitSum, creditSum decimal.Decimal
		if err := rows.Scan(&accountID, &accType, &debitSum, &creditSum); err != nil {
			return nil, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to scan period activity")
		}
		debit := money.New(debitSum)
		credit := money.New(creditSum)

		if accType == string(core.Income) {
			net := credit.Sub(debit)
			if net.IsZero() {
				continue
			}
			netProfit = netProfit.Add(net)
			if net.IsPositive() {
				lines = append(lines, LineInput{AccountID: accountID, Debit: net, Credit: money.Zero})
			} else {
				lines = append(lines, LineInput{AccountID: accountID, Debit: money.Zero, Credit: net.Neg()})
			}
		} else {
			net := debit.Sub(credit)
			if net.IsZero() {
				continue
			}
			netProfit = netProfit.Sub(net)
			if net.IsPositive() {
				lines = append(lines, LineInput{AccountID: accountID, Debit: money.Zero, Credit: net})
			} else {
				lines = append(lines, LineInput{AccountID: accountID, Debit: net.Neg(), Credit: money.Zero})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to aggregate period activity")
	}

	if netProfit.IsPositive() {
		lines = append(lines, LineInput{AccountID: retainedEarningsID, Debit: money.Zero, Credit: netProfit})
	} else if netProfit.IsNegative() {
		lines = append(lines, LineInput{AccountID: retainedEarningsID, Debit: netProfit.Abs(), Credit: money.Zero})
	}

	return lines, netProfit, nil
}
