// Package ledger implements the double-entry core (§4.2-§4.3): posting
// balanced journal entries under a gapless numbering scheme, and the
// correction commands (Reverse, Void, Adjust) that amend a posted entry
// without ever mutating it.
package ledger

import (
	"context"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/jackc/pgx/v5"
)

// LineInput is one requested debit or credit leg.
type LineInput struct {
	AccountID int
	Debit     money.Amount
	Credit    money.Amount
}

// PostInput is everything needed to post one balanced journal entry.
type PostInput struct {
	CompanyID                int
	Date                     time.Time
	Description              string
	LocationID               *int
	CreatedByUserID          *int
	ReversalOfJournalEntryID *int
	ReversalReason           *string
	Lines                    []LineInput

	// SkipAccountValidation bypasses the per-line account tenant/active
	// check. Used only by callers (inventory postings) that have already
	// resolved and validated their account IDs via ensureInventoryCompanyDefaults.
	SkipAccountValidation bool
}

// Poster posts balanced journal entries to the ledger.
type Poster struct{}

// NewPoster constructs a Poster.
func NewPoster() *Poster { return &Poster{} }

// PostJournalEntry validates in, allocates a gapless entry number, and
// inserts the JournalEntry and its JournalLines within tx. It never opens
// its own transaction — callers (LedgerCommands, InventoryCommands) are
// responsible for transaction and period-close boundaries.
func (p *Poster) PostJournalEntry(ctx context.Context, tx pgx.Tx, in PostInput) (*core.JournalEntry, error) {
	if len(in.Lines) == 0 {
		return nil, apperr.New(apperr.Validation, "journal entry must have at least one line")
	}

	if !in.SkipAccountValidation {
		if err := p.validateAccounts(ctx, tx, in.CompanyID, in.Lines); err != nil {
			return nil, err
		}
	}

	var totalDebit, totalCredit money.Amount
	for _, l := range in.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, apperr.New(apperr.Validation, "journal line amounts must not be negative")
		}
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}
	if !totalDebit.Equal(totalCredit) {
		return nil, apperr.New(apperr.Unbalanced,
			"journal entry does not balance: debits %s, credits %s", totalDebit, totalCredit)
	}

	entryNumber, err := allocateEntryNumber(ctx, tx, in.CompanyID, in.Date)
	if err != nil {
		return nil, err
	}

	entry := &core.JournalEntry{
		CompanyID:              in.CompanyID,
		EntryNumber:            entryNumber,
		Date:                   in.Date,
		Description:            in.Description,
		LocationID:             in.LocationID,
		CreatedByUserID:        in.CreatedByUserID,
		CreatedAt:              time.Now().UTC(),
		ReversalOfJournalEntry: in.ReversalOfJournalEntryID,
		ReversalReason:         in.ReversalReason,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO journal_entries
			(company_id, entry_number, date, description, location_id, created_by_user_id, created_at,
			 reversal_of_journal_entry_id, reversal_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, entry.CompanyID, entry.EntryNumber, entry.Date, entry.Description, entry.LocationID,
		entry.CreatedByUserID, entry.CreatedAt, entry.ReversalOfJournalEntry, entry.ReversalReason,
	).Scan(&entry.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to insert journal entry")
	}

	entry.Lines = make([]core.JournalLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		line := core.JournalLine{
			CompanyID:      in.CompanyID,
			JournalEntryID: entry.ID,
			AccountID:      l.AccountID,
			Debit:          l.Debit,
			Credit:         l.Credit,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO journal_lines (company_id, journal_entry_id, account_id, debit, credit)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, line.CompanyID, line.JournalEntryID, line.AccountID, line.Debit.Decimal(), line.Credit.Decimal(),
		).Scan(&line.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to insert journal line")
		}
		entry.Lines = append(entry.Lines, line)
	}

	return entry, nil
}

func (p *Poster) validateAccounts(ctx context.Context, tx pgx.Tx, companyID int, lines []LineInput) error {
	ids := make([]int, 0, len(lines))
	seen := make(map[int]bool)
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT id FROM accounts WHERE company_id = $1 AND id = ANY($2) AND is_active = true
	`, companyID, ids)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to validate accounts")
	}
	defer rows.Close()

	found := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return apperr.Wrap(apperr.Internal, err, "failed to scan account id")
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to validate accounts")
	}

	for _, id := range ids {
		if !found[id] {
			return apperr.New(apperr.Validation, "account %d is not an active account of this company", id)
		}
	}
	return nil
}
