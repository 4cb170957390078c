package ledger

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Reader implements the read side of the GET /journal-entries surface
// (§6). It is pool-backed rather than tx-backed since list/detail reads run
// outside any write envelope.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader constructs a Reader backed by pool.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// EntryDetail is the GET /journal-entries/{id} response: the common summary
// shape plus every line.
type EntryDetail struct {
	EntryResponse
	Lines []LineDetail `json:"lines"`
}

// LineDetail is one journal line in a detail response.
type LineDetail struct {
	AccountID int    `json:"accountId"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

// Get fetches one journal entry with its lines.
func (r *Reader) Get(ctx context.Context, companyID, id int) (*EntryDetail, error) {
	e, err := r.fetch(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	detail := &EntryDetail{EntryResponse: toResponse(e)}
	for _, l := range e.Lines {
		detail.Lines = append(detail.Lines, LineDetail{AccountID: l.AccountID, Debit: l.Debit.String(), Credit: l.Credit.String()})
	}
	return detail, nil
}

// List returns up to take entries in [from,to] ordered by (date, id) desc,
// per §6's "capped at 200, default 50".
func (r *Reader) List(ctx context.Context, companyID int, from, to string, take int) ([]EntryResponse, error) {
	if take <= 0 {
		take = 50
	}
	if take > 200 {
		take = 200
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id FROM journal_entries
		WHERE company_id = $1 AND date >= $2::date AND date <= $3::date
		ORDER BY date DESC, id DESC
		LIMIT $4
	`, companyID, from, to, take)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to list journal entries")
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan journal entry id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "journal entry list iteration failed")
	}

	out := make([]EntryResponse, 0, len(ids))
	for _, id := range ids {
		e, err := r.fetch(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, toResponse(e))
	}
	return out, nil
}

// fetch is Reader's pool-backed equivalent of commands.go's tx-backed
// fetchEntry.
func (r *Reader) fetch(ctx context.Context, companyID, id int) (*core.JournalEntry, error) {
	e := &core.JournalEntry{}
	err := r.pool.QueryRow(ctx, `
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

	rows, err := r.pool.Query(ctx, `
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
