package reports

import (
	"context"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

// AccountTransactionLine is one JournalEntry's effect on an account, with a
// running balance, in the same shape an account statement line takes
// across the tenant-scoped ledger here.
type AccountTransactionLine struct {
	JournalEntryID int          `json:"journalEntryId"`
	EntryNumber    string       `json:"entryNumber"`
	Date           time.Time    `json:"date"`
	Description    string       `json:"description"`
	SourceLabel    string       `json:"sourceLabel,omitempty"`
	Debit          money.Amount `json:"debit"`
	Credit         money.Amount `json:"credit"`
	RunningBalance money.Amount `json:"runningBalance"`
}

// AccountTransactions is the §4.10 Account Transactions (accountId, from..to)
// report.
type AccountTransactions struct {
	AccountID      int                      `json:"accountId"`
	From           string                   `json:"from"`
	To             string                   `json:"to"`
	OpeningBalance money.Amount             `json:"openingBalance"`
	Lines          []AccountTransactionLine `json:"lines"`
}

// GetAccountTransactions computes the opening balance from JournalLine
// aggregates strictly before from, then lists every JournalEntry touching
// accountId within [from,to] with a running balance. The source-document
// label is best-effort: it is the reference_type/reference_id pair of the
// stock move that originated the entry (see sourceLabel). This module has no
// invoice/credit-note/payment/expense/bill tables of its own (those are
// out-of-scope CRUD surfaces) and joins none, so an entry with no such stock
// move gets an empty label rather than failing the report.
func (r *Reports) GetAccountTransactions(ctx context.Context, companyID, accountID int, from, to string) (*AccountTransactions, error) {
	var openingDebit, openingCredit decimal.Decimal
	if err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(jl.debit), 0), COALESCE(SUM(jl.credit), 0)
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.journal_entry_id
		WHERE jl.company_id = $1 AND jl.account_id = $2 AND je.date < $3::date
	`, companyID, accountID, from).Scan(&openingDebit, &openingCredit); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to compute opening balance")
	}

	at := &AccountTransactions{
		AccountID:      accountID,
		From:           from,
		To:             to,
		OpeningBalance: money.New(openingDebit).Sub(money.New(openingCredit)),
	}

	rows, err := r.pool.Query(ctx, `
		SELECT je.id, je.entry_number, je.date, je.description, jl.debit, jl.credit
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.journal_entry_id
		WHERE jl.company_id = $1 AND jl.account_id = $2 AND je.date >= $3::date AND je.date <= $4::date
		ORDER BY je.date ASC, je.id ASC
	`, companyID, accountID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to query account transactions")
	}
	defer rows.Close()

	running := at.OpeningBalance
	for rows.Next() {
		var l AccountTransactionLine
		var debit, credit decimal.Decimal
		if err := rows.Scan(&l.JournalEntryID, &l.EntryNumber, &l.Date, &l.Description, &debit, &credit); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan account transaction row")
		}
		l.Debit = money.New(debit)
		l.Credit = money.New(credit)
		running = running.Add(l.Debit).Sub(l.Credit)
		l.RunningBalance = running
		l.SourceLabel = r.sourceLabel(ctx, companyID, l.JournalEntryID)
		at.Lines = append(at.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "account transactions row iteration failed")
	}
	return at, nil
}

// sourceLabel best-effort resolves a human-readable label for the
// reference_type/reference_id pair on a journal entry's originating stock
// move, if any. No label is ever required: a miss just leaves the line
// unlabeled.
func (r *Reports) sourceLabel(ctx context.Context, companyID, journalEntryID int) string {
	var refType, refID *string
	err := r.pool.QueryRow(ctx, `
		SELECT reference_type, reference_id FROM stock_moves
		WHERE company_id = $1 AND journal_entry_id = $2
		LIMIT 1
	`, companyID, journalEntryID).Scan(&refType, &refID)
	if err != nil || refType == nil || refID == nil {
		return ""
	}
	return *refType + " " + *refID
}
