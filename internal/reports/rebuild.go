package reports

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/outbox"
)

// RebuildResult summarizes a RebuildProjections call.
type RebuildResult struct {
	AccountBalanceRows int `json:"accountBalanceRows"`
	DailySummaryRows   int `json:"dailySummaryRows"`
	ProcessedEvents    int `json:"processedEvents"`
}

// RebuildProjections implements §4.11: delete then recompute AccountBalance
// and DailySummary for [from,to] from JournalLine/JournalEntry, within one
// transaction, and preemptively insert ProcessedEvent rows for every
// journal.entry.created event whose underlying entry date falls in the
// range — so a streaming consumer that later catches up on the same event
// does not double-apply it. Uses the same select-then-insert-then-commit
// shape LedgerCommands.Reverse uses for its own tx, generalized to a bulk
// range rebuild.
func (r *Reports) RebuildProjections(ctx context.Context, companyID int, from, to string) (RebuildResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to begin rebuild transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM account_balances WHERE company_id = $1 AND date >= $2::date AND date <= $3::date
	`, companyID, from, to); err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to delete account balances")
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM daily_summaries WHERE company_id = $1 AND date >= $2::date AND date <= $3::date
	`, companyID, from, to); err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to delete daily summaries")
	}

	abTag, err := tx.Exec(ctx, `
		INSERT INTO account_balances (company_id, account_id, date, debit_total, credit_total)
		SELECT jl.company_id, jl.account_id, je.date, SUM(jl.debit), SUM(jl.credit)
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.journal_entry_id
		WHERE jl.company_id = $1 AND je.date >= $2::date AND je.date <= $3::date
		GROUP BY jl.company_id, jl.account_id, je.date
	`, companyID, from, to)
	if err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to recompute account balances")
	}

	dsTag, err := tx.Exec(ctx, `
		INSERT INTO daily_summaries (company_id, date, income, expense)
		SELECT jl.company_id, je.date,
		       SUM(CASE WHEN a.type = 'INCOME' THEN jl.credit - jl.debit ELSE 0 END),
		       SUM(CASE WHEN a.type = 'EXPENSE' THEN jl.debit - jl.credit ELSE 0 END)
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.journal_entry_id
		JOIN accounts a ON a.id = jl.account_id AND a.company_id = jl.company_id
		WHERE jl.company_id = $1 AND je.date >= $2::date AND je.date <= $3::date AND a.type IN ('INCOME', 'EXPENSE')
		GROUP BY jl.company_id, je.date
	`, companyID, from, to)
	if err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to recompute daily summaries")
	}

	peTag, err := tx.Exec(ctx, `
		INSERT INTO processed_events (event_id, company_id)
		SELECT e.id, e.company_id
		FROM events e
		JOIN journal_entries je ON (e.payload->>'journalEntryId')::int = je.id AND je.company_id = e.company_id
		WHERE e.company_id = $1 AND e.type = $4 AND je.date >= $2::date AND je.date <= $3::date
		ON CONFLICT DO NOTHING
	`, companyID, from, to, string(outbox.JournalEntryCreated))
	if err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to insert processed events")
	}

	if err := tx.Commit(ctx); err != nil {
		return RebuildResult{}, apperr.Wrap(apperr.Internal, err, "failed to commit rebuild transaction")
	}

	return RebuildResult{
		AccountBalanceRows: int(abTag.RowsAffected()),
		DailySummaryRows:   int(dsTag.RowsAffected()),
		ProcessedEvents:    int(peTag.RowsAffected()),
	}, nil
}
