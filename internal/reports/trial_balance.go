// Package reports implements the read-only query surface of §4.10: Trial
// Balance, Balance Sheet, Profit & Loss, Cashflow (indirect), inventory
// valuation/movement, COGS, and account transactions, plus the Projections
// Rebuild admin operation (§4.11). Every query here reads from the
// AccountBalance/DailySummary projections or directly from the immutable
// ledger/stock tables — none of them mutate state, generalizing the
// teacher's reportingService (internal/core/reporting_service.go) from a
// single company-code-scoped service into the tenant-scoped, projection-
// backed reports this module needs.
package reports

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Reports is the read-only reporting service.
type Reports struct {
	pool *pgxpool.Pool
}

// New constructs a Reports backed by pool.
func New(pool *pgxpool.Pool) *Reports {
	return &Reports{pool: pool}
}

// TrialBalanceLine is one account's row in a Trial Balance.
type TrialBalanceLine struct {
	Code          string            `json:"code"`
	Name          string            `json:"name"`
	Type          core.AccountType  `json:"type"`
	NormalBalance core.NormalBalance `json:"normalBalance"`
	ReportGroup   *core.ReportGroup `json:"reportGroup,omitempty"`
	Debit         money.Amount      `json:"debit"`
	Credit        money.Amount      `json:"credit"`
}

// TrialBalance is the §4.10 Trial Balance report over [from,to] inclusive.
type TrialBalance struct {
	From        string             `json:"from"`
	To          string             `json:"to"`
	Lines       []TrialBalanceLine `json:"lines"`
	TotalDebit  money.Amount       `json:"totalDebit"`
	TotalCredit money.Amount       `json:"totalCredit"`
	Balanced    bool               `json:"balanced"`
}

// GetTrialBalance groups AccountBalance rows by account over [from,to].
func (r *Reports) GetTrialBalance(ctx context.Context, companyID int, from, to string) (*TrialBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.code, a.name, a.type, a.normal_balance, a.report_group,
		       COALESCE(SUM(ab.debit_total), 0), COALESCE(SUM(ab.credit_total), 0)
		FROM accounts a
		LEFT JOIN account_balances ab
		  ON ab.company_id = a.company_id AND ab.account_id = a.id
		 AND ab.date >= $2::date AND ab.date <= $3::date
		WHERE a.company_id = $1
		GROUP BY a.id, a.code, a.name, a.type, a.normal_balance, a.report_group
		HAVING COALESCE(SUM(ab.debit_total), 0) <> 0 OR COALESCE(SUM(ab.credit_total), 0) <> 0
		ORDER BY a.code
	`, companyID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to query trial balance")
	}
	defer rows.Close()

	tb := &TrialBalance{From: from, To: to}
	for rows.Next() {
		var l TrialBalanceLine
		var debit, credit decimal.Decimal
		var typ, normal string
		var reportGroup *string
		if err := rows.Scan(&l.Code, &l.Name, &typ, &normal, &reportGroup, &debit, &credit); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan trial balance row")
		}
		l.Type = core.AccountType(typ)
		l.NormalBalance = core.NormalBalance(normal)
		if reportGroup != nil {
			rg := core.ReportGroup(*reportGroup)
			l.ReportGroup = &rg
		}
		l.Debit = money.New(debit)
		l.Credit = money.New(credit)
		tb.TotalDebit = tb.TotalDebit.Add(l.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(l.Credit)
		tb.Lines = append(tb.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "trial balance row iteration failed")
	}

	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}
