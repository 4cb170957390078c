package reports

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

// BalanceSheetLine is one account's signed balance on a Balance Sheet.
type BalanceSheetLine struct {
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Balance money.Amount `json:"balance"`
}

// BalanceSheet is the §4.10 Balance Sheet as-of asOf, including the
// synthetic Current Period Earnings line that keeps Assets = Liabilities +
// Equity true before a formal PeriodClose has swept INCOME/EXPENSE.
type BalanceSheet struct {
	AsOf             string             `json:"asOf"`
	Assets           []BalanceSheetLine `json:"assets"`
	Liabilities      []BalanceSheetLine `json:"liabilities"`
	Equity           []BalanceSheetLine `json:"equity"`
	TotalAssets      money.Amount       `json:"totalAssets"`
	TotalLiabilities money.Amount       `json:"totalLiabilities"`
	TotalEquity      money.Amount       `json:"totalEquity"`
	Balanced         bool               `json:"balanced"`
}

// GetBalanceSheet computes the cumulative AccountBalance <= asOf per
// ASSET/LIABILITY/EQUITY account and appends the current-period-earnings
// synthetic equity line (code 9999) from cumulative INCOME/EXPENSE activity.
func (r *Reports) GetBalanceSheet(ctx context.Context, companyID int, asOf string) (*BalanceSheet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.code, a.name, a.type, a.normal_balance,
		       COALESCE(SUM(ab.debit_total), 0) - COALESCE(SUM(ab.credit_total), 0)
		FROM accounts a
		LEFT JOIN account_balances ab
		  ON ab.company_id = a.company_id AND ab.account_id = a.id AND ab.date <= $2::date
		WHERE a.company_id = $1 AND a.type IN ('ASSET', 'LIABILITY', 'EQUITY')
		GROUP BY a.id, a.code, a.name, a.type, a.normal_balance
		ORDER BY a.type, a.code
	`, companyID, asOf)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to query balance sheet")
	}
	defer rows.Close()

	bs := &BalanceSheet{AsOf: asOf}
	for rows.Next() {
		var code, name, typ, normal string
		var net decimal.Decimal
		if err := rows.Scan(&code, &name, &typ, &normal, &net); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan balance sheet row")
		}

		bal := money.New(net)
		if core.NormalBalance(normal) == core.Credit {
			bal = bal.Neg()
		}
		line := BalanceSheetLine{Code: code, Name: name, Balance: bal}

		switch core.AccountType(typ) {
		case core.Asset:
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(bal)
		case core.Liability:
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(bal)
		case core.Equity:
			bs.Equity = append(bs.Equity, line)
			bs.TotalEquity = bs.TotalEquity.Add(bal)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "balance sheet row iteration failed")
	}

	var incomeExpenseNet decimal.Decimal
	if err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN a.type = 'INCOME' THEN ab.credit_total - ab.debit_total
			     WHEN a.type = 'EXPENSE' THEN -(ab.debit_total - ab.credit_total)
			     ELSE 0 END
		), 0)
		FROM account_balances ab
		JOIN accounts a ON a.id = ab.account_id AND a.company_id = ab.company_id
		WHERE ab.company_id = $1 AND a.type IN ('INCOME', 'EXPENSE') AND ab.date <= $2::date
	`, companyID, asOf).Scan(&incomeExpenseNet); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to compute current period earnings")
	}

	earnings := money.New(incomeExpenseNet)
	if !earnings.IsZero() {
		bs.Equity = append(bs.Equity, BalanceSheetLine{Code: "9999", Name: "Current Period Earnings", Balance: earnings})
		bs.TotalEquity = bs.TotalEquity.Add(earnings)
	}

	bs.Balanced = bs.TotalAssets.Equal(bs.TotalLiabilities.Add(bs.TotalEquity))
	return bs, nil
}
