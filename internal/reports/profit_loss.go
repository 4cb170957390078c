package reports

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

// ProfitAndLossLine is one account's net movement for the period.
type ProfitAndLossLine struct {
	Code   string       `json:"code"`
	Name   string       `json:"name"`
	Amount money.Amount `json:"amount"`
}

// ProfitAndLoss is the §4.10 Profit & Loss report over [from,to].
type ProfitAndLoss struct {
	From         string              `json:"from"`
	To           string              `json:"to"`
	Income       []ProfitAndLossLine `json:"income"`
	Expenses     []ProfitAndLossLine `json:"expenses"`
	TotalIncome  money.Amount        `json:"totalIncome"`
	TotalExpense money.Amount        `json:"totalExpense"`
	NetProfit    money.Amount        `json:"netProfit"`
}

// GetProfitAndLoss aggregates AccountBalance rows over [from,to]: INCOME
// amount is credit-debit, EXPENSE amount is debit-credit.
func (r *Reports) GetProfitAndLoss(ctx context.Context, companyID int, from, to string) (*ProfitAndLoss, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.code, a.name, a.type,
		       COALESCE(SUM(ab.debit_total), 0), COALESCE(SUM(ab.credit_total), 0)
		FROM accounts a
		LEFT JOIN account_balances ab
		  ON ab.company_id = a.company_id AND ab.account_id = a.id
		 AND ab.date >= $2::date AND ab.date <= $3::date
		WHERE a.company_id = $1 AND a.type IN ('INCOME', 'EXPENSE')
		GROUP BY a.id, a.code, a.name, a.type
		HAVING COALESCE(SUM(ab.debit_total), 0) <> 0 OR COALESCE(SUM(ab.credit_total), 0) <> 0
		ORDER BY a.type, a.code
	`, companyID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to query profit and loss")
	}
	defer rows.Close()

	pl := &ProfitAndLoss{From: from, To: to}
	for rows.Next() {
		var code, name, typ string
		var debit, credit decimal.Decimal
		if err := rows.Scan(&code, &name, &typ, &debit, &credit); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan profit and loss row")
		}

		switch core.AccountType(typ) {
		case core.Income:
			amt := money.New(credit).Sub(money.New(debit))
			pl.Income = append(pl.Income, ProfitAndLossLine{Code: code, Name: name, Amount: amt})
			pl.TotalIncome = pl.TotalIncome.Add(amt)
		case core.Expense:
			amt := money.New(debit).Sub(money.New(credit))
			pl.Expenses = append(pl.Expenses, ProfitAndLossLine{Code: code, Name: name, Amount: amt})
			pl.TotalExpense = pl.TotalExpense.Add(amt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "profit and loss row iteration failed")
	}

	pl.NetProfit = pl.TotalIncome.Sub(pl.TotalExpense)
	return pl, nil
}
