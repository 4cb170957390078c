package core

import (
	"context"

	"ledgercore/internal/apperr"

	"github.com/jackc/pgx/v5"
)

// FindOrCreateAccount looks up an account by (companyId, code), creating it
// with the given classification if it does not exist yet. Both the ledger
// package's retained-earnings account and the inventory package's
// inventory/COGS/opening-balance-equity accounts are provisioned this way,
// since neither wants to require the chart of accounts to be pre-seeded.
func FindOrCreateAccount(ctx context.Context, tx pgx.Tx, companyID int, code, name string, typ AccountType, normal NormalBalance, reportGroup *ReportGroup, activity *CashflowActivity) (int, error) {
	var id int
	err := tx.QueryRow(ctx, `
		SELECT id FROM accounts WHERE company_id = $1 AND code = $2
	`, companyID, code).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, apperr.Wrap(apperr.Internal, err, "failed to look up account %s", code)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (company_id, code, name, type, normal_balance, report_group, cashflow_activity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING id
	`, companyID, code, name, string(typ), string(normal), reportGroup, activity).Scan(&id)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "failed to create account %s", code)
	}
	return id, nil
}
