package inventory

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"

	"github.com/jackc/pgx/v5"
)

// companyDefaults is the resolved set of IDs ensureInventoryCompanyDefaults
// writes back onto the Company row.
type companyDefaults struct {
	LocationID             int
	InventoryAccountID     int
	COGSAccountID          int
	OpeningBalanceEquityID int
}

// ensureInventoryCompanyDefaults implements §4.4.3: find-or-create the
// default location and the three standard accounts a tenant's inventory
// subsystem needs, then persist the resolved IDs onto the Company row so
// later calls skip the lookup.
func ensureInventoryCompanyDefaults(ctx context.Context, tx pgx.Tx, companyID int) (companyDefaults, error) {
	locationID, err := findOrCreateDefaultLocation(ctx, tx, companyID)
	if err != nil {
		return companyDefaults{}, err
	}
	inventoryID, err := core.FindOrCreateAccount(ctx, tx, companyID, "1300", "Inventory", core.Asset, core.Debit,
		ptr(core.ReportGroupInventory), ptr(core.Operating))
	if err != nil {
		return companyDefaults{}, err
	}
	cogsID, err := core.FindOrCreateAccount(ctx, tx, companyID, "5001", "Cost of Goods Sold", core.Expense, core.Debit,
		ptr(core.ReportGroupCOGS), ptr(core.Operating))
	if err != nil {
		return companyDefaults{}, err
	}
	openingEquityID, err := core.FindOrCreateAccount(ctx, tx, companyID, "3050", "Opening Balance Equity", core.Equity, core.Credit,
		ptr(core.ReportGroupEquity), ptr(core.Financing))
	if err != nil {
		return companyDefaults{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE companies
		SET default_location_id = $1, inventory_account_id = $2, cogs_account_id = $3, opening_balance_equity_id = $4
		WHERE id = $5
	`, locationID, inventoryID, cogsID, openingEquityID, companyID); err != nil {
		return companyDefaults{}, apperr.Wrap(apperr.Internal, err, "failed to persist inventory defaults")
	}

	return companyDefaults{
		LocationID:             locationID,
		InventoryAccountID:     inventoryID,
		COGSAccountID:          cogsID,
		OpeningBalanceEquityID: openingEquityID,
	}, nil
}

func findOrCreateDefaultLocation(ctx context.Context, tx pgx.Tx, companyID int) (int, error) {
	var id int
	err := tx.QueryRow(ctx, `
		SELECT id FROM locations WHERE company_id = $1 AND is_default = true
	`, companyID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, apperr.Wrap(apperr.Internal, err, "failed to look up default location")
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO locations (company_id, name, is_default) VALUES ($1, 'Main Location', true)
		RETURNING id
	`, companyID).Scan(&id)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "failed to create default location")
	}
	return id, nil
}

func ptr[T any](v T) *T { return &v }
