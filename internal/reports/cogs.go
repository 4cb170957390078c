package reports

import (
	"context"

	"ledgercore/internal/apperr"
	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

// CogsLine is one item's cost-of-goods-sold total over a range.
type CogsLine struct {
	ItemID   int          `json:"itemId"`
	Quantity string       `json:"quantity"`
	Cogs     money.Amount `json:"cogs"`
}

// CogsReport is the §4.10 COGS by item (from..to) report.
type CogsReport struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Lines []CogsLine `json:"lines"`
}

// GetCogsByItem groups SALE_ISSUE/OUT stock moves over [from,to] by item.
func (r *Reports) GetCogsByItem(ctx context.Context, companyID int, from, to string) (*CogsReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, SUM(quantity), SUM(total_cost_applied)
		FROM stock_moves
		WHERE company_id = $1 AND type = 'SALE_ISSUE' AND direction = 'OUT'
		  AND date >= $2::date AND date <= $3::date
		GROUP BY item_id
		ORDER BY item_id
	`, companyID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to query cogs report")
	}
	defer rows.Close()

	report := &CogsReport{From: from, To: to}
	for rows.Next() {
		var itemID int
		var qty, cogs decimal.Decimal
		if err := rows.Scan(&itemID, &qty, &cogs); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan cogs row")
		}
		report.Lines = append(report.Lines, CogsLine{ItemID: itemID, Quantity: qty.String(), Cogs: money.New(cogs)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "cogs row iteration failed")
	}
	return report, nil
}
