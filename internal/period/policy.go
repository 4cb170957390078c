// Package period implements the period-close guard (§4.9): once a tenant
// has closed through a given date, no command may write a transaction dated
// on or before that date. Day-precision is UTC, matching how every other
// date in this system (journal entry dates, stock move dates) is already
// compared — an explicit decision recorded in DESIGN.md for the open
// question of what timezone governs the period boundary.
package period

import (
	"context"
	"time"

	"ledgercore/internal/apperr"

	"github.com/jackc/pgx/v5"
)

// AssertOpen fails with apperr.PeriodClosed if companyID has a PeriodClose
// whose ToDate is on or after transactionDate. action is included in the
// error message for operator-facing clarity (e.g. "post journal entry").
func AssertOpen(ctx context.Context, tx pgx.Tx, companyID int, transactionDate time.Time, action string) error {
	day := transactionDate.UTC().Truncate(24 * time.Hour)

	var closedThrough time.Time
	err := tx.QueryRow(ctx, `
		SELECT to_date FROM period_closes
		WHERE company_id = $1
		ORDER BY to_date DESC
		LIMIT 1
	`, companyID).Scan(&closedThrough)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil
		}
		return apperr.Wrap(apperr.Internal, err, "failed to check period close status")
	}

	if !day.After(closedThrough.UTC().Truncate(24 * time.Hour)) {
		return apperr.New(apperr.PeriodClosed,
			"cannot %s dated %s: period is closed through %s",
			action, day.Format("2006-01-02"), closedThrough.Format("2006-01-02")).
			WithFields(map[string]any{
				"closedThrough": closedThrough.Format("2006-01-02"),
				"attempted":     day.Format("2006-01-02"),
			})
	}
	return nil
}
