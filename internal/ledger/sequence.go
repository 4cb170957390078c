package ledger

import (
	"context"
	"fmt"
	"time"

	"ledgercore/internal/apperr"

	"github.com/jackc/pgx/v5"
)

// allocateEntryNumber returns the next gapless "JE-YYYY-NNNN" number for
// companyID's fiscal year containing date, backed by an atomic upsert on
// document_sequences — an INSERT ... ON CONFLICT DO UPDATE ... RETURNING
// counter bump — executed inside the caller's transaction so the allocation
// is as atomic as the journal entry it numbers.
func allocateEntryNumber(ctx context.Context, tx pgx.Tx, companyID int, date time.Time) (string, error) {
	year := date.UTC().Year()
	key := fmt.Sprintf("JOURNAL_ENTRY:%d", year)

	var allocated int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, key, next_number)
		VALUES ($1, $2, 2)
		ON CONFLICT (company_id, key)
		DO UPDATE SET next_number = document_sequences.next_number + 1
		RETURNING next_number - 1
	`, companyID, key).Scan(&allocated)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "failed to allocate journal entry number")
	}

	return fmt.Sprintf("JE-%04d-%04d", year, allocated), nil
}
