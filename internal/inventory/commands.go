package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/audit"
	"ledgercore/internal/core"
	"ledgercore/internal/idempotency"
	"ledgercore/internal/ledger"
	"ledgercore/internal/lock"
	"ledgercore/internal/money"
	"ledgercore/internal/outbox"
	"ledgercore/internal/period"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Commands implements the inventory write surface of §4.5: OpeningBalance
// and Adjustment, each coupling one or more WAC stock moves to a balancing
// general-ledger entry inside a single idempotent, locked transaction.
type Commands struct {
	engine   *Engine
	poster   *ledger.Poster
	outbox   *outbox.Writer
	audit    *audit.Writer
	idem     *idempotency.Store
	locks    *lock.Manager
	stockTTL time.Duration
}

// NewCommands wires the envelope dependencies.
func NewCommands(idem *idempotency.Store, locks *lock.Manager, stockTTL time.Duration) *Commands {
	return &Commands{
		engine:   NewEngine(),
		poster:   ledger.NewPoster(),
		outbox:   outbox.NewWriter(),
		audit:    audit.NewWriter(),
		idem:     idem,
		locks:    locks,
		stockTTL: stockTTL,
	}
}

// stockLockKey matches §4.5's concurrency policy: per-item locks keyed
// lock:stock:<companyId>:<locationId>:<itemId>, plus a :default alias held
// alongside while defaults are bootstrapping.
func stockLockKey(companyID, locationID, itemID int) string {
	return fmt.Sprintf("lock:stock:%d:%d:%d", companyID, locationID, itemID)
}

func defaultsLockKey(companyID int) string {
	return fmt.Sprintf("lock:stock:%d:default", companyID)
}

// OpeningLineDTO is one requested opening-balance line.
type OpeningLineDTO struct {
	ItemID    int
	Quantity  core.Qty
	UnitCost  money.Amount
}

// OpeningBalanceInput is the POST /inventory/opening-balance request body.
type OpeningBalanceInput struct {
	Date            *time.Time
	LocationID      *int
	CreatedByUserID *int
	Lines           []OpeningLineDTO
}

// OpeningBalanceResponse is returned by OpeningBalance.
type OpeningBalanceResponse struct {
	JournalEntryID int    `json:"journalEntryId"`
	TotalValue     string `json:"totalValue"`
	MoveCount      int    `json:"moveCount"`
}

// OpeningBalance implements §4.5's OpeningBalance command.
func (c *Commands) OpeningBalance(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in OpeningBalanceInput) (json.RawMessage, bool, error) {
	if len(in.Lines) == 0 {
		return nil, false, apperr.New(apperr.Validation, "at least one line is required")
	}

	keys := make([]string, 0, len(in.Lines)+1)
	locationHint := 0
	if in.LocationID != nil {
		locationHint = *in.LocationID
	}
	keys = append(keys, defaultsLockKey(companyID))
	for _, l := range in.Lines {
		keys = append(keys, stockLockKey(companyID, locationHint, l.ItemID))
	}

	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, keys, c.stockTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			defaults, err := ensureInventoryCompanyDefaults(ctx, tx, companyID)
			if err != nil {
				return nil, err
			}

			date := time.Now().UTC()
			if in.Date != nil {
				date = *in.Date
			}
			if err := period.AssertOpen(ctx, tx, companyID, date, "post opening balance"); err != nil {
				return nil, err
			}

			locationID := defaults.LocationID
			if in.LocationID != nil {
				locationID = *in.LocationID
			}

			correlationID := uuid.NewString()
			total := money.Zero
			anyReplayed := false
			earliestDate := date

			for _, l := range in.Lines {
				if l.Quantity.Sign() <= 0 {
					return nil, apperr.New(apperr.Validation, "quantity must be positive for item %d", l.ItemID)
				}
				if !l.UnitCost.IsPositive() {
					return nil, apperr.New(apperr.Validation, "unitCost must be positive for item %d", l.ItemID)
				}
				if err := assertGoodsTracked(ctx, tx, companyID, l.ItemID); err != nil {
					return nil, err
				}

				unitCost := l.UnitCost
				res, err := c.engine.ApplyStockMoveWac(ctx, tx, MoveInput{
					CompanyID:       companyID,
					LocationID:      locationID,
					ItemID:          l.ItemID,
					Date:            date,
					Type:            core.MoveOpening,
					Direction:       core.In,
					Quantity:        l.Quantity,
					UnitCostApplied: &unitCost,
					AllowBackdated:  true,
					CorrelationID:   &correlationID,
				})
				if err != nil {
					return nil, err
				}
				total = total.Add(res.Move.TotalCostApplied)
				if res.Replayed {
					anyReplayed = true
					if date.Before(earliestDate) {
						earliestDate = date
					}
				}
			}

			if total.IsZero() {
				return nil, apperr.New(apperr.Validation, "opening balance total value must be non-zero")
			}

			entry, err := c.poster.PostJournalEntry(ctx, tx, ledger.PostInput{
				CompanyID:             companyID,
				Date:                  date,
				Description:           "Inventory opening balance",
				LocationID:            &locationID,
				CreatedByUserID:       in.CreatedByUserID,
				SkipAccountValidation: true,
				Lines: []ledger.LineInput{
					{AccountID: defaults.InventoryAccountID, Debit: total, Credit: money.Zero},
					{AccountID: defaults.OpeningBalanceEquityID, Debit: money.Zero, Credit: total},
				},
			})
			if err != nil {
				return nil, err
			}

			if _, err := tx.Exec(ctx, `
				UPDATE stock_moves SET journal_entry_id = $1 WHERE company_id = $2 AND correlation_id = $3
			`, entry.ID, companyID, correlationID); err != nil {
				return nil, apperr.Wrap(apperr.Internal, err, "failed to backfill journal entry id on stock moves")
			}

			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: entry.ID, CompanyID: companyID, TotalDebit: total.String(), TotalCredit: total.String()},
				correlationID, nil); err != nil {
				return nil, err
			}
			if anyReplayed {
				if err := emitRecalc(ctx, tx, c.outbox, companyID, correlationID, earliestDate, "opening_balance", &entry.ID); err != nil {
					return nil, err
				}
			}

			if err := c.audit.Write(ctx, tx, audit.Entry{
				CompanyID: companyID, Action: "inventory.opening_balance", EntityType: "journal_entry",
				EntityID: fmt.Sprintf("%d", entry.ID), UserID: in.CreatedByUserID,
			}); err != nil {
				return nil, err
			}

			return OpeningBalanceResponse{JournalEntryID: entry.ID, TotalValue: total.String(), MoveCount: len(in.Lines)}, nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

// AdjustmentLineDTO is one requested adjustment line.
type AdjustmentLineDTO struct {
	ItemID        int
	QuantityDelta core.Qty // positive = IN, negative = OUT
	UnitCost      *money.Amount // required when QuantityDelta > 0
}

// AdjustmentInput is the POST /inventory/adjustments request body.
type AdjustmentInput struct {
	Date            *time.Time
	LocationID      *int
	OffsetAccountID *int
	Reason          *string
	ReferenceNumber *string
	CreatedByUserID *int
	Lines           []AdjustmentLineDTO
}

// AdjustmentResponse is returned by Adjustment.
type AdjustmentResponse struct {
	JournalEntryID int    `json:"journalEntryId"`
	NetValue       string `json:"netValue"`
}

// Adjustment implements §4.5's Adjustment command.
func (c *Commands) Adjustment(ctx context.Context, companyID int, idempotencyKey, fingerprint string, in AdjustmentInput) (json.RawMessage, bool, error) {
	if len(in.Lines) == 0 {
		return nil, false, apperr.New(apperr.Validation, "at least one line is required")
	}

	locationHint := 0
	if in.LocationID != nil {
		locationHint = *in.LocationID
	}
	keys := make([]string, 0, len(in.Lines)+1)
	keys = append(keys, defaultsLockKey(companyID))
	for _, l := range in.Lines {
		keys = append(keys, stockLockKey(companyID, locationHint, l.ItemID))
	}

	var result idempotency.Result
	var outerErr error

	lockErr := c.locks.WithLocks(ctx, keys, c.stockTTL, func(ctx context.Context) error {
		result, outerErr = c.idem.RunIdempotent(ctx, companyID, idempotencyKey, fingerprint, func(ctx context.Context, tx pgx.Tx) (any, error) {
			defaults, err := ensureInventoryCompanyDefaults(ctx, tx, companyID)
			if err != nil {
				return nil, err
			}

			date := time.Now().UTC()
			if in.Date != nil {
				date = *in.Date
			}
			if err := period.AssertOpen(ctx, tx, companyID, date, "post inventory adjustment"); err != nil {
				return nil, err
			}

			locationID := defaults.LocationID
			if in.LocationID != nil {
				locationID = *in.LocationID
			}
			offsetAccountID := defaults.COGSAccountID
			if in.OffsetAccountID != nil {
				offsetAccountID = *in.OffsetAccountID
			}

			correlationID := uuid.NewString()
			inTotal := money.Zero
			outTotal := money.Zero
			anyReplayed := false
			earliestDate := date

			for _, l := range in.Lines {
				if l.QuantityDelta.IsZero() {
					continue
				}
				if err := assertGoodsTracked(ctx, tx, companyID, l.ItemID); err != nil {
					return nil, err
				}

				if l.QuantityDelta.IsPositive() {
					if l.UnitCost == nil || !l.UnitCost.IsPositive() {
						return nil, apperr.New(apperr.Validation, "unitCost must be positive for an IN adjustment on item %d", l.ItemID)
					}
					unitCost := *l.UnitCost
					res, err := c.engine.ApplyStockMoveWac(ctx, tx, MoveInput{
						CompanyID: companyID, LocationID: locationID, ItemID: l.ItemID, Date: date,
						Type: core.MoveAdjustment, Direction: core.In, Quantity: l.QuantityDelta,
						UnitCostApplied: &unitCost, AllowBackdated: true, CorrelationID: &correlationID,
						ReferenceID: in.ReferenceNumber,
					})
					if err != nil {
						return nil, err
					}
					inTotal = inTotal.Add(res.Move.TotalCostApplied)
					if res.Replayed {
						anyReplayed = true
					}
				} else {
					qty := l.QuantityDelta.Neg()
					res, err := c.engine.ApplyStockMoveWac(ctx, tx, MoveInput{
						CompanyID: companyID, LocationID: locationID, ItemID: l.ItemID, Date: date,
						Type: core.MoveAdjustment, Direction: core.Out, Quantity: qty,
						AllowBackdated: true, CorrelationID: &correlationID,
						ReferenceID: in.ReferenceNumber,
					})
					if err != nil {
						return nil, err
					}
					outTotal = outTotal.Add(res.Move.TotalCostApplied)
					if res.Replayed {
						anyReplayed = true
					}
				}
			}

			net := inTotal.Sub(outTotal)
			if net.IsZero() {
				return nil, apperr.New(apperr.Validation, "adjustment net value must be non-zero")
			}

			var lines []ledger.LineInput
			if net.IsPositive() {
				lines = []ledger.LineInput{
					{AccountID: defaults.InventoryAccountID, Debit: net, Credit: money.Zero},
					{AccountID: offsetAccountID, Debit: money.Zero, Credit: net},
				}
			} else {
				lines = []ledger.LineInput{
					{AccountID: offsetAccountID, Debit: net.Abs(), Credit: money.Zero},
					{AccountID: defaults.InventoryAccountID, Debit: money.Zero, Credit: net.Abs()},
				}
			}

			description := "Inventory adjustment"
			if in.Reason != nil {
				description = fmt.Sprintf("Inventory adjustment: %s", *in.Reason)
			}

			entry, err := c.poster.PostJournalEntry(ctx, tx, ledger.PostInput{
				CompanyID:             companyID,
				Date:                  date,
				Description:           description,
				LocationID:            &locationID,
				CreatedByUserID:       in.CreatedByUserID,
				SkipAccountValidation: true,
				Lines:                 lines,
			})
			if err != nil {
				return nil, err
			}

			if _, err := tx.Exec(ctx, `
				UPDATE stock_moves SET journal_entry_id = $1 WHERE company_id = $2 AND correlation_id = $3
			`, entry.ID, companyID, correlationID); err != nil {
				return nil, apperr.Wrap(apperr.Internal, err, "failed to backfill journal entry id on stock moves")
			}

			if _, err := c.outbox.Insert(ctx, tx, companyID, outbox.JournalEntryCreated,
				outbox.JournalEntryCreatedPayload{JournalEntryID: entry.ID, CompanyID: companyID, TotalDebit: net.Abs().String(), TotalCredit: net.Abs().String()},
				correlationID, nil); err != nil {
				return nil, err
			}
			if anyReplayed {
				if err := emitRecalc(ctx, tx, c.outbox, companyID, correlationID, earliestDate, "adjustment", &entry.ID); err != nil {
					return nil, err
				}
			}

			if err := c.audit.Write(ctx, tx, audit.Entry{
				CompanyID: companyID, Action: "inventory.adjustment", EntityType: "journal_entry",
				EntityID: fmt.Sprintf("%d", entry.ID), UserID: in.CreatedByUserID,
			}); err != nil {
				return nil, err
			}

			return AdjustmentResponse{JournalEntryID: entry.ID, NetValue: net.String()}, nil
		})
		return nil
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	if outerErr != nil {
		return nil, false, outerErr
	}
	return result.Response, result.Replay, nil
}

func assertGoodsTracked(ctx context.Context, tx pgx.Tx, companyID, itemID int) error {
	var itemType string
	var trackInventory bool
	err := tx.QueryRow(ctx, `
		SELECT type, track_inventory FROM items WHERE id = $1 AND company_id = $2
	`, itemID, companyID).Scan(&itemType, &trackInventory)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperr.New(apperr.NotFound, "item %d not found", itemID)
		}
		return apperr.Wrap(apperr.Internal, err, "failed to look up item")
	}
	if itemType != string(core.Goods) || !trackInventory {
		return apperr.New(apperr.Validation, "item %d does not participate in inventory tracking", itemID)
	}
	return nil
}

func emitRecalc(ctx context.Context, tx pgx.Tx, w *outbox.Writer, companyID int, correlationID string, fromDate time.Time, source string, journalEntryID *int) error {
	_, err := w.Insert(ctx, tx, companyID, outbox.InventoryRecalcRequested,
		outbox.InventoryRecalcRequestedPayload{
			CompanyID:      companyID,
			FromDate:       fromDate.Format("2006-01-02"),
			Reason:         "backdated_stock_move_replay",
			Source:         source,
			JournalEntryID: journalEntryID,
		}, correlationID, nil)
	return err
}
