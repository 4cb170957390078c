// Package inventory implements weighted-average-cost (WAC) stock costing
// (§4.4): the forward-path move application, the backdated-insert replay,
// and the commands (opening balance, adjustment) that couple stock moves to
// the general ledger.
package inventory

import (
	"context"
	"sort"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MoveInput is one requested stock movement.
type MoveInput struct {
	CompanyID        int
	LocationID       int
	ItemID           int
	Date             time.Time
	Type             core.StockMoveType
	Direction        core.Direction
	Quantity         core.Qty
	UnitCostApplied  *money.Amount // required for IN
	TotalCostApplied *money.Amount // optional override for OUT
	AllowBackdated   bool
	ReferenceType    *string
	ReferenceID      *string
	CorrelationID    *string
	JournalEntryID   *int
}

// Engine applies WAC-priced stock moves against StockBalance snapshots.
type Engine struct{}

// NewEngine constructs an Engine.
func NewEngine() *Engine { return &Engine{} }

// Result is what ApplyStockMoveWac returns: the persisted move plus whether
// a backdated replay occurred (callers use this to decide whether to emit
// inventory.recalc.requested, per §4.4.2).
type Result struct {
	Move     core.StockMove
	Replayed bool
}

// ApplyStockMoveWac implements §4.4.1-4.4.2.
func (e *Engine) ApplyStockMoveWac(ctx context.Context, tx pgx.Tx, in MoveInput) (Result, error) {
	if in.Quantity.Sign() <= 0 {
		return Result{}, apperr.New(apperr.Validation, "quantity must be positive")
	}

	q, a, v, err := e.lockBalance(ctx, tx, in.CompanyID, in.LocationID, in.ItemID)
	if err != nil {
		return Result{}, err
	}

	lastDate, err := e.lastMoveDate(ctx, tx, in.CompanyID, in.LocationID, in.ItemID)
	if err != nil {
		return Result{}, err
	}

	if lastDate != nil && in.Date.Before(*lastDate) {
		if !in.AllowBackdated {
			return Result{}, apperr.New(apperr.Backdated,
				"move dated %s predates the last move on %s", in.Date.Format("2006-01-02"), lastDate.Format("2006-01-02"))
		}
		return e.replay(ctx, tx, in)
	}

	unitCost, totalCost, newQ, newA, newV, err := applyForward(in.Direction, q, a, v, in.Quantity, in.UnitCostApplied, in.TotalCostApplied)
	if err != nil {
		return Result{}, err
	}

	if err := e.upsertBalance(ctx, tx, in.CompanyID, in.LocationID, in.ItemID, newQ, newA, newV); err != nil {
		return Result{}, err
	}

	move, err := e.insertMove(ctx, tx, in, unitCost, totalCost)
	if err != nil {
		return Result{}, err
	}

	return Result{Move: move}, nil
}

// applyForward computes the new (Q,A,V) and the move's unitCost/totalCost
// per §4.4.1 step 3. v is the exact inventory value carried in from the
// caller (the stock_balances row on the forward path, or the running
// replay state) — never rederived as a.MulDec(q), since a is rounded to
// 2dp and recomputing from it would bleed a cent per step.
func applyForward(dir core.Direction, q decimal.Decimal, a, v money.Amount, quantity core.Qty, unitCostIn, totalCostOverride *money.Amount) (unitCost, totalCost money.Amount, newQ decimal.Decimal, newA, newV money.Amount, err error) {
	if dir == core.In {
		if unitCostIn == nil {
			return money.Amount{}, money.Amount{}, decimal.Zero, money.Amount{}, money.Amount{}, apperr.New(apperr.Validation, "unitCostApplied is required for an IN move")
		}
		unitCost = *unitCostIn
		inValue := unitCost.MulDec(quantity)
		newQ = q.Add(quantity)
		newV = v.Add(inValue)
		if newQ.IsPositive() {
			newA, err = newV.DivDec(newQ)
			if err != nil {
				return money.Amount{}, money.Amount{}, decimal.Zero, money.Amount{}, money.Amount{}, apperr.Wrap(apperr.Internal, err, "failed to compute average cost")
			}
		} else {
			newA = unitCost
		}
		return unitCost, inValue, newQ, newA, newV, nil
	}

	// OUT
	if q.LessThan(quantity) {
		return money.Amount{}, money.Amount{}, decimal.Zero, money.Amount{}, money.Amount{}, apperr.New(apperr.InsufficientStock,
			"insufficient stock: have %s, requested %s", q.String(), quantity.String())
	}
	var outValue money.Amount
	if totalCostOverride != nil && !totalCostOverride.IsNegative() {
		outValue = *totalCostOverride
	} else {
		outValue = a.MulDec(quantity)
	}
	if quantity.IsPositive() {
		unitCost, err = outValue.DivDec(quantity)
		if err != nil {
			return money.Amount{}, money.Amount{}, decimal.Zero, money.Amount{}, money.Amount{}, apperr.Wrap(apperr.Internal, err, "failed to compute unit cost")
		}
	} else {
		unitCost = a
	}
	newQ = q.Sub(quantity)
	newV = v.Sub(outValue)
	if newQ.IsPositive() {
		newA, err = newV.DivDec(newQ)
		if err != nil {
			return money.Amount{}, money.Amount{}, decimal.Zero, money.Amount{}, money.Amount{}, apperr.Wrap(apperr.Internal, err, "failed to compute average cost")
		}
	} else {
		newA = unitCost
	}
	return unitCost, outValue, newQ, newA, newV, nil
}

func (e *Engine) lockBalance(ctx context.Context, tx pgx.Tx, companyID, locationID, itemID int) (decimal.Decimal, money.Amount, money.Amount, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_balances (company_id, location_id, item_id, qty_on_hand, avg_unit_cost, inventory_value)
		VALUES ($1, $2, $3, 0, 0, 0)
		ON CONFLICT (company_id, location_id, item_id) DO NOTHING
	`, companyID, locationID, itemID)
	if err != nil {
		return decimal.Zero, money.Zero, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to ensure stock balance row")
	}

	var qty, avgCost, value decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT qty_on_hand, avg_unit_cost, inventory_value
		FROM stock_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
		FOR UPDATE
	`, companyID, locationID, itemID).Scan(&qty, &avgCost, &value)
	if err != nil {
		return decimal.Zero, money.Zero, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to lock stock balance")
	}
	return qty, money.New(avgCost), money.New(value), nil
}

func (e *Engine) upsertBalance(ctx context.Context, tx pgx.Tx, companyID, locationID, itemID int, q decimal.Decimal, a, v money.Amount) error {
	_, err := tx.Exec(ctx, `
		UPDATE stock_balances
		SET qty_on_hand = $1, avg_unit_cost = $2, inventory_value = $3
		WHERE company_id = $4 AND location_id = $5 AND item_id = $6
	`, q, a.Decimal(), v.Decimal(), companyID, locationID, itemID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to update stock balance")
	}
	return nil
}

func (e *Engine) lastMoveDate(ctx context.Context, tx pgx.Tx, companyID, locationID, itemID int) (*time.Time, error) {
	var d time.Time
	err := tx.QueryRow(ctx, `
		SELECT date FROM stock_moves
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
		ORDER BY date DESC, id DESC
		LIMIT 1
	`, companyID, locationID, itemID).Scan(&d)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Internal, err, "failed to read last stock move date")
	}
	return &d, nil
}

func (e *Engine) insertMove(ctx context.Context, tx pgx.Tx, in MoveInput, unitCost, totalCost money.Amount) (core.StockMove, error) {
	move := core.StockMove{
		CompanyID:        in.CompanyID,
		LocationID:       in.LocationID,
		ItemID:           in.ItemID,
		Date:             in.Date,
		Type:             in.Type,
		Direction:        in.Direction,
		Quantity:         in.Quantity,
		UnitCostApplied:  unitCost,
		TotalCostApplied: totalCost,
		ReferenceType:    in.ReferenceType,
		ReferenceID:      in.ReferenceID,
		CorrelationID:    in.CorrelationID,
		JournalEntryID:   in.JournalEntryID,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_moves
			(company_id, location_id, item_id, date, type, direction, quantity, unit_cost_applied, total_cost_applied,
			 reference_type, reference_id, correlation_id, journal_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, move.CompanyID, move.LocationID, move.ItemID, move.Date, string(move.Type), string(move.Direction),
		move.Quantity, move.UnitCostApplied.Decimal(), move.TotalCostApplied.Decimal(),
		move.ReferenceType, move.ReferenceID, move.CorrelationID, move.JournalEntryID,
	).Scan(&move.ID)
	if err != nil {
		return core.StockMove{}, apperr.Wrap(apperr.Internal, err, "failed to insert stock move")
	}
	return move, nil
}

// timelineRow is one existing stock move read for the replay walk. unitCost
// is the move's originally recorded per-unit cost: for an IN move this is
// its purchase price and is replayed verbatim (an IN's cost is an input,
// never WAC-derived); for an OUT move it is not used — an OUT's cost is
// always re-derived from the average cost in effect at its point in the
// replayed timeline, per §4.4.1 step 3.
type timelineRow struct {
	id        int
	date      time.Time
	direction core.Direction
	quantity  decimal.Decimal
	unitCost  money.Amount
}

// replay implements §4.4.2: rewind to before the first move dated after
// in.Date, insert the backdated move there, then re-apply every subsequent
// existing move's quantity against the recomputed (Q,A,V) without rewriting
// their stored unitCost/totalCost, failing InsufficientStock if any
// resulting quantity would go negative.
func (e *Engine) replay(ctx context.Context, tx pgx.Tx, in MoveInput) (Result, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, date, direction, quantity, unit_cost_applied FROM stock_moves
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
		ORDER BY date, id
	`, in.CompanyID, in.LocationID, in.ItemID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "failed to read stock move timeline")
	}
	var timeline []timelineRow
	for rows.Next() {
		var r timelineRow
		var dir string
		var unitCost decimal.Decimal
		if err := rows.Scan(&r.id, &r.date, &dir, &r.quantity, &unitCost); err != nil {
			rows.Close()
			return Result{}, apperr.Wrap(apperr.Internal, err, "failed to scan stock move")
		}
		r.direction = core.Direction(dir)
		r.unitCost = money.New(unitCost)
		timeline = append(timeline, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "failed to read stock move timeline")
	}

	insertAt := sort.Search(len(timeline), func(i int) bool { return timeline[i].date.After(in.Date) })

	q := decimal.Zero
	a := money.Zero
	v := money.Zero

	for i := 0; i < insertAt; i++ {
		r := timeline[i]
		q, a, v, err = walkForward(q, a, v, r.direction, r.quantity, r.unitCost)
		if err != nil {
			return Result{}, err
		}
	}

	newUnitCost, newTotalCost, qAfterInsert, aAfterInsert, vAfterInsert, err := applyForward(in.Direction, q, a, v, in.Quantity, in.UnitCostApplied, in.TotalCostApplied)
	if err != nil {
		if apperr.KindOf(err) == apperr.InsufficientStock {
			return Result{}, apperr.New(apperr.InsufficientStock,
				"insufficient stock at %s for backdated move", in.Date.Format("2006-01-02"))
		}
		return Result{}, err
	}
	q, a, v = qAfterInsert, aAfterInsert, vAfterInsert

	for i := insertAt; i < len(timeline); i++ {
		r := timeline[i]
		if r.direction == core.Out && q.LessThan(r.quantity) {
			return Result{}, apperr.New(apperr.InsufficientStock,
				"backdated insert would drive stock move %d on %s negative", r.id, r.date.Format("2006-01-02"))
		}
		q, a, v, err = walkForward(q, a, v, r.direction, r.quantity, r.unitCost)
		if err != nil {
			return Result{}, err
		}
	}

	if err := e.upsertBalance(ctx, tx, in.CompanyID, in.LocationID, in.ItemID, q, a, v); err != nil {
		return Result{}, err
	}

	move, err := e.insertMove(ctx, tx, in, newUnitCost, newTotalCost)
	if err != nil {
		return Result{}, err
	}

	return Result{Move: move, Replayed: true}, nil
}

// walkForward advances (q,a,v) through one existing move during a replay. An
// IN move's contribution uses its own recorded unitCost (a purchase price is
// never WAC-derived); an OUT move's contribution is re-derived from the
// average cost a currently in effect, exactly as a fresh OUT would be
// priced in the forward path (§4.4.1 step 3) — this is what lets a
// backdated insert change the WAC an existing OUT effectively consumed. v is
// carried in and out explicitly rather than rederived as a.MulDec(q), so
// rounding a to 2dp at each step never erodes the running inventory value.
func walkForward(q decimal.Decimal, a, v money.Amount, dir core.Direction, quantity decimal.Decimal, unitCost money.Amount) (decimal.Decimal, money.Amount, money.Amount, error) {
	if dir == core.In {
		newQ := q.Add(quantity)
		newV := v.Add(unitCost.MulDec(quantity))
		if !newQ.IsPositive() {
			return newQ, unitCost, newV, nil
		}
		newA, err := newV.DivDec(newQ)
		if err != nil {
			return decimal.Zero, money.Zero, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to compute average cost during replay")
		}
		return newQ, newA, newV, nil
	}

	newQ := q.Sub(quantity)
	newV := v.Sub(a.MulDec(quantity))
	if !newQ.IsPositive() {
		return newQ, a, newV, nil
	}
	newA, err := newV.DivDec(newQ)
	if err != nil {
		return decimal.Zero, money.Zero, money.Zero, apperr.Wrap(apperr.Internal, err, "failed to compute average cost during replay")
	}
	return newQ, newA, newV, nil
}
