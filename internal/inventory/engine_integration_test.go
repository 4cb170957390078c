package inventory_test

import (
	"context"
	"os"
	"testing"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/db"
	"ledgercore/internal/inventory"
	"ledgercore/internal/money"

	"github.com/jackc/pgx/v5/pgxpool"
)

func setupEngine(t *testing.T) (*inventory.Engine, *pgxpool.Pool, int, int, int) {
	t.Helper()
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	pool, err := db.NewPool(context.Background(), connStr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx := context.Background()
	var companyID int
	if err := pool.QueryRow(ctx, `
		INSERT INTO companies (company_code, name) VALUES ($1, 'WAC Co') RETURNING id
	`, t.Name()).Scan(&companyID); err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	var locationID int
	if err := pool.QueryRow(ctx, `
		INSERT INTO locations (company_id, name, is_default) VALUES ($1, 'Main', true) RETURNING id
	`, companyID).Scan(&locationID); err != nil {
		t.Fatalf("failed to create location: %v", err)
	}

	var itemID int
	if err := pool.QueryRow(ctx, `
		INSERT INTO items (company_id, sku, name, type, track_inventory) VALUES ($1, 'SKU-1', 'Widget', 'GOODS', true) RETURNING id
	`, companyID).Scan(&itemID); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	return inventory.NewEngine(), pool, companyID, locationID, itemID
}

func amt(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	if err != nil {
		t.Fatalf("failed to parse amount %q: %v", s, err)
	}
	return a
}

func qty(t *testing.T, s string) core.Qty {
	t.Helper()
	q, err := core.ParseQty(s)
	if err != nil {
		t.Fatalf("failed to parse quantity %q: %v", s, err)
	}
	return q
}

// TestApplyStockMoveWac_ThreePurchaseOneSale covers scenario 4.
func TestApplyStockMoveWac_ThreePurchaseOneSale(t *testing.T) {
	engine, pool, companyID, locationID, itemID := setupEngine(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	opening := amt(t, "5.00")
	res, err := engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Type: core.MoveOpening, Direction: core.In,
		Quantity: qty(t, "10"), UnitCostApplied: &opening,
	})
	if err != nil {
		t.Fatalf("opening failed: %v", err)
	}
	if res.Move.UnitCostApplied.String() != "5.00" {
		t.Fatalf("expected unit cost 5.00, got %s", res.Move.UnitCostApplied)
	}

	purchase := amt(t, "7.00")
	res, err = engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Type: core.MoveAdjustment, Direction: core.In,
		Quantity: qty(t, "10"), UnitCostApplied: &purchase,
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	var q, a, v string
	if err := tx.QueryRow(ctx, `
		SELECT qty_on_hand, avg_unit_cost, inventory_value FROM stock_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
	`, companyID, locationID, itemID).Scan(&q, &a, &v); err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if q != "20.000000" || a != "6.00" || v != "120.00" {
		t.Fatalf("after purchase expected Q=20 A=6.00 V=120.00, got Q=%s A=%s V=%s", q, a, v)
	}

	res, err = engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		Type: core.MoveSaleIssue, Direction: core.Out,
		Quantity: qty(t, "15"),
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if res.Move.TotalCostApplied.String() != "90.00" {
		t.Fatalf("expected outValue 90.00, got %s", res.Move.TotalCostApplied)
	}

	if err := tx.QueryRow(ctx, `
		SELECT qty_on_hand, avg_unit_cost, inventory_value FROM stock_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
	`, companyID, locationID, itemID).Scan(&q, &a, &v); err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if q != "5.000000" || a != "6.00" || v != "30.00" {
		t.Fatalf("after sale expected Q=5 A=6.00 V=30.00, got Q=%s A=%s V=%s", q, a, v)
	}

	_, err = engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),
		Type: core.MoveSaleIssue, Direction: core.Out,
		Quantity: qty(t, "6"),
	})
	if apperr.KindOf(err) != apperr.InsufficientStock {
		t.Fatalf("expected InsufficientStock, got %v", err)
	}

	if err := tx.QueryRow(ctx, `
		SELECT qty_on_hand, avg_unit_cost, inventory_value FROM stock_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
	`, companyID, locationID, itemID).Scan(&q, &a, &v); err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if q != "5.000000" || a != "6.00" || v != "30.00" {
		t.Fatalf("failed InsufficientStock attempt must leave state unchanged, got Q=%s A=%s V=%s", q, a, v)
	}
}

// TestApplyStockMoveWac_BackdatedReplay covers scenario 5.
func TestApplyStockMoveWac_BackdatedReplay(t *testing.T) {
	engine, pool, companyID, locationID, itemID := setupEngine(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	in1 := amt(t, "10.00")
	if _, err := engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Type: core.MovePurchaseReceipt, Direction: core.In,
		Quantity: qty(t, "5"), UnitCostApplied: &in1,
	}); err != nil {
		t.Fatalf("seed IN failed: %v", err)
	}
	if _, err := engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Type: core.MoveSaleIssue, Direction: core.Out,
		Quantity: qty(t, "3"),
	}); err != nil {
		t.Fatalf("seed OUT failed: %v", err)
	}

	var q, a, v string
	if err := tx.QueryRow(ctx, `
		SELECT qty_on_hand, avg_unit_cost, inventory_value FROM stock_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
	`, companyID, locationID, itemID).Scan(&q, &a, &v); err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if q != "2.000000" || a != "10.00" || v != "20.00" {
		t.Fatalf("seed state expected Q=2 A=10.00 V=20.00, got Q=%s A=%s V=%s", q, a, v)
	}

	backdated := amt(t, "8.00")
	res, err := engine.ApplyStockMoveWac(ctx, tx, inventory.MoveInput{
		CompanyID: companyID, LocationID: locationID, ItemID: itemID,
		Date: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		Type: core.MoveOpening, Direction: core.In,
		Quantity: qty(t, "4"), UnitCostApplied: &backdated, AllowBackdated: true,
	})
	if err != nil {
		t.Fatalf("backdated replay failed: %v", err)
	}
	if !res.Replayed {
		t.Fatal("expected Replayed=true")
	}

	if err := tx.QueryRow(ctx, `
		SELECT qty_on_hand, avg_unit_cost, inventory_value FROM stock_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
	`, companyID, locationID, itemID).Scan(&q, &a, &v); err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if q != "6.000000" || v != "54.67" || a != "9.11" {
		t.Fatalf("final state expected Q=6 V=54.67 A=9.11, got Q=%s A=%s V=%s", q, a, v)
	}
}
