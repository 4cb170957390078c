package ledger_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"ledgercore/internal/db"
	"ledgercore/internal/idempotency"
	"ledgercore/internal/ledger"
	"ledgercore/internal/lock"
	"ledgercore/internal/money"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupCommands requires TEST_DATABASE_URL pointing at a Postgres instance
// with migrations applied; it is skipped otherwise.
func setupCommands(t *testing.T) (*ledger.Commands, *pgxpool.Pool, int) {
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

	var companyID int
	err = pool.QueryRow(context.Background(), `
		INSERT INTO companies (company_code, name) VALUES ($1, 'Scenario Co') RETURNING id
	`, t.Name()).Scan(&companyID)
	if err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	idem := idempotency.NewStore(pool)
	locks := lock.NewManager(nil) // nil client: best-effort no-op, exercises DB-level serialization only
	cmds := ledger.NewCommands(idem, locks, 30*time.Second, 60*time.Second)
	return cmds, pool, companyID
}

func mustCreateAccount(t *testing.T, pool *pgxpool.Pool, companyID int, code, name, typ, normal string) int {
	t.Helper()
	var id int
	err := pool.QueryRow(context.Background(), `
		INSERT INTO accounts (company_id, code, name, type, normal_balance, is_active)
		VALUES ($1, $2, $3, $4, $5, true) RETURNING id
	`, companyID, code, name, typ, normal).Scan(&id)
	if err != nil {
		t.Fatalf("failed to create account %s: %v", code, err)
	}
	return id
}

// TestCreateManual_BalancedPosting covers scenario 1: a balanced posting is
// accepted, numbered JE-2025-0001, and idempotent replay returns the same id.
func TestCreateManual_BalancedPosting(t *testing.T) {
	cmds, pool, companyID := setupCommands(t)
	cash := mustCreateAccount(t, pool, companyID, "1000", "Cash", "ASSET", "DEBIT")
	sales := mustCreateAccount(t, pool, companyID, "4000", "Sales", "INCOME", "CREDIT")

	amt, _ := money.Parse("100.00")
	in := ledger.CreateManualInput{
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "scenario 1",
		Lines: []ledger.LineDTO{
			{AccountID: cash, Debit: amt, Credit: money.Zero},
			{AccountID: sales, Debit: money.Zero, Credit: amt},
		},
	}

	resp1, replay1, err := cmds.CreateManual(context.Background(), companyID, "k1", "fp1", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replay1 {
		t.Fatal("first call should not be a replay")
	}
	var created ledger.EntryResponse
	mustUnmarshal(t, resp1, &created)
	if created.EntryNumber != "JE-2025-0001" {
		t.Fatalf("expected entry number JE-2025-0001, got %q", created.EntryNumber)
	}

	resp2, replay2, err := cmds.CreateManual(context.Background(), companyID, "k1", "fp1", in)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if !replay2 {
		t.Fatal("second call with same key should be a replay")
	}
	if string(resp1) != string(resp2) {
		t.Fatalf("replay response differs: %s vs %s", resp1, resp2)
	}
}

// TestCreateManual_UnbalancedRejection covers scenario 2.
func TestCreateManual_UnbalancedRejection(t *testing.T) {
	cmds, pool, companyID := setupCommands(t)
	cash := mustCreateAccount(t, pool, companyID, "1000", "Cash", "ASSET", "DEBIT")
	sales := mustCreateAccount(t, pool, companyID, "4000", "Sales", "INCOME", "CREDIT")

	debit, _ := money.Parse("100.00")
	credit, _ := money.Parse("99.99")
	in := ledger.CreateManualInput{
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "scenario 2",
		Lines: []ledger.LineDTO{
			{AccountID: cash, Debit: debit, Credit: money.Zero},
			{AccountID: sales, Debit: money.Zero, Credit: credit},
		},
	}

	_, _, err := cmds.CreateManual(context.Background(), companyID, "k2", "fp2", in)
	if err == nil {
		t.Fatal("expected Unbalanced error")
	}
}

// TestReverse_Chain covers scenario 3: reversing an entry succeeds once,
// and reversing the same original again under a new key fails
// InvalidState.
func TestReverse_Chain(t *testing.T) {
	cmds, pool, companyID := setupCommands(t)
	cash := mustCreateAccount(t, pool, companyID, "1000", "Cash", "ASSET", "DEBIT")
	sales := mustCreateAccount(t, pool, companyID, "4000", "Sales", "INCOME", "CREDIT")

	amt, _ := money.Parse("100.00")
	createIn := ledger.CreateManualInput{
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "original",
		Lines: []ledger.LineDTO{
			{AccountID: cash, Debit: amt, Credit: money.Zero},
			{AccountID: sales, Debit: money.Zero, Credit: amt},
		},
	}
	var created ledger.EntryResponse
	raw, _, err := cmds.CreateManual(context.Background(), companyID, "k3", "fp3", createIn)
	if err != nil {
		t.Fatalf("unexpected error creating original: %v", err)
	}
	mustUnmarshal(t, raw, &created)

	reason := "typo"
	_, replay, err := cmds.Reverse(context.Background(), companyID, "k4", "fp4", ledger.ReverseInput{
		OriginalID: created.ID,
		Reason:     &reason,
	})
	if err != nil {
		t.Fatalf("unexpected error reversing: %v", err)
	}
	if replay {
		t.Fatal("first reversal should not be a replay")
	}

	_, _, err = cmds.Reverse(context.Background(), companyID, "k5", "fp5", ledger.ReverseInput{
		OriginalID: created.ID,
		Reason:     &reason,
	})
	if err == nil {
		t.Fatal("expected InvalidState reversing an already-reversed entry")
	}
}

func mustUnmarshal(t *testing.T, raw []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
}
