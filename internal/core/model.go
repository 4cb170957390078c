// Package core holds the domain types shared across the ledger, inventory,
// idempotency, outbox, and reporting packages — the tenant-scoped entities
// of §3: Account, JournalEntry/JournalLine, DocumentSequence, PeriodClose,
// Location, Item, StockBalance, StockMove. All monetary fields are
// money.Amount (2 dp fixed-point); all entity tables carry a company_id
// tenant column, resolved through the companies.id / company_code lookup.
package core

import (
	"time"

	"ledgercore/internal/money"
)

// AccountType is a closed enumeration of chart-of-accounts categories.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Income    AccountType = "INCOME"
	Expense   AccountType = "EXPENSE"
)

// NormalBalance is the side (debit or credit) that increases an account.
type NormalBalance string

const (
	Debit  NormalBalance = "DEBIT"
	Credit NormalBalance = "CREDIT"
)

// ReportGroup tags an account for report classification. It is optional and
// open-ended in storage (a string column) but these are the values the
// report package understands.
type ReportGroup string

const (
	ReportGroupCash              ReportGroup = "CASH_AND_CASH_EQUIVALENTS"
	ReportGroupAccountsReceivable ReportGroup = "ACCOUNTS_RECEIVABLE"
	ReportGroupInventory         ReportGroup = "INVENTORY"
	ReportGroupFixedAsset        ReportGroup = "FIXED_ASSET"
	ReportGroupAccountsPayable   ReportGroup = "ACCOUNTS_PAYABLE"
	ReportGroupLongTermLiability ReportGroup = "LONG_TERM_LIABILITY"
	ReportGroupEquity            ReportGroup = "EQUITY"
	ReportGroupCOGS              ReportGroup = "COGS"
)

// CashflowActivity classifies a balance-sheet account's cash effect.
type CashflowActivity string

const (
	Operating CashflowActivity = "OPERATING"
	Investing CashflowActivity = "INVESTING"
	Financing CashflowActivity = "FINANCING"
)

// Account is a chart-of-accounts node, scoped to a tenant. Never deleted —
// see Account.IsActive for deactivation.
type Account struct {
	ID               int
	CompanyID        int
	Code             string
	Name             string
	Type             AccountType
	NormalBalance    NormalBalance
	ReportGroup      *ReportGroup
	CashflowActivity *CashflowActivity
	IsActive         bool
}

// Company is the tenant registry row. The resolved-ID fields are the cache
// ensureInventoryCompanyDefaults (§4.4.3) writes back after find-or-create.
type Company struct {
	ID                         int
	CompanyCode               string
	Name                       string
	DefaultLocationID          *int
	InventoryAccountID         *int
	COGSAccountID              *int
	OpeningBalanceEquityID     *int
}

// JournalEntry is an atomic, balanced posting. Immutable once inserted:
// corrections are additional entries (Reverse/Void/Adjust), never edits.
type JournalEntry struct {
	ID                     int
	CompanyID              int
	EntryNumber            string // "JE-YYYY-NNNN"
	Date                   time.Time
	Description            string
	LocationID             *int
	CreatedByUserID        *int
	CreatedAt              time.Time
	ReversalOfJournalEntry *int
	ReversalReason         *string
	VoidedAt               *time.Time
	VoidReason             *string
	VoidedByUserID         *int
	Lines                  []JournalLine
}

// JournalLine is one debit or credit leg of a JournalEntry. Exactly one of
// Debit/Credit is non-zero for ordinary lines; both may be zero only for
// synthetic closing lines (the entry total still balances).
type JournalLine struct {
	ID             int
	CompanyID      int
	JournalEntryID int
	AccountID      int
	Debit          money.Amount
	Credit         money.Amount
}

// DocumentSequence backs gapless entry numbering: Key is e.g.
// "JOURNAL_ENTRY:2025"; NextNumber is the number to allocate next.
type DocumentSequence struct {
	CompanyID  int
	Key        string
	NextNumber int64
}

// PeriodClose records a closed date range and the closing entry that zeroed
// income/expense into equity for it.
type PeriodClose struct {
	ID              int
	CompanyID       int
	FromDate        time.Time
	ToDate          time.Time
	JournalEntryID  int
	CreatedByUserID *int
	CreatedAt       time.Time
}

// AccountBalance is the daily per-account projection rebuilt from
// JournalLines (§4.11).
type AccountBalance struct {
	CompanyID   int
	AccountID   int
	Date        time.Time
	DebitTotal  money.Amount
	CreditTotal money.Amount
}

// DailySummary is the per-day income/expense net projection.
type DailySummary struct {
	CompanyID int
	Date      time.Time
	Income    money.Amount
	Expense   money.Amount
}

// ProcessedEvent marks an outbox event as consumed by the projection
// rebuild path, so the streaming consumer that later catches up on the
// same event does not double-apply it.
type ProcessedEvent struct {
	EventID   string
	CompanyID int
}

// Location is a tenant's stock-keeping location (warehouse/store/etc).
type Location struct {
	ID        int
	CompanyID int
	Name      string
	IsDefault bool
}

// ItemType distinguishes stock-tracked goods from non-tracked services.
type ItemType string

const (
	Goods   ItemType = "GOODS"
	Service ItemType = "SERVICE"
)

// Item is a sellable/stockable catalog entry. Only GOODS with
// TrackInventory=true participate in the inventory engine.
type Item struct {
	ID              int
	CompanyID       int
	Name            string
	SKU             *string
	Type            ItemType
	TrackInventory  bool
	SellingPrice    *money.Amount
}

// StockBalance is the current (Q, A, V) snapshot for one (location, item).
type StockBalance struct {
	CompanyID      int
	LocationID     int
	ItemID         int
	QtyOnHand      Qty
	AvgUnitCost    money.Amount
	InventoryValue money.Amount
}

// StockMoveType is a closed enumeration of stock-move causes.
type StockMoveType string

const (
	MoveOpening         StockMoveType = "OPENING"
	MoveAdjustment      StockMoveType = "ADJUSTMENT"
	MoveSaleIssue       StockMoveType = "SALE_ISSUE"
	MoveSaleReturn      StockMoveType = "SALE_RETURN"
	MovePurchaseReceipt StockMoveType = "PURCHASE_RECEIPT"
	MovePurchaseReturn  StockMoveType = "PURCHASE_RETURN"
	MoveTransferOut     StockMoveType = "TRANSFER_OUT"
	MoveTransferIn      StockMoveType = "TRANSFER_IN"
)

// Direction is IN (increases qty on hand) or OUT (decreases it).
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// StockMove is an immutable audit row for one WAC-priced stock movement.
type StockMove struct {
	ID                int
	CompanyID         int
	LocationID        int
	ItemID            int
	Date              time.Time
	Type              StockMoveType
	Direction         Direction
	Quantity          Qty
	UnitCostApplied   money.Amount
	TotalCostApplied  money.Amount
	ReferenceType     *string
	ReferenceID       *string
	CorrelationID     *string
	JournalEntryID    *int
}
