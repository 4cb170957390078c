package web

import (
	"net/http"
	"time"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/inventory"
	"ledgercore/internal/ledger"
	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

// lineWire is the wire shape of one journal-entry line in a request body.
type lineWire struct {
	AccountID int          `json:"accountId"`
	Debit     money.Amount `json:"debit"`
	Credit    money.Amount `json:"credit"`
}

func (l lineWire) toDTO() ledger.LineDTO {
	return ledger.LineDTO{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit}
}

func linesToDTO(in []lineWire) []ledger.LineDTO {
	out := make([]ledger.LineDTO, len(in))
	for i, l := range in {
		out[i] = l.toDTO()
	}
	return out
}

// createManualWire is the POST /journal-entries request body.
type createManualWire struct {
	Date            dateOnly    `json:"date"`
	Description     string      `json:"description"`
	LocationID      *int        `json:"locationId"`
	CreatedByUserID *int        `json:"createdByUserId"`
	Lines           []lineWire  `json:"lines"`
}

func (w createManualWire) toInput() ledger.CreateManualInput {
	return ledger.CreateManualInput{
		Date:            time.Time(w.Date),
		Description:     w.Description,
		LocationID:      w.LocationID,
		CreatedByUserID: w.CreatedByUserID,
		Lines:           linesToDTO(w.Lines),
	}
}

// reverseWire is the POST /journal-entries/{id}/reverse request body.
type reverseWire struct {
	Reason *string      `json:"reason"`
	Date   *dateOnly    `json:"date"`
}

func (w reverseWire) toInput(originalID int, createdBy *int) ledger.ReverseInput {
	return ledger.ReverseInput{
		OriginalID:      originalID,
		Reason:          w.Reason,
		Date:            w.Date.toTimePtr(),
		CreatedByUserID: createdBy,
	}
}

// voidWire is the POST /journal-entries/{id}/void request body.
type voidWire struct {
	Reason string    `json:"reason"`
	Date   *dateOnly `json:"date"`
}

func (w voidWire) toInput(originalID int, createdBy *int) ledger.VoidInput {
	return ledger.VoidInput{
		OriginalID:      originalID,
		Reason:          w.Reason,
		Date:            w.Date.toTimePtr(),
		CreatedByUserID: createdBy,
	}
}

// adjustWire is the POST /journal-entries/{id}/adjust request body.
type adjustWire struct {
	Reason      string     `json:"reason"`
	Date        *dateOnly  `json:"date"`
	Description *string    `json:"description"`
	Lines       []lineWire `json:"lines"`
}

func (w adjustWire) toInput(originalID int, createdBy *int) ledger.AdjustInput {
	return ledger.AdjustInput{
		OriginalID:      originalID,
		Reason:          w.Reason,
		Date:            w.Date.toTimePtr(),
		Description:     w.Description,
		CreatedByUserID: createdBy,
		Lines:           linesToDTO(w.Lines),
	}
}

// openingLineWire is one line of the inventory opening-balance request.
type openingLineWire struct {
	ItemID   int          `json:"itemId"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost money.Amount `json:"unitCost"`
}

// openingBalanceWire is the POST /inventory/opening-balance request body.
type openingBalanceWire struct {
	Date       *dateOnly         `json:"date"`
	LocationID *int              `json:"locationId"`
	Lines      []openingLineWire `json:"lines"`
}

func (w openingBalanceWire) toInput(createdBy *int) inventory.OpeningBalanceInput {
	lines := make([]inventory.OpeningLineDTO, len(w.Lines))
	for i, l := range w.Lines {
		lines[i] = inventory.OpeningLineDTO{ItemID: l.ItemID, Quantity: core.Qty(l.Quantity), UnitCost: l.UnitCost}
	}
	return inventory.OpeningBalanceInput{
		Date:            w.Date.toTimePtr(),
		LocationID:      w.LocationID,
		CreatedByUserID: createdBy,
		Lines:           lines,
	}
}

// adjustmentLineWire is one line of the inventory adjustment request.
type adjustmentLineWire struct {
	ItemID        int              `json:"itemId"`
	QuantityDelta decimal.Decimal  `json:"quantityDelta"`
	UnitCost      *money.Amount    `json:"unitCost"`
}

// inventoryAdjustmentWire is the POST /inventory/adjustments request body.
type inventoryAdjustmentWire struct {
	Date            *dateOnly            `json:"date"`
	LocationID      *int                 `json:"locationId"`
	OffsetAccountID *int                 `json:"offsetAccountId"`
	Reason          *string              `json:"reason"`
	ReferenceNumber *string              `json:"referenceNumber"`
	Lines           []adjustmentLineWire `json:"lines"`
}

func (w inventoryAdjustmentWire) toInput(createdBy *int) inventory.AdjustmentInput {
	lines := make([]inventory.AdjustmentLineDTO, len(w.Lines))
	for i, l := range w.Lines {
		lines[i] = inventory.AdjustmentLineDTO{ItemID: l.ItemID, QuantityDelta: core.Qty(l.QuantityDelta), UnitCost: l.UnitCost}
	}
	return inventory.AdjustmentInput{
		Date:            w.Date.toTimePtr(),
		LocationID:      w.LocationID,
		OffsetAccountID: w.OffsetAccountID,
		Reason:          w.Reason,
		ReferenceNumber: w.ReferenceNumber,
		CreatedByUserID: createdBy,
		Lines:           lines,
	}
}

// dateOnly marshals/unmarshals a bare "YYYY-MM-DD" JSON string as a UTC
// midnight time.Time, matching §6's "dates normalized to UTC midnight"
// persisted-format rule.
type dateOnly time.Time

func (d *dateOnly) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = dateOnly(time.Time{})
		return nil
	}
	s = trimQuotes(s)
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return err
	}
	*d = dateOnly(t)
	return nil
}

func (d dateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(d).Format("2006-01-02") + `"`), nil
}

func (d *dateOnly) toTimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	if t.IsZero() {
		return nil
	}
	return &t
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseRequiredDate parses a "YYYY-MM-DD" query param into a UTC midnight
// time.Time, failing Validation on anything else (§4.3 PeriodClose needs
// real bounds, unlike the report endpoints' open-ended queryDateRange).
func parseRequiredDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, apperr.New(apperr.Validation, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// queryDateRange reads from/to query params, defaulting to a wide-open
// range when absent so a report endpoint without bounds degrades to "all
// time" rather than erroring.
func queryDateRange(r *http.Request) (from, to string) {
	from = r.URL.Query().Get("from")
	to = r.URL.Query().Get("to")
	if from == "" {
		from = "0001-01-01"
	}
	if to == "" {
		to = "9999-12-31"
	}
	return from, to
}
