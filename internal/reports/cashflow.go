package reports

import (
	"context"
	"sort"

	"ledgercore/internal/apperr"
	"ledgercore/internal/core"
	"ledgercore/internal/money"

	"github.com/shopspring/decimal"
)

// CashflowLine is one labeled movement line in the indirect-method report.
type CashflowLine struct {
	Label  string       `json:"label"`
	Amount money.Amount `json:"amount"`
}

// Cashflow is the §4.10 indirect-method Cashflow report over [from,to].
type Cashflow struct {
	From             string         `json:"from"`
	To               string         `json:"to"`
	NetProfit        money.Amount   `json:"netProfit"`
	Operating        []CashflowLine `json:"operating"`
	Investing        []CashflowLine `json:"investing"`
	Financing        []CashflowLine `json:"financing"`
	OperatingTotal   money.Amount   `json:"operatingTotal"`
	InvestingTotal   money.Amount   `json:"investingTotal"`
	FinancingTotal   money.Amount   `json:"financingTotal"`
	CashBegin        money.Amount   `json:"cashBegin"`
	CashEnd          money.Amount   `json:"cashEnd"`
	Reconciles       bool           `json:"reconciles"`
}

type balanceSheetAccountRow struct {
	code       string
	name       string
	accType    core.AccountType
	normal     core.NormalBalance
	reportGrp  *core.ReportGroup
	activity   *core.CashflowActivity
	beginning  money.Amount
	ending     money.Amount
}

// workingCapitalGroups maps a ReportGroup to its Cashflow label, per the
// spec's named working-capital roll-up lines.
var workingCapitalGroups = map[core.ReportGroup]string{
	core.ReportGroupAccountsReceivable: "Accounts Receivable",
	core.ReportGroupInventory:          "Inventory",
	core.ReportGroupAccountsPayable:    "Accounts Payable",
}

// GetCashflow implements §4.10's indirect-method Cashflow. It starts from
// netProfit, computes signed begin/end balances for every balance-sheet
// account, classifies each by CashflowActivity (defaulting FIXED_ASSET to
// INVESTING, LONG_TERM_LIABILITY/EQUITY to FINANCING, else OPERATING), rolls
// working-capital groups into labeled lines, ranks remaining operating
// movements by absolute effect (top 10), and reconciles against the cash
// accounts' own begin/end delta.
func (r *Reports) GetCashflow(ctx context.Context, companyID int, from, to string) (*Cashflow, error) {
	pl, err := r.GetProfitAndLoss(ctx, companyID, from, to)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.code, a.name, a.type, a.normal_balance, a.report_group, a.cashflow_activity,
		       COALESCE((SELECT SUM(debit_total) - SUM(credit_total) FROM account_balances
		                 WHERE company_id = a.company_id AND account_id = a.id AND date < $2::date), 0),
		       COALESCE((SELECT SUM(debit_total) - SUM(credit_total) FROM account_balances
		                 WHERE company_id = a.company_id AND account_id = a.id AND date <= $3::date), 0)
		FROM accounts a
		WHERE a.company_id = $1 AND a.type IN ('ASSET', 'LIABILITY', 'EQUITY')
	`, companyID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to query cashflow balances")
	}
	defer rows.Close()

	var accounts []balanceSheetAccountRow
	var cashBegin, cashEnd decimal.Decimal
	for rows.Next() {
		var ar balanceSheetAccountRow
		var typ, normal string
		var reportGroup, activity *string
		var beginNet, endNet decimal.Decimal
		if err := rows.Scan(&ar.code, &ar.name, &typ, &normal, &reportGroup, &activity, &beginNet, &endNet); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to scan cashflow account row")
		}
		ar.accType = core.AccountType(typ)
		ar.normal = core.NormalBalance(normal)
		if reportGroup != nil {
			rg := core.ReportGroup(*reportGroup)
			ar.reportGrp = &rg
			if rg == core.ReportGroupCash {
				cashBegin = cashBegin.Add(beginNet)
				cashEnd = cashEnd.Add(endNet)
			}
		}
		if activity != nil {
			act := core.CashflowActivity(*activity)
			ar.activity = &act
		}
		ar.beginning = signedBalance(ar.normal, beginNet)
		ar.ending = signedBalance(ar.normal, endNet)
		accounts = append(accounts, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "cashflow account row iteration failed")
	}

	cf := &Cashflow{
		From:      from,
		To:        to,
		NetProfit: pl.NetProfit,
		CashBegin: money.New(cashBegin),
		CashEnd:   money.New(cashEnd),
	}

	wcTotals := map[string]money.Amount{}
	var otherOperating []CashflowLine

	for _, a := range accounts {
		if a.reportGrp != nil && *a.reportGrp == core.ReportGroupCash {
			continue // cash movements are the reconciliation target, not a line item
		}
		delta := a.ending.Sub(a.beginning)
		if delta.IsZero() {
			continue
		}
		var effect money.Amount
		if a.accType == core.Asset {
			effect = delta.Neg()
		} else {
			effect = delta
		}

		activity := classifyActivity(a)
		switch activity {
		case core.Investing:
			cf.Investing = append(cf.Investing, CashflowLine{Label: a.name, Amount: effect})
			cf.InvestingTotal = cf.InvestingTotal.Add(effect)
		case core.Financing:
			cf.Financing = append(cf.Financing, CashflowLine{Label: a.name, Amount: effect})
			cf.FinancingTotal = cf.FinancingTotal.Add(effect)
		default:
			if a.reportGrp != nil {
				if label, ok := workingCapitalGroups[*a.reportGrp]; ok {
					wcTotals[label] = wcTotals[label].Add(effect)
					continue
				}
			}
			otherOperating = append(otherOperating, CashflowLine{Label: a.name, Amount: effect})
		}
	}

	for label, amt := range wcTotals {
		cf.Operating = append(cf.Operating, CashflowLine{Label: label, Amount: amt})
		cf.OperatingTotal = cf.OperatingTotal.Add(amt)
	}

	sort.Slice(otherOperating, func(i, j int) bool {
		return otherOperating[i].Amount.Abs().GreaterThan(otherOperating[j].Amount.Abs())
	})
	if len(otherOperating) > 10 {
		otherOperating = otherOperating[:10]
	}
	for _, l := range otherOperating {
		cf.Operating = append(cf.Operating, l)
		cf.OperatingTotal = cf.OperatingTotal.Add(l.Amount)
	}
	cf.OperatingTotal = cf.OperatingTotal.Add(cf.NetProfit)

	total := cf.OperatingTotal.Add(cf.InvestingTotal).Add(cf.FinancingTotal)
	cf.Reconciles = total.Equal(cf.CashEnd.Sub(cf.CashBegin))

	return cf, nil
}

func signedBalance(normal core.NormalBalance, net decimal.Decimal) money.Amount {
	amt := money.New(net)
	if normal == core.Credit {
		return amt.Neg()
	}
	return amt
}

func classifyActivity(a balanceSheetAccountRow) core.CashflowActivity {
	if a.activity != nil {
		return *a.activity
	}
	if a.reportGrp != nil {
		switch *a.reportGrp {
		case core.ReportGroupFixedAsset:
			return core.Investing
		case core.ReportGroupLongTermLiability, core.ReportGroupEquity:
			return core.Financing
		}
	}
	if a.accType == core.Equity {
		return core.Financing
	}
	return core.Operating
}
