package accountinghttp

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

const dateLayout = "2006-01-02"

type categoryRequest struct {
	Code string `json:"code" validate:"required,max=32"`
	Name string `json:"name" validate:"required,max=128"`
	Type string `json:"type" validate:"required,oneof=asset liability equity revenue expense"`
}

type accountRequest struct {
	Code          string `json:"code" validate:"required,max=32"`
	Name          string `json:"name" validate:"required,max=128"`
	Description   string `json:"description" validate:"max=512"`
	CategoryCode  string `json:"category_code" validate:"required"`
	NormalBalance string `json:"normal_balance" validate:"omitempty,oneof=debit credit"`
}

type normalBalanceRequest struct {
	NormalBalance string `json:"normal_balance" validate:"required,oneof=debit credit"`
}

type journalItemRequest struct {
	AccountCode string `json:"account_code" validate:"required"`
	Description string `json:"description" validate:"max=256"`
	Debit       string `json:"debit" validate:"omitempty,numeric"`
	Credit      string `json:"credit" validate:"omitempty,numeric"`
}

type journalRequest struct {
	ReferenceNo     string               `json:"reference_no" validate:"required,max=64"`
	TransactionType string               `json:"transaction_type" validate:"max=32"`
	Date            string               `json:"date" validate:"required,datetime=2006-01-02"`
	Description     string               `json:"description" validate:"max=512"`
	Type            string               `json:"type" validate:"omitempty,oneof=general adjustment"`
	Items           []journalItemRequest `json:"items" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	ReferenceNo string `json:"reference_no" validate:"omitempty,max=64"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=512"`
}

type fiscalYearRequest struct {
	Code      string `json:"code" validate:"required,max=32"`
	Name      string `json:"name" validate:"max=128"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type closeRequest struct {
	ClosingEntries       bool   `json:"closing_entries"`
	RetainedEarningsCode string `json:"retained_earnings_code"`
}

type itemRequest struct {
	Code                 string `json:"code" validate:"required,max=32"`
	Name                 string `json:"name" validate:"required,max=128"`
	Unit                 string `json:"unit" validate:"max=16"`
	Method               string `json:"method" validate:"required,oneof=fifo lifo average"`
	InventoryAccountCode string `json:"inventory_account_code" validate:"required"`
}

type receiptRequest struct {
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	Type              string `json:"type" validate:"required,oneof=purchase production"`
	Quantity          string `json:"quantity" validate:"required,numeric"`
	UnitCost          string `json:"unit_cost" validate:"required,numeric"`
	OffsetAccountCode string `json:"offset_account_code" validate:"required"`
	ReferenceNo       string `json:"reference_no" validate:"max=64"`
}

type issueRequest struct {
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	Type              string `json:"type" validate:"required,oneof=consumption sale"`
	Quantity          string `json:"quantity" validate:"required,numeric"`
	OffsetAccountCode string `json:"offset_account_code" validate:"required"`
	ReferenceNo       string `json:"reference_no" validate:"max=64"`
}

type assetRequest struct {
	Code                   string `json:"code" validate:"required,max=32"`
	Name                   string `json:"name" validate:"required,max=128"`
	Method                 string `json:"method" validate:"required,oneof=straight_line reducing_balance"`
	AnnualRate             string `json:"annual_rate" validate:"omitempty,numeric"`
	AcquisitionDate        string `json:"acquisition_date" validate:"required,datetime=2006-01-02"`
	AcquisitionCost        string `json:"acquisition_cost" validate:"required,numeric"`
	SalvageValue           string `json:"salvage_value" validate:"omitempty,numeric"`
	UsefulLifeMonths       int    `json:"useful_life_months" validate:"gte=0,lte=1200"`
	ExpenseAccountCode     string `json:"expense_account_code" validate:"required"`
	AccumulatedAccountCode string `json:"accumulated_account_code" validate:"required"`
}

type depreciationRequest struct {
	PeriodEnd string `json:"period_end" validate:"required,datetime=2006-01-02"`
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrInvalidInput, field)
	}
	return t, nil
}

// parseAmount treats an empty string as zero.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := domain.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", domain.ErrInvalidInput, field)
	}
	return v, nil
}

type categoryResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func toCategory(c domain.Category) categoryResponse {
	return categoryResponse{Code: c.Code, Name: c.Name, Type: string(c.Type)}
}

type accountResponse struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	CategoryCode  string `json:"category_code"`
	Type          string `json:"type"`
	NormalBalance string `json:"normal_balance"`
	Active        bool   `json:"active"`
}

func toAccount(a domain.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		Code:          a.Code,
		Name:          a.Name,
		Description:   a.Description,
		CategoryCode:  a.CategoryCode,
		Type:          string(a.Type),
		NormalBalance: string(a.NormalBalance),
		Active:        a.IsActive,
	}
}

type journalItemResponse struct {
	ID          int64  `json:"id"`
	AccountCode string `json:"account_code"`
	Description string `json:"description,omitempty"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type journalResponse struct {
	ID          int64                 `json:"id"`
	ReferenceNo string                `json:"reference_no"`
	Date        string                `json:"date"`
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	ReversalOf  *int64                `json:"reversal_of,omitempty"`
	CreatedBy   string                `json:"created_by,omitempty"`
	Items       []journalItemResponse `json:"items"`
}

func amount(v decimal.Decimal) string { return v.StringFixed(domain.Scale) }

func toJournal(e domain.JournalEntry) journalResponse {
	out := journalResponse{
		ID:          e.ID,
		ReferenceNo: e.ReferenceNo,
		Date:        e.Date.Format(dateLayout),
		Type:        string(e.Type),
		Description: e.Description,
		ReversalOf:  e.ReversalOf,
		CreatedBy:   e.CreatedBy,
		Items:       make([]journalItemResponse, 0, len(e.Items)),
	}
	for _, it := range e.Items {
		out.Items = append(out.Items, journalItemResponse{
			ID:          it.ID,
			AccountCode: it.AccountCode,
			Description: it.Description,
			Debit:       amount(it.Debit),
			Credit:      amount(it.Credit),
		})
	}
	return out
}

type ledgerRowResponse struct {
	ID             int64  `json:"id"`
	EntryID        int64  `json:"entry_id"`
	AccountCode    string `json:"account_code"`
	EntryType      string `json:"entry_type"`
	PostingDate    string `json:"posting_date"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	RunningBalance string `json:"running_balance"`
}

func toRow(r domain.LedgerRow) ledgerRowResponse {
	return ledgerRowResponse{
		ID:             r.ID,
		EntryID:        r.EntryID,
		AccountCode:    r.AccountCode,
		EntryType:      string(r.EntryType),
		PostingDate:    r.PostingDate.Format(dateLayout),
		Debit:          amount(r.Debit),
		Credit:         amount(r.Credit),
		RunningBalance: amount(r.RunningBalance),
	}
}

type postingResponse struct {
	Entry    journalResponse     `json:"entry"`
	Rows     []ledgerRowResponse `json:"rows"`
	Balances map[string]string   `json:"balances"`
}

type periodResponse struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Start    string  `json:"start_date"`
	End      string  `json:"end_date"`
	Status   string  `json:"status"`
	ClosedAt *string `json:"closed_at,omitempty"`
}

func toPeriod(p domain.Period) periodResponse {
	out := periodResponse{
		ID:     p.ID,
		Code:   p.Code,
		Start:  p.StartDate.Format(dateLayout),
		End:    p.EndDate.Format(dateLayout),
		Status: string(p.Status),
	}
	if p.ClosedAt != nil {
		s := p.ClosedAt.UTC().Format(time.RFC3339)
		out.ClosedAt = &s
	}
	return out
}

type fiscalYearResponse struct {
	ID      int64            `json:"id"`
	Code    string           `json:"code"`
	Name    string           `json:"name"`
	Start   string           `json:"start_date"`
	End     string           `json:"end_date"`
	Closed  bool             `json:"closed"`
	Periods []periodResponse `json:"periods,omitempty"`
}

func toFiscalYear(y domain.FiscalYear, periods []domain.Period) fiscalYearResponse {
	out := fiscalYearResponse{
		ID:     y.ID,
		Code:   y.Code,
		Name:   y.Name,
		Start:  y.StartDate.Format(dateLayout),
		End:    y.EndDate.Format(dateLayout),
		Closed: y.IsClosed,
	}
	for _, p := range periods {
		out.Periods = append(out.Periods, toPeriod(p))
	}
	return out
}

type closeResponse struct {
	Period           periodResponse    `json:"period"`
	Balances         map[string]string `json:"balances"`
	ClosingEntry     *journalResponse  `json:"closing_entry,omitempty"`
	FiscalYearClosed bool              `json:"fiscal_year_closed"`
}

type itemResponse struct {
	ID                   int64  `json:"id"`
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	Unit                 string `json:"unit,omitempty"`
	Method               string `json:"method"`
	InventoryAccountCode string `json:"inventory_account_code"`
	OnHand               string `json:"on_hand"`
	TotalValue           string `json:"total_value"`
	UnitCost             string `json:"unit_cost"`
}

func toItem(i domain.InventoryItem) itemResponse {
	return itemResponse{
		ID:                   i.ID,
		Code:                 i.Code,
		Name:                 i.Name,
		Unit:                 i.Unit,
		Method:               string(i.Method),
		InventoryAccountCode: i.InventoryAccountCode,
		OnHand:               amount(i.OnHand),
		TotalValue:           amount(i.TotalValue),
		UnitCost:             amount(i.UnitCost()),
	}
}

type lotResponse struct {
	LotID    int64  `json:"lot_id"`
	Quantity string `json:"quantity"`
	UnitCost string `json:"unit_cost"`
	Cost     string `json:"cost"`
}

type movementResponse struct {
	ID          int64         `json:"id"`
	Date        string        `json:"date"`
	Type        string        `json:"type"`
	Quantity    string        `json:"quantity"`
	UnitCost    string        `json:"unit_cost"`
	TotalCost   string        `json:"total_cost"`
	ReferenceNo string        `json:"reference_no"`
	EntryID     int64         `json:"journal_entry_id,omitempty"`
	Lots        []lotResponse `json:"lots,omitempty"`
}

func toLots(lots []domain.LotConsumption) []lotResponse {
	out := make([]lotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, lotResponse{LotID: l.LotID, Quantity: amount(l.Quantity), UnitCost: amount(l.UnitCost), Cost: amount(l.Cost)})
	}
	return out
}

func toMovement(m domain.InventoryMovement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		Date:        m.Date.Format(dateLayout),
		Type:        string(m.Type),
		Quantity:    amount(m.Quantity),
		UnitCost:    amount(m.UnitCost),
		TotalCost:   amount(m.TotalCost),
		ReferenceNo: m.ReferenceNo,
		EntryID:     m.JournalEntryID,
		Lots:        toLots(m.Lots),
	}
}

type valuationResponse struct {
	Method    string        `json:"method"`
	Quantity  string        `json:"quantity"`
	UnitCost  string        `json:"unit_cost"`
	TotalCost string        `json:"total_cost"`
	Lots      []lotResponse `json:"lots,omitempty"`
}

type assetResponse struct {
	ID                      int64  `json:"id"`
	Code                    string `json:"code"`
	Name                    string `json:"name"`
	Method                  string `json:"method"`
	AcquisitionDate         string `json:"acquisition_date"`
	AcquisitionCost         string `json:"acquisition_cost"`
	SalvageValue            string `json:"salvage_value"`
	CurrentValue            string `json:"current_value"`
	AccumulatedDepreciation string `json:"accumulated_depreciation"`
	Active                  bool   `json:"active"`
}

func toAsset(a domain.FixedAsset) assetResponse {
	return assetResponse{
		ID:                      a.ID,
		Code:                    a.Code,
		Name:                    a.Name,
		Method:                  string(a.Method),
		AcquisitionDate:         a.AcquisitionDate.Format(dateLayout),
		AcquisitionCost:         amount(a.AcquisitionCost),
		SalvageValue:            amount(a.SalvageValue),
		CurrentValue:            amount(a.CurrentValue),
		AccumulatedDepreciation: amount(a.AccumulatedDepreciation),
		Active:                  a.IsActive,
	}
}

type depreciationResponse struct {
	ID          int64  `json:"id"`
	AssetID     int64  `json:"asset_id"`
	PeriodEnd   string `json:"period_end"`
	Amount      string `json:"amount"`
	Accumulated string `json:"accumulated"`
	Remaining   string `json:"remaining"`
	EntryID     int64  `json:"journal_entry_id"`
}

func toDepreciation(r domain.DepreciationRecord) depreciationResponse {
	return depreciationResponse{
		ID:          r.ID,
		AssetID:     r.AssetID,
		PeriodEnd:   r.PeriodEnd.Format(dateLayout),
		Amount:      amount(r.Amount),
		Accumulated: amount(r.Accumulated),
		Remaining:   amount(r.Remaining),
		EntryID:     r.JournalEntryID,
	}
}

func amounts(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = amount(v)
	}
	return out
}
