package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// PurchaseOrder is a vendor-scoped aggregate of approved items from one or more indents
type PurchaseOrder struct {
	ID          string          `json:"id"`
	VendorCode  string          `json:"vendor_code"`
	VendorName  string          `json:"vendor_name,omitempty"`
	Lines       []POLineItem    `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	Status      POStatus        `json:"status"`
	DocumentRef string          `json:"document_ref,omitempty"`
	GRNRef      string          `json:"grn_ref,omitempty"`

	// RejectionNote is the note of the latest material rejection, kept across the loop
	RejectionNote string `json:"rejection_note,omitempty"`

	// RejectionCycles counts entries into the rejection loop; there is no limit
	RejectionCycles int `json:"rejection_cycles"`

	History   StepHistory `json:"history"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	Version        int64 `json:"version"`
	PersistedSteps int   `json:"-"`
}

// POLineItem is one item placed on a purchase order
type POLineItem struct {
	IndentID  string          `json:"indent_id"`
	ItemCode  string          `json:"item_code"`
	ItemName  string          `json:"item_name,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewPOLineItem computes the line amount
func NewPOLineItem(indentID string, item IndentItem, unitPrice decimal.Decimal) POLineItem {
	return POLineItem{
		IndentID:  indentID,
		ItemCode:  item.Code,
		ItemName:  item.Name,
		Quantity:  item.Quantity,
		UnitPrice: unitPrice,
		Amount:    item.Quantity.Mul(unitPrice),
	}
}

// ComputeTotal sums the line amounts
func (po *PurchaseOrder) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range po.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// IndentIDs returns the distinct source indents in line order
func (po *PurchaseOrder) IndentIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, line := range po.Lines {
		if !seen[line.IndentID] {
			seen[line.IndentID] = true
			ids = append(ids, line.IndentID)
		}
	}
	return ids
}

// CurrentStage returns the stage the purchase order is in
func (po *PurchaseOrder) CurrentStage() workflow.Stage {
	return po.History.CurrentStage()
}

// Clone returns a deep copy
func (po *PurchaseOrder) Clone() *PurchaseOrder {
	if po == nil {
		return nil
	}
	c := *po
	c.Lines = append([]POLineItem(nil), po.Lines...)
	c.History = StepHistory{Records: append([]StepRecord(nil), po.History.Records...)}
	return &c
}
