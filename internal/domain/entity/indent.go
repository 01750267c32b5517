package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Indent is a purchase requisition raised by a store or department
type Indent struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Department     string       `json:"department,omitempty"`
	RequestedBy    string       `json:"requested_by"`
	SampleRequired bool         `json:"sample_required"`
	Status         IndentStatus `json:"status"`
	Items          []IndentItem `json:"items"`
	History        StepHistory  `json:"history"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`

	// Version is the row version read from the store; writes are rejected if it moved
	Version int64 `json:"version"`

	// PersistedSteps is the number of history records already stored
	PersistedSteps int `json:"-"`
}

// IndentItem is one requested line of an indent
type IndentItem struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit,omitempty"`
	Specification  string          `json:"specification,omitempty"`
	Quotes         []VendorQuote   `json:"quotes,omitempty"`
	SelectedVendor string          `json:"selected_vendor,omitempty"`
	GroupedPO      string          `json:"grouped_po,omitempty"`
}

// VendorQuote is one vendor's offer for an item
type VendorQuote struct {
	VendorCode       string           `json:"vendor_code"`
	VendorName       string           `json:"vendor_name,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	DeliveryTerms    string           `json:"delivery_terms,omitempty"`
	LeadTimeDays     int              `json:"lead_time_days,omitempty"`
	InspectionStatus InspectionStatus `json:"inspection_status,omitempty"`
	InspectionNote   string           `json:"inspection_note,omitempty"`
}

// CurrentStage returns the stage the indent is in
func (i *Indent) CurrentStage() workflow.Stage {
	return i.History.CurrentStage()
}

// Item returns a pointer to the item with the given code
func (i *Indent) Item(code string) *IndentItem {
	for idx := range i.Items {
		if i.Items[idx].Code == code {
			return &i.Items[idx]
		}
	}
	return nil
}

// AllGrouped reports whether every item has been placed on a purchase order
func (i *Indent) AllGrouped() bool {
	if len(i.Items) == 0 {
		return false
	}
	for _, item := range i.Items {
		if item.GroupedPO == "" {
			return false
		}
	}
	return true
}

// PurchaseOrderIDs returns the distinct purchase orders the items were grouped into
func (i *Indent) PurchaseOrderIDs() []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, item := range i.Items {
		if item.GroupedPO != "" && !seen[item.GroupedPO] {
			seen[item.GroupedPO] = true
			ids = append(ids, item.GroupedPO)
		}
	}
	return ids
}

// Clone returns a deep copy so guards and planners can work on a detached snapshot
func (i *Indent) Clone() *Indent {
	if i == nil {
		return nil
	}
	c := *i
	c.Items = make([]IndentItem, len(i.Items))
	for idx, item := range i.Items {
		item.Quotes = append([]VendorQuote(nil), item.Quotes...)
		c.Items[idx] = item
	}
	c.History = StepHistory{Records: append([]StepRecord(nil), i.History.Records...)}
	return &c
}

// Quote returns the quote of the given vendor
func (it *IndentItem) Quote(vendorCode string) *VendorQuote {
	for idx := range it.Quotes {
		if it.Quotes[idx].VendorCode == vendorCode {
			return &it.Quotes[idx]
		}
	}
	return nil
}

// SelectedQuote returns the quote chosen as best, if any
func (it *IndentItem) SelectedQuote() *VendorQuote {
	if it.SelectedVendor == "" {
		return nil
	}
	return it.Quote(it.SelectedVendor)
}

// LowestQuote returns the cheapest quote, ties broken by shorter lead time
func (it *IndentItem) LowestQuote() *VendorQuote {
	var best *VendorQuote
	for idx := range it.Quotes {
		q := &it.Quotes[idx]
		if best == nil || q.Price.LessThan(best.Price) ||
			(q.Price.Equal(best.Price) && q.LeadTimeDays < best.LeadTimeDays) {
			best = q
		}
	}
	return best
}

// AddOrReplaceQuote stores a quote, replacing an earlier quote of the same vendor
func (it *IndentItem) AddOrReplaceQuote(q VendorQuote) {
	if q.InspectionStatus == "" {
		q.InspectionStatus = InspectionPending
	}
	if existing := it.Quote(q.VendorCode); existing != nil {
		*existing = q
		return
	}
	it.Quotes = append(it.Quotes, q)
}
