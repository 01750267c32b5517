package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SatelliteRecord is an append-only log entry created as a side effect of a stage.
// Records are never mutated after creation except to attach a finalize note once.
type SatelliteRecord interface {
	RecordID() string
	OwnerID() string
	Collection() string
}

// MaterialInspection logs material received against a purchase order (Receive Material)
type MaterialInspection struct {
	ID               string          `json:"id"`
	POID             string          `json:"po_id"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	ChallanRef       string          `json:"challan_ref,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Cycle            int             `json:"cycle"`
	RecordedBy       string          `json:"recorded_by"`
	CreatedAt        time.Time       `json:"created_at"`
	FinalizeNote     string          `json:"finalize_note,omitempty"`
}

func (r MaterialInspection) RecordID() string   { return r.ID }
func (r MaterialInspection) OwnerID() string    { return r.POID }
func (r MaterialInspection) Collection() string { return CollectionMaterialInspections }

// ReturnRecord logs material sent back to the vendor (Return Material)
type ReturnRecord struct {
	ID            string    `json:"id"`
	POID          string    `json:"po_id"`
	VendorCode    string    `json:"vendor_code"`
	RejectionNote string    `json:"rejection_note"`
	Decision      string    `json:"decision"`
	Details       string    `json:"details,omitempty"`
	Cycle         int       `json:"cycle"`
	RecordedBy    string    `json:"recorded_by"`
	CreatedAt     time.Time `json:"created_at"`
	FinalizeNote  string    `json:"finalize_note,omitempty"`
}

func (r ReturnRecord) RecordID() string   { return r.ID }
func (r ReturnRecord) OwnerID() string    { return r.POID }
func (r ReturnRecord) Collection() string { return CollectionReturnHistory }

// GRN is the goods receipt note for a purchase order (Generate GRN)
type GRN struct {
	ID           string       `json:"id"`
	POID         string       `json:"po_id"`
	DocumentRef  string       `json:"document_ref"`
	Lines        []POLineItem `json:"lines"`
	RecordedBy   string       `json:"recorded_by"`
	CreatedAt    time.Time    `json:"created_at"`
	FinalizeNote string       `json:"finalize_note,omitempty"`
}

func (r GRN) RecordID() string   { return r.ID }
func (r GRN) OwnerID() string    { return r.POID }
func (r GRN) Collection() string { return CollectionGRNs }

// MaterialInward is the stock inward entry made after the GRN (Material Inward Entry).
// Its creation is ancillary: a failed write never blocks the stage.
type MaterialInward struct {
	ID           string    `json:"id"`
	POID         string    `json:"po_id"`
	GRNRef       string    `json:"grn_ref"`
	Location     string    `json:"location,omitempty"`
	RecordedBy   string    `json:"recorded_by"`
	CreatedAt    time.Time `json:"created_at"`
	FinalizeNote string    `json:"finalize_note,omitempty"`
}

func (r MaterialInward) RecordID() string   { return r.ID }
func (r MaterialInward) OwnerID() string    { return r.POID }
func (r MaterialInward) Collection() string { return CollectionMaterialInward }

// PaymentSchedule plans the vendor payment (Schedule Payment)
type PaymentSchedule struct {
	ID           string          `json:"id"`
	POID         string          `json:"po_id"`
	VendorCode   string          `json:"vendor_code"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      time.Time       `json:"due_date"`
	Terms        string          `json:"terms,omitempty"`
	RecordedBy   string          `json:"recorded_by"`
	CreatedAt    time.Time       `json:"created_at"`
	FinalizeNote string          `json:"finalize_note,omitempty"`
}

func (r PaymentSchedule) RecordID() string   { return r.ID }
func (r PaymentSchedule) OwnerID() string    { return r.POID }
func (r PaymentSchedule) Collection() string { return CollectionPaymentSchedules }
