package rowstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Column names shared by the collections
const (
	colOwnerID      = "owner_id"
	colCreatedAt    = "created_at"
	colUpdatedAt    = "updated_at"
	colStatus       = "status"
	colCurrentStage = "current_stage"
	colFinalizeNote = "finalize_note"
	colData         = "data"
	colEntityID     = "entity_id"
	colSeq          = "seq"
)

// Columns lists the header row of every collection, used by tabular adapters
var Columns = map[string][]string{
	entity.CollectionIndents: {
		port.ColumnID, port.ColumnVersion, "title", "department", "requested_by", "sample_required",
		colStatus, colCurrentStage, "items", colCreatedAt, colUpdatedAt,
	},
	entity.CollectionSteps: {
		port.ColumnID, port.ColumnVersion, colEntityID, colSeq, "stage", "role", "action", colStatus,
		"assigned_to", "started_at", "ended_at", "comments", "document_refs",
		"approved_by", "approved_at", "rejected_by", "rejected_at", "rejection_note", "decision",
		"next_step", "previous_step", "supersedes",
	},
	entity.CollectionPurchaseOrders: {
		port.ColumnID, port.ColumnVersion, "vendor_code", "vendor_name", "lines", "total", colStatus,
		colCurrentStage, "document_ref", "grn_ref", "rejection_note", "rejection_cycles", colCreatedAt, colUpdatedAt,
	},
}

func init() {
	for _, collection := range entity.SatelliteCollections {
		Columns[collection] = []string{port.ColumnID, port.ColumnVersion, colOwnerID, colCreatedAt, colFinalizeNote, colData}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseVersion(row port.Row) (int64, error) {
	raw := row[port.ColumnVersion]
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func stageCell(s workflow.Stage) string {
	return s.Format()
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// encodeIndent builds the header row; the version cell carries the version read
func encodeIndent(indent *entity.Indent) (port.Row, error) {
	items, err := encodeJSON(indent.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items of %s: %w", indent.ID, err)
	}
	return port.Row{
		port.ColumnID:      indent.ID,
		port.ColumnVersion: strconv.FormatInt(indent.Version, 10),
		"title":            indent.Title,
		"department":       indent.Department,
		"requested_by":     indent.RequestedBy,
		"sample_required":  strconv.FormatBool(indent.SampleRequired),
		colStatus:          string(indent.Status),
		colCurrentStage:    stageCell(indent.CurrentStage()),
		"items":            items,
		colCreatedAt:       formatTime(indent.CreatedAt),
		colUpdatedAt:       formatTime(indent.UpdatedAt),
	}, nil
}

func decodeIndent(row port.Row) (*entity.Indent, error) {
	indent := &entity.Indent{
		ID:          row.ID(),
		Title:       row["title"],
		Department:  row["department"],
		RequestedBy: row["requested_by"],
		Status:      entity.IndentStatus(row[colStatus]),
	}

	var err error
	if indent.Version, err = parseVersion(row); err != nil {
		return nil, fmt.Errorf("indent %s: bad version: %w", indent.ID, err)
	}
	if raw := row["sample_required"]; raw != "" {
		if indent.SampleRequired, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("indent %s: bad sample_required: %w", indent.ID, err)
		}
	}
	if err := decodeJSON(row["items"], &indent.Items); err != nil {
		return nil, fmt.Errorf("indent %s: bad items: %w", indent.ID, err)
	}
	if indent.CreatedAt, err = parseTime(row[colCreatedAt]); err != nil {
		return nil, fmt.Errorf("indent %s: bad created_at: %w", indent.ID, err)
	}
	if indent.UpdatedAt, err = parseTime(row[colUpdatedAt]); err != nil {
		return nil, fmt.Errorf("indent %s: bad updated_at: %w", indent.ID, err)
	}
	return indent, nil
}

func encodeStep(rec entity.StepRecord) (port.Row, error) {
	refs := ""
	if len(rec.DocumentRefs) > 0 {
		var err error
		if refs, err = encodeJSON(rec.DocumentRefs); err != nil {
			return nil, fmt.Errorf("encode document refs of step %s: %w", rec.ID, err)
		}
	}
	supersedes := ""
	if rec.Supersedes > 0 {
		supersedes = strconv.Itoa(rec.Supersedes)
	}
	return port.Row{
		port.ColumnID:    rec.ID,
		colEntityID:      rec.EntityID,
		colSeq:           strconv.Itoa(rec.Seq),
		"stage":          stageCell(rec.Stage),
		"role":           string(rec.Role),
		"action":         rec.Action,
		colStatus:        string(rec.Status),
		"assigned_to":    rec.AssignedTo,
		"started_at":     formatTime(rec.StartedAt),
		"ended_at":       formatTimePtr(rec.EndedAt),
		"comments":       rec.Comments,
		"document_refs":  refs,
		"approved_by":    rec.ApprovedBy,
		"approved_at":    formatTimePtr(rec.ApprovedAt),
		"rejected_by":    rec.RejectedBy,
		"rejected_at":    formatTimePtr(rec.RejectedAt),
		"rejection_note": rec.RejectionNote,
		"decision":       rec.Decision,
		"next_step":      stageCell(rec.NextStep),
		"previous_step":  stageCell(rec.PreviousStep),
		"supersedes":     supersedes,
	}, nil
}

func decodeStep(row port.Row) (entity.StepRecord, error) {
	rec := entity.StepRecord{
		ID:            row.ID(),
		EntityID:      row[colEntityID],
		Role:          workflow.Role(row["role"]),
		Action:        row["action"],
		Status:        workflow.StepStatus(row[colStatus]),
		AssignedTo:    row["assigned_to"],
		Comments:      row["comments"],
		ApprovedBy:    row["approved_by"],
		RejectedBy:    row["rejected_by"],
		RejectionNote: row["rejection_note"],
		Decision:      row["decision"],
	}

	var err error
	fail := func(field string, err error) (entity.StepRecord, error) {
		return entity.StepRecord{}, fmt.Errorf("step %s: bad %s: %w", rec.ID, field, err)
	}

	if rec.Seq, err = parseInt(row[colSeq]); err != nil {
		return fail(colSeq, err)
	}
	if rec.Stage, err = workflow.ParseStage(row["stage"]); err != nil {
		return fail("stage", err)
	}
	if rec.NextStep, err = workflow.ParseStage(row["next_step"]); err != nil {
		return fail("next_step", err)
	}
	if rec.PreviousStep, err = workflow.ParseStage(row["previous_step"]); err != nil {
		return fail("previous_step", err)
	}
	if rec.Supersedes, err = parseInt(row["supersedes"]); err != nil {
		return fail("supersedes", err)
	}
	if rec.StartedAt, err = parseTime(row["started_at"]); err != nil {
		return fail("started_at", err)
	}
	if rec.EndedAt, err = parseTimePtr(row["ended_at"]); err != nil {
		return fail("ended_at", err)
	}
	if rec.ApprovedAt, err = parseTimePtr(row["approved_at"]); err != nil {
		return fail("approved_at", err)
	}
	if rec.RejectedAt, err = parseTimePtr(row["rejected_at"]); err != nil {
		return fail("rejected_at", err)
	}
	if err = decodeJSON(row["document_refs"], &rec.DocumentRefs); err != nil {
		return fail("document_refs", err)
	}
	return rec, nil
}

func encodePurchaseOrder(po *entity.PurchaseOrder) (port.Row, error) {
	lines, err := encodeJSON(po.Lines)
	if err != nil {
		return nil, fmt.Errorf("encode lines of %s: %w", po.ID, err)
	}
	return port.Row{
		port.ColumnID:      po.ID,
		port.ColumnVersion: strconv.FormatInt(po.Version, 10),
		"vendor_code":      po.VendorCode,
		"vendor_name":      po.VendorName,
		"lines":            lines,
		"total":            po.Total.String(),
		colStatus:          string(po.Status),
		colCurrentStage:    stageCell(po.CurrentStage()),
		"document_ref":     po.DocumentRef,
		"grn_ref":          po.GRNRef,
		"rejection_note":   po.RejectionNote,
		"rejection_cycles": strconv.Itoa(po.RejectionCycles),
		colCreatedAt:       formatTime(po.CreatedAt),
		colUpdatedAt:       formatTime(po.UpdatedAt),
	}, nil
}

func decodePurchaseOrder(row port.Row) (*entity.PurchaseOrder, error) {
	po := &entity.PurchaseOrder{
		ID:            row.ID(),
		VendorCode:    row["vendor_code"],
		VendorName:    row["vendor_name"],
		Status:        entity.POStatus(row[colStatus]),
		DocumentRef:   row["document_ref"],
		GRNRef:        row["grn_ref"],
		RejectionNote: row["rejection_note"],
	}

	var err error
	if po.Version, err = parseVersion(row); err != nil {
		return nil, fmt.Errorf("purchase order %s: bad version: %w", po.ID, err)
	}
	if err = decodeJSON(row["lines"], &po.Lines); err != nil {
		return nil, fmt.Errorf("purchase order %s: bad lines: %w", po.ID, err)
	}
	if po.Total, err = parseDecimal(row["total"]); err != nil {
		return nil, fmt.Errorf("purchase order %s: bad total: %w", po.ID, err)
	}
	if po.RejectionCycles, err = parseInt(row["rejection_cycles"]); err != nil {
		return nil, fmt.Errorf("purchase order %s: bad rejection_cycles: %w", po.ID, err)
	}
	if po.CreatedAt, err = parseTime(row[colCreatedAt]); err != nil {
		return nil, fmt.Errorf("purchase order %s: bad created_at: %w", po.ID, err)
	}
	if po.UpdatedAt, err = parseTime(row[colUpdatedAt]); err != nil {
		return nil, fmt.Errorf("purchase order %s: bad updated_at: %w", po.ID, err)
	}
	return po, nil
}

// satelliteCreatedAt extracts the creation time of a satellite record
func satelliteCreatedAt(rec entity.SatelliteRecord) time.Time {
	switch r := rec.(type) {
	case entity.MaterialInspection:
		return r.CreatedAt
	case entity.ReturnRecord:
		return r.CreatedAt
	case entity.GRN:
		return r.CreatedAt
	case entity.MaterialInward:
		return r.CreatedAt
	case entity.PaymentSchedule:
		return r.CreatedAt
	}
	return time.Time{}
}

func encodeSatellite(rec entity.SatelliteRecord) (port.Row, error) {
	data, err := encodeJSON(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s record %s: %w", rec.Collection(), rec.RecordID(), err)
	}
	return port.Row{
		port.ColumnID: rec.RecordID(),
		colOwnerID:    rec.OwnerID(),
		colCreatedAt:  formatTime(satelliteCreatedAt(rec)),
		colData:       data,
	}, nil
}

func decodeSatellite(collection string, row port.Row) (entity.SatelliteRecord, error) {
	var (
		rec entity.SatelliteRecord
		err error
	)
	switch collection {
	case entity.CollectionMaterialInspections:
		var r entity.MaterialInspection
		err = decodeJSON(row[colData], &r)
		r.FinalizeNote = row[colFinalizeNote]
		rec = r
	case entity.CollectionReturnHistory:
		var r entity.ReturnRecord
		err = decodeJSON(row[colData], &r)
		r.FinalizeNote = row[colFinalizeNote]
		rec = r
	case entity.CollectionGRNs:
		var r entity.GRN
		err = decodeJSON(row[colData], &r)
		r.FinalizeNote = row[colFinalizeNote]
		rec = r
	case entity.CollectionMaterialInward:
		var r entity.MaterialInward
		err = decodeJSON(row[colData], &r)
		r.FinalizeNote = row[colFinalizeNote]
		rec = r
	case entity.CollectionPaymentSchedules:
		var r entity.PaymentSchedule
		err = decodeJSON(row[colData], &r)
		r.FinalizeNote = row[colFinalizeNote]
		rec = r
	default:
		return nil, fmt.Errorf("unknown satellite collection %q", collection)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s record %s: %w", collection, row.ID(), err)
	}
	return rec, nil
}
