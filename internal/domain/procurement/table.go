package procurement

import (
	"sync"

	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// StageTable is the procurement stage-transition table
type StageTable = workflow.Table[Snapshot]

var (
	defaultTable StageTable
	tableOnce    sync.Once
)

// Table returns the shared, immutable procurement table
func Table() StageTable {
	tableOnce.Do(func() {
		defaultTable = BuildTable()
	})
	return defaultTable
}

// BuildTable configures the 21-stage lifecycle.
// Branches: 6 -> {7|9}, 8 -> {9|8 partial}, 13 -> {17|14}. Loop: 14 -> 15 -> 16 -> 11.
func BuildTable() StageTable {
	b := workflow.NewTableBuilder[Snapshot]()

	// Indent scope
	b.Configure(workflow.StageRaiseIndent).
		OwnedBy(workflow.RoleRequester).
		Guard(workflow.ActionComplete, HasValidItems).
		Permit(workflow.ActionComplete, workflow.StageApproveIndent)

	b.Configure(workflow.StageApproveIndent).
		OwnedBy(workflow.RoleHOD).
		Guard(workflow.ActionApprove, HasValidItems).
		Permit(workflow.ActionApprove, workflow.StageFloatRFQ).
		Permit(workflow.ActionReject, workflow.StageNone)

	b.Configure(workflow.StageFloatRFQ).
		OwnedBy(workflow.RolePurchaseExecutive).
		Guard(workflow.ActionComplete, EveryItemQuoted).
		Permit(workflow.ActionComplete, workflow.StageFollowUpQuotations)

	b.Configure(workflow.StageFollowUpQuotations).
		OwnedBy(workflow.RolePurchaseExecutive).
		Guard(workflow.ActionComplete, EveryItemQuoted).
		Guard(workflow.ActionComplete, QuotesComplete).
		Permit(workflow.ActionComplete, workflow.StageComparativeStatement)

	b.Configure(workflow.StageComparativeStatement).
		OwnedBy(workflow.RolePurchaseExecutive).
		Guard(workflow.ActionComplete, EveryItemSelected).
		Permit(workflow.ActionComplete, workflow.StageApproveQuotation)

	b.Configure(workflow.StageApproveQuotation).
		OwnedBy(workflow.RolePurchaseManager).
		Guard(workflow.ActionApprove, EveryItemSelected).
		PermitIf(workflow.ActionApprove, workflow.StageRequestSample, SampleRequired).
		Permit(workflow.ActionApprove, workflow.StageSortVendors)

	b.Configure(workflow.StageRequestSample).
		OwnedBy(workflow.RolePurchaseExecutive).
		Permit(workflow.ActionComplete, workflow.StageInspectSample)

	b.Configure(workflow.StageInspectSample).
		OwnedBy(workflow.RoleQualityInspector).
		Guard(workflow.ActionComplete, InspectionsRecorded).
		PermitIf(workflow.ActionComplete, workflow.StageSortVendors, AllSamplesApproved).
		Permit(workflow.ActionComplete, workflow.StageInspectSample)

	// Stage 9 is advanced by vendor grouping only
	b.Configure(workflow.StageSortVendors).
		OwnedBy(workflow.RolePurchaseExecutive)

	// Purchase order scope
	b.Configure(workflow.StagePlacePO).
		OwnedBy(workflow.RolePurchaseExecutive).
		Guard(workflow.ActionComplete, HasPODocument).
		Permit(workflow.ActionComplete, workflow.StageReceiveMaterial)

	b.Configure(workflow.StageReceiveMaterial).
		OwnedBy(workflow.RoleStoreKeeper).
		Guard(workflow.ActionComplete, MaterialReceived).
		Permit(workflow.ActionComplete, workflow.StageInspectMaterial)

	b.Configure(workflow.StageInspectMaterial).
		OwnedBy(workflow.RoleQualityInspector).
		Permit(workflow.ActionComplete, workflow.StageMaterialApproval)

	b.Configure(workflow.StageMaterialApproval).
		OwnedBy(workflow.RolePurchaseManager).
		Guard(workflow.ActionReject, HasRejectionNote).
		Permit(workflow.ActionApprove, workflow.StageGenerateGRN).
		Permit(workflow.ActionReject, workflow.StageRejectionDecision)

	b.Configure(workflow.StageRejectionDecision).
		OwnedBy(workflow.RolePurchaseManager).
		Guard(workflow.ActionDecide, HasDecision).
		Permit(workflow.ActionDecide, workflow.StageReturnMaterial)

	b.Configure(workflow.StageReturnMaterial).
		OwnedBy(workflow.RoleStoreKeeper).
		Permit(workflow.ActionComplete, workflow.StageResendMaterial)

	b.Configure(workflow.StageResendMaterial).
		OwnedBy(workflow.RolePurchaseExecutive).
		Guard(workflow.ActionComplete, VendorNotified).
		Permit(workflow.ActionComplete, workflow.StageReceiveMaterial)

	b.Configure(workflow.StageGenerateGRN).
		OwnedBy(workflow.RoleStoreKeeper).
		Guard(workflow.ActionComplete, HasGRNDocument).
		Permit(workflow.ActionComplete, workflow.StageMaterialInward)

	b.Configure(workflow.StageMaterialInward).
		OwnedBy(workflow.RoleStoreKeeper).
		Permit(workflow.ActionComplete, workflow.StageVerifyInvoice)

	b.Configure(workflow.StageVerifyInvoice).
		OwnedBy(workflow.RoleAccounts).
		Permit(workflow.ActionComplete, workflow.StageSchedulePayment)

	b.Configure(workflow.StageSchedulePayment).
		OwnedBy(workflow.RoleAccounts).
		Guard(workflow.ActionComplete, HasDueDate).
		Permit(workflow.ActionComplete, workflow.StageReleasePayment)

	b.Configure(workflow.StageReleasePayment).
		OwnedBy(workflow.RoleAccounts).
		Permit(workflow.ActionComplete, workflow.StageNone)

	return b.Build()
}

// CanAdvance reports whether the snapshot may move from its stage to target.
// It is pure: identical snapshots always yield identical answers.
func CanAdvance(snap Snapshot, target workflow.Stage) (bool, string) {
	return Table().CanAdvance(snap.Stage, target, snap)
}
