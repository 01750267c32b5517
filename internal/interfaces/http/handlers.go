package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/indent-flow/internal/application/workflow"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
	"github.com/garyjia/indent-flow/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// StageResponse describes one workflow stage
type StageResponse struct {
	Stage domainwf.Stage `json:"stage"`
	Name  string         `json:"name"`
	Role  domainwf.Role  `json:"role"`
	Scope string         `json:"scope"`
}

// CommentsRequest carries optional comments for a stage completion
type CommentsRequest struct {
	Comments string `json:"comments"`
}

// QuotesRequest adds quotes for one item
type QuotesRequest struct {
	ItemCode string               `json:"item_code" binding:"required"`
	Quotes   []entity.VendorQuote `json:"quotes"`
}

// SelectionRequest picks the vendor for one item
type SelectionRequest struct {
	ItemCode   string `json:"item_code" binding:"required"`
	VendorCode string `json:"vendor_code" binding:"required"`
}

// TransitionRequest applies an action with its stage payload
type TransitionRequest struct {
	Action  domainwf.Action     `json:"action" binding:"required"`
	Payload procurement.Payload `json:"payload"`
}

// RejectRequest records a material rejection
type RejectRequest struct {
	Note string `json:"note"`
}

// DecisionRequest records the resend or return decision
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comments string `json:"comments"`
}

// ReturnRequest records return details
type ReturnRequest struct {
	Details string `json:"details"`
}

// ResendRequest confirms the vendor was asked to resend
type ResendRequest struct {
	EmailSent bool   `json:"email_sent"`
	Comments  string `json:"comments"`
}

// FinalizeRequest attaches a finalize note to a record
type FinalizeRequest struct {
	Note string `json:"note"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.services.Health != nil {
		healthy, components := h.services.Health()
		response.Components = components
		if !healthy {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListStages handles GET /api/stages
func (h *Handlers) ListStages(c *gin.Context) {
	table := procurement.Table()
	stages := make([]StageResponse, 0, len(domainwf.AllStages()))
	for _, stage := range domainwf.AllStages() {
		role, _ := table.Role(stage)
		scope := "indent"
		if stage.IsPurchaseOrderScoped() {
			scope = "purchase_order"
		}
		stages = append(stages, StageResponse{Stage: stage, Name: stage.Name(), Role: role, Scope: scope})
	}
	ok(c, stages)
}

// CreateIndent handles POST /api/indents
func (h *Handlers) CreateIndent(c *gin.Context) {
	var draft workflow.IndentDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "invalid indent: "+err.Error())
		return
	}

	indent, err := h.services.Indents.CreateIndent(c.Request.Context(), draft, actorFrom(c))
	if err != nil {
		h.respondError(c, "create_indent", err)
		return
	}
	created(c, indent)
}

// ListIndents handles GET /api/indents
func (h *Handlers) ListIndents(c *gin.Context) {
	indents, err := h.services.Indents.ListIndents(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_indents", err)
		return
	}
	ok(c, indents)
}

// GetIndent handles GET /api/indents/:id
func (h *Handlers) GetIndent(c *gin.Context) {
	indent, err := h.services.Indents.GetIndent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_indent", err)
		return
	}
	ok(c, indent)
}

// DeleteIndent handles DELETE /api/indents/:id
func (h *Handlers) DeleteIndent(c *gin.Context) {
	if err := h.services.Indents.DeleteIndent(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		h.respondError(c, "delete_indent", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitIndent handles POST /api/indents/:id/submit
func (h *Handlers) SubmitIndent(c *gin.Context) {
	var req CommentsRequest
	if !bindOptional(c, &req) {
		return
	}

	rec, err := h.services.Indents.SubmitIndent(c.Request.Context(), c.Param("id"), utils.SanitizeString(req.Comments), actorFrom(c))
	if err != nil {
		h.respondError(c, "submit_indent", err)
		return
	}
	ok(c, rec)
}

// AddQuotes handles POST /api/indents/:id/quotes
func (h *Handlers) AddQuotes(c *gin.Context) {
	var req QuotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid quotes: "+err.Error())
		return
	}

	indent, err := h.services.Indents.AddQuotes(c.Request.Context(), c.Param("id"), req.ItemCode, req.Quotes, actorFrom(c))
	if err != nil {
		h.respondError(c, "add_quotes", err)
		return
	}
	ok(c, indent)
}

// SelectVendor handles POST /api/indents/:id/selection
func (h *Handlers) SelectVendor(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid selection: "+err.Error())
		return
	}

	indent, err := h.services.Indents.SelectVendor(c.Request.Context(), c.Param("id"), req.ItemCode, req.VendorCode, actorFrom(c))
	if err != nil {
		h.respondError(c, "select_vendor", err)
		return
	}
	ok(c, indent)
}

// Transition handles POST /api/transitions/:id
func (h *Handlers) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid transition: "+err.Error())
		return
	}
	if !req.Action.IsValid() {
		badRequest(c, "unknown action: "+string(req.Action))
		return
	}

	rec, err := h.services.Indents.Transition(c.Request.Context(), c.Param("id"), req.Action, req.Payload, actorFrom(c))
	if err != nil {
		h.respondError(c, "transition", err)
		return
	}
	ok(c, rec)
}

// PreviewGrouping handles GET /api/grouping/preview
func (h *Handlers) PreviewGrouping(c *gin.Context) {
	plan, err := h.services.Indents.PreviewGrouping(c.Request.Context())
	if err != nil {
		h.respondError(c, "preview_grouping", err)
		return
	}
	ok(c, plan)
}

// GroupItems handles POST /api/grouping
func (h *Handlers) GroupItems(c *gin.Context) {
	result, err := h.services.Indents.GroupItems(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, "group_items", err)
		return
	}
	ok(c, result)
}

// ListPurchaseOrders handles GET /api/purchase-orders
func (h *Handlers) ListPurchaseOrders(c *gin.Context) {
	pos, err := h.services.PurchaseOrders.ListPurchaseOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_purchase_orders", err)
		return
	}
	ok(c, pos)
}

// GetPurchaseOrder handles GET /api/purchase-orders/:id
func (h *Handlers) GetPurchaseOrder(c *gin.Context) {
	po, err := h.services.PurchaseOrders.GetPurchaseOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_purchase_order", err)
		return
	}
	ok(c, po)
}

// PlacePurchaseOrder handles POST /api/purchase-orders/:id/place
func (h *Handlers) PlacePurchaseOrder(c *gin.Context) {
	var req CommentsRequest
	if !bindOptional(c, &req) {
		return
	}

	rec, err := h.services.PurchaseOrders.PlacePurchaseOrder(c.Request.Context(), c.Param("id"), utils.SanitizeString(req.Comments), actorFrom(c))
	if err != nil {
		h.respondError(c, "place_purchase_order", err)
		return
	}
	ok(c, rec)
}

// GenerateGRN handles POST /api/purchase-orders/:id/grn
func (h *Handlers) GenerateGRN(c *gin.Context) {
	var req CommentsRequest
	if !bindOptional(c, &req) {
		return
	}

	rec, err := h.services.PurchaseOrders.GenerateGRN(c.Request.Context(), c.Param("id"), utils.SanitizeString(req.Comments), actorFrom(c))
	if err != nil {
		h.respondError(c, "generate_grn", err)
		return
	}
	ok(c, rec)
}

// RejectMaterial handles POST /api/purchase-orders/:id/reject
func (h *Handlers) RejectMaterial(c *gin.Context) {
	var req RejectRequest
	if !bindOptional(c, &req) {
		return
	}

	rec, err := h.services.PurchaseOrders.RejectMaterial(c.Request.Context(), c.Param("id"), utils.SanitizeString(req.Note), actorFrom(c))
	if err != nil {
		h.respondError(c, "reject_material", err)
		return
	}
	ok(c, rec)
}

// DecideRejection handles POST /api/purchase-orders/:id/decision
func (h *Handlers) DecideRejection(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid decision: "+err.Error())
		return
	}

	rec, err := h.services.PurchaseOrders.DecideRejection(c.Request.Context(), c.Param("id"), req.Decision, utils.SanitizeString(req.Comments), actorFrom(c))
	if err != nil {
		h.respondError(c, "decide_rejection", err)
		return
	}
	ok(c, rec)
}

// ReturnMaterial handles POST /api/purchase-orders/:id/return
func (h *Handlers) ReturnMaterial(c *gin.Context) {
	var req ReturnRequest
	if !bindOptional(c, &req) {
		return
	}

	rec, err := h.services.PurchaseOrders.ReturnMaterial(c.Request.Context(), c.Param("id"), utils.SanitizeString(req.Details), actorFrom(c))
	if err != nil {
		h.respondError(c, "return_material", err)
		return
	}
	ok(c, rec)
}

// ResendMaterial handles POST /api/purchase-orders/:id/resend
func (h *Handlers) ResendMaterial(c *gin.Context) {
	var req ResendRequest
	if !bindOptional(c, &req) {
		return
	}

	rec, err := h.services.PurchaseOrders.ResendMaterial(c.Request.Context(), c.Param("id"), req.EmailSent, utils.SanitizeString(req.Comments), actorFrom(c))
	if err != nil {
		h.respondError(c, "resend_material", err)
		return
	}
	ok(c, rec)
}

// ListRecords handles GET /api/purchase-orders/:id/records/:collection
func (h *Handlers) ListRecords(c *gin.Context) {
	records, err := h.services.Records.ListRecords(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_records", err)
		return
	}
	ok(c, records)
}

// FinalizeRecord handles POST /api/records/:collection/:recordID/finalize
func (h *Handlers) FinalizeRecord(c *gin.Context) {
	var req FinalizeRequest
	if !bindOptional(c, &req) {
		return
	}

	err := h.services.Records.FinalizeRecord(c.Request.Context(), c.Param("collection"), c.Param("recordID"), utils.SanitizeString(req.Note), actorFrom(c))
	if err != nil {
		h.respondError(c, "finalize_record", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Dashboard handles GET /api/dashboard
func (h *Handlers) Dashboard(c *gin.Context) {
	dashboard, err := h.services.Dashboard.Dashboard(c.Request.Context())
	if err != nil {
		h.respondError(c, "dashboard", err)
		return
	}
	ok(c, dashboard)
}

// MyWork handles GET /api/work
func (h *Handlers) MyWork(c *gin.Context) {
	items, err := h.services.Dashboard.WorkFor(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, "work_for", err)
		return
	}
	ok(c, items)
}

// RecentLinks handles GET /api/notifications/links
func (h *Handlers) RecentLinks(c *gin.Context) {
	if h.services.Links == nil {
		ok(c, []interface{}{})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return
	}
	ok(c, h.services.Links.Recent(limit))
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	if h.services.Documents == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "documents are not available"})
		return
	}

	doc, err := h.services.Documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_document", err)
		return
	}
	ok(c, doc)
}

// bindOptional binds a JSON body when one is sent; an empty body leaves req zero
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
