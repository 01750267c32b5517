package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
	"github.com/garyjia/indent-flow/internal/infrastructure/storage"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	if errors.Is(err, storage.ErrDocumentNotFound) {
		return http.StatusNotFound
	}

	switch domainwf.KindOf(err) {
	case domainwf.KindValidation:
		return http.StatusUnprocessableEntity
	case domainwf.KindNotFound:
		return http.StatusNotFound
	case domainwf.KindConflict:
		return http.StatusConflict
	case domainwf.KindForbidden:
		return http.StatusForbidden
	case domainwf.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status of its kind. Unclassified errors
// are logged and hidden from the client.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	h.logger.Warn("Request rejected", "operation", op, "status", status, "error", err)

	resp := Response{Success: false, Error: err.Error()}
	if kind := domainwf.KindOf(err); kind != "" {
		resp.Kind = string(kind)
	}
	c.JSON(status, resp)
}

// badRequest writes a 400 for malformed input
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}
