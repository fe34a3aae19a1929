// Package records implements the HTTP handlers for AIBOM records and their
// ledgers. Reads are public. Mutations need an authenticated caller, but the
// decision whether that caller may perform the mutation is left to the
// registry, which reports refusals as authorization errors (403).
package records

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api/respond"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Handlers serves /api/v1/records
type Handlers struct {
	reg *registry.Registry
}

// NewHandlers creates the record handlers
func NewHandlers(reg *registry.Registry) *Handlers {
	return &Handlers{reg: reg}
}

// RegisterRequest registers a new model document
type RegisterRequest struct {
	CID string `json:"cid" binding:"required"`
}

// SubmitRequest submits a document for review
type SubmitRequest struct {
	CID string `json:"cid" binding:"required"`
}

// DecisionRequest records a review decision. Status is either the numeric
// value or the status name.
type DecisionRequest struct {
	Status json.RawMessage `json:"status" binding:"required"`
	Reason string          `json:"reason"`
}

// VulnerabilityRequest reports a post-approval finding
type VulnerabilityRequest struct {
	CID      string `json:"cid" binding:"required"`
	Severity string `json:"severity" binding:"required"`
}

// AdvisoryRequest records a post-approval recommendation
type AdvisoryRequest struct {
	CID    string `json:"cid" binding:"required"`
	Scope  string `json:"scope"`
	Action string `json:"action"`
}

// @Summary      Register a model document
// @Tags         Records
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Registration document"
// @Success      201  {object}  models.AIBOMRecord
// @Failure      400  {object}  map[string]interface{}  "Missing cid"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/records [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "cid is required")
		return
	}
	rec, err := h.reg.Register(c.Request.Context(), middleware.Identity(c), req.CID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// @Summary      Submit a document for review
// @Description  Only the record owner may submit. Allowed from any status. An unknown model is reported as
// @Description  Not owner.
// @Tags         Records
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        modelId  path  int  true  "Model ID"
// @Param        body  body  SubmitRequest  true  "Submitted document"
// @Success      201  {object}  models.SubmissionEntry
// @Failure      403  {object}  map[string]interface{}  "Not owner, also returned for an unknown model"
// @Router       /api/v1/records/{modelId}/submissions [post]
func (h *Handlers) SubmitForReview(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "cid is required")
		return
	}
	entry, err := h.reg.SubmitForReview(c.Request.Context(), middleware.Identity(c), modelID, req.CID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// @Summary      Decide on a review
// @Description  Sets the status to InReview, Approved or Rejected. Requires the decide permission.
// @Tags         Records
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        modelId  path  int  true  "Model ID"
// @Param        body  body  DecisionRequest  true  "Decision"
// @Success      200  {object}  models.AIBOMRecord
// @Failure      403  {object}  map[string]interface{}  "Not principal"
// @Failure      404  {object}  map[string]interface{}  "Model not found"
// @Failure      409  {object}  map[string]interface{}  "Invalid status"
// @Router       /api/v1/records/{modelId}/decisions [post]
func (h *Handlers) Decide(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "status is required")
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": registry.ReasonInvalidStatus,
			"kind":  string(registry.KindInvalidTransition),
		})
		return
	}
	rec, err := h.reg.Decide(c.Request.Context(), middleware.Identity(c), modelID, status, req.Reason)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// parseStatus accepts a JSON number or a status name. Anything that is not a
// known status is reported as not ok, which the caller maps to the same
// rejection the registry gives for a non-decision target.
func parseStatus(raw json.RawMessage) (models.ReviewStatus, bool) {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n > 255 {
			return 0, false
		}
		return models.ReviewStatus(n), true
	}
	st, err := models.ParseReviewStatus(s)
	return st, err == nil
}

// @Summary      Report a vulnerability
// @Tags         Findings
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        modelId  path  int  true  "Model ID"
// @Param        body  body  VulnerabilityRequest  true  "Finding"
// @Success      201  {object}  models.VulnerabilityEntry
// @Failure      400  {object}  map[string]interface{}  "Invalid severity"
// @Failure      403  {object}  map[string]interface{}  "Not principal"
// @Failure      404  {object}  map[string]interface{}  "Model not found"
// @Router       /api/v1/records/{modelId}/vulnerabilities [post]
func (h *Handlers) ReportVulnerability(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	var req VulnerabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "cid and severity are required")
		return
	}
	entry, err := h.reg.ReportVulnerability(c.Request.Context(), middleware.Identity(c), modelID, req.CID, req.Severity)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// @Summary      Record an advisory
// @Tags         Findings
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        modelId  path  int  true  "Model ID"
// @Param        body  body  AdvisoryRequest  true  "Advisory"
// @Success      201  {object}  models.AdvisoryEntry
// @Failure      403  {object}  map[string]interface{}  "Not principal"
// @Failure      404  {object}  map[string]interface{}  "Model not found"
// @Router       /api/v1/records/{modelId}/advisories [post]
func (h *Handlers) RecordAdvisory(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	var req AdvisoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "cid is required")
		return
	}
	entry, err := h.reg.RecordAdvisory(c.Request.Context(), middleware.Identity(c), modelID, req.CID, req.Scope, req.Action)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
