package records

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/api/respond"
)

// @Summary      List all records
// @Description  Every record in ascending model ID order.
// @Tags         Records
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/records [get]
func (h *Handlers) List(c *gin.Context) {
	recs, err := h.reg.ListAllRecords(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

// @Summary      Get a record
// @Tags         Records
// @Produce      json
// @Param        modelId  path  int  true  "Model ID"
// @Success      200  {object}  models.AIBOMRecord
// @Failure      404  {object}  map[string]interface{}  "Model not found"
// @Router       /api/v1/records/{modelId} [get]
func (h *Handlers) Get(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	rec, err := h.reg.GetRecord(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Submissions lists the submission ledger, oldest first
// GET /api/v1/records/:modelId/submissions
func (h *Handlers) Submissions(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	subs, err := h.reg.Submissions(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "submissions": subs})
}

// LatestSubmission returns the newest submitted document, or the
// registration document when nothing has been submitted yet
// GET /api/v1/records/:modelId/submissions/latest
func (h *Handlers) LatestSubmission(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	cid, err := h.reg.LatestSubmission(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "cid": cid})
}

// ApprovedSubmissions lists the submissions of an approved record; the list
// is empty for any other status
// GET /api/v1/records/:modelId/submissions/approved
func (h *Handlers) ApprovedSubmissions(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	subs, err := h.reg.ApprovedSubmissions(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "submissions": subs})
}

// GET /api/v1/records/:modelId/vulnerabilities
func (h *Handlers) Vulnerabilities(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	list, err := h.reg.Vulnerabilities(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "vulnerabilities": list})
}

// @Summary      Get one vulnerability
// @Tags         Findings
// @Produce      json
// @Param        modelId  path  int  true  "Model ID"
// @Param        index    path  int  true  "Ledger index"
// @Success      200  {object}  models.VulnerabilityEntry
// @Failure      404  {object}  map[string]interface{}  "Index out of range"
// @Router       /api/v1/records/{modelId}/vulnerabilities/{index} [get]
func (h *Handlers) Vulnerability(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	index, ok := respond.Uint64Param(c, "index")
	if !ok {
		return
	}
	entry, err := h.reg.Vulnerability(c.Request.Context(), modelID, index)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GET /api/v1/records/:modelId/advisories
func (h *Handlers) Advisories(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	list, err := h.reg.Advisories(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "advisories": list})
}

// GET /api/v1/records/:modelId/advisories/:index
func (h *Handlers) Advisory(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	index, ok := respond.Uint64Param(c, "index")
	if !ok {
		return
	}
	entry, err := h.reg.Advisory(c.Request.Context(), modelID, index)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Decisions lists the decision history of a record
// GET /api/v1/records/:modelId/decisions
func (h *Handlers) Decisions(c *gin.Context) {
	modelID, ok := respond.Uint64Param(c, "modelId")
	if !ok {
		return
	}
	list, err := h.reg.Decisions(c.Request.Context(), modelID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "decisions": list})
}
