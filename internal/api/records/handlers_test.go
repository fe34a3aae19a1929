package records

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/registry/registrytest"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const identityHeader = "X-Test-Identity"

// fakeAuth stands in for the authenticator: the caller identity comes from a
// test header.
func fakeAuth(c *gin.Context) {
	if id := c.GetHeader(identityHeader); id != "" {
		c.Set(middleware.ContextIdentity, registry.NormalizeIdentity(id))
	}
	c.Next()
}

func newRouter(t *testing.T) (*gin.Engine, *registrytest.Fixture) {
	t.Helper()
	f := registrytest.NewFixture(t, registry.NewMemoryStore())
	h := NewHandlers(f.Registry)

	r := gin.New()
	r.Use(fakeAuth)
	g := r.Group("/api/v1/records")
	g.GET("", h.List)
	g.POST("", h.Register)
	g.GET("/:modelId", h.Get)
	g.GET("/:modelId/submissions", h.Submissions)
	g.POST("/:modelId/submissions", h.SubmitForReview)
	g.GET("/:modelId/submissions/latest", h.LatestSubmission)
	g.GET("/:modelId/submissions/approved", h.ApprovedSubmissions)
	g.GET("/:modelId/decisions", h.Decisions)
	g.POST("/:modelId/decisions", h.Decide)
	g.GET("/:modelId/vulnerabilities", h.Vulnerabilities)
	g.POST("/:modelId/vulnerabilities", h.ReportVulnerability)
	g.GET("/:modelId/vulnerabilities/:index", h.Vulnerability)
	g.GET("/:modelId/advisories", h.Advisories)
	g.POST("/:modelId/advisories", h.RecordAdvisory)
	g.GET("/:modelId/advisories/:index", h.Advisory)
	return r, f
}

func do(r *gin.Engine, method, path, identity string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set(identityHeader, identity)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, reason string, kind registry.Kind) {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
	body := decode[map[string]string](t, w)
	assert.Equal(t, reason, body["error"])
	assert.Equal(t, string(kind), body["kind"])
}

func register(t *testing.T, r *gin.Engine, owner, cid string) models.AIBOMRecord {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/records", owner, RegisterRequest{CID: cid})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	return decode[models.AIBOMRecord](t, w)
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	r, _ := newRouter(t)

	rec := register(t, r, registrytest.Developer, "QmReg")
	assert.Equal(t, uint64(0), rec.ModelID)
	assert.Equal(t, "QmReg", rec.CID)
	assert.Equal(t, models.StatusDraft, rec.Status)
	assert.Equal(t, registry.NormalizeIdentity(registrytest.Developer), rec.Owner)

	second := register(t, r, registrytest.Attacker, "QmOther")
	assert.Equal(t, uint64(1), second.ModelID)
}

func TestRegister_MissingCID(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodPost, "/api/v1/records", registrytest.Developer, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitForReview(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	w := do(r, http.MethodPost, "/api/v1/records/0/submissions", registrytest.Developer, SubmitRequest{CID: "QmSub"})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	entry := decode[models.SubmissionEntry](t, w)
	assert.Equal(t, "QmSub", entry.CID)

	w = do(r, http.MethodGet, "/api/v1/records/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusSubmitted, decode[models.AIBOMRecord](t, w).Status)
}

func TestSubmitForReview_Errors(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	tests := []struct {
		name     string
		path     string
		identity string
		status   int
		reason   string
		kind     registry.Kind
	}{
		{"not owner", "/api/v1/records/0/submissions", registrytest.Attacker, http.StatusForbidden, registry.ReasonNotOwner, registry.KindAuthorization},
		{"unknown model reads as not owner", "/api/v1/records/9/submissions", registrytest.Developer, http.StatusForbidden, registry.ReasonNotOwner, registry.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, tt.identity, SubmitRequest{CID: "QmX"})
			requireError(t, w, tt.status, tt.reason, tt.kind)
		})
	}

	t.Run("non-numeric model id", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/records/abc/submissions", registrytest.Developer, SubmitRequest{CID: "QmX"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecide(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	tests := []struct {
		name   string
		status any
		want   models.ReviewStatus
	}{
		{"numeric", 2, models.StatusInReview},
		{"name", "Approved", models.StatusApproved},
		{"numeric string", "4", models.StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/records/0/decisions", registrytest.Principal,
				map[string]any{"status": tt.status, "reason": "checked"})
			require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
			assert.Equal(t, tt.want, decode[models.AIBOMRecord](t, w).Status)
		})
	}

	w := do(r, http.MethodGet, "/api/v1/records/0/decisions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Decisions []models.ReviewDecision `json:"decisions"`
	}](t, w)
	assert.Len(t, body.Decisions, 3)
}

func TestDecide_Errors(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	tests := []struct {
		name     string
		identity string
		status   any
		code     int
		reason   string
		kind     registry.Kind
	}{
		{"developer", registrytest.Developer, 3, http.StatusForbidden, registry.ReasonNotPrincipal, registry.KindAuthorization},
		{"draft target", registrytest.Principal, 0, http.StatusConflict, registry.ReasonInvalidStatus, registry.KindInvalidTransition},
		{"submitted target", registrytest.Principal, "Submitted", http.StatusConflict, registry.ReasonInvalidStatus, registry.KindInvalidTransition},
		{"out of range", registrytest.Principal, 7, http.StatusConflict, registry.ReasonInvalidStatus, registry.KindInvalidTransition},
		{"unknown name", registrytest.Principal, "Shelved", http.StatusConflict, registry.ReasonInvalidStatus, registry.KindInvalidTransition},
		{"too large", registrytest.Principal, 256, http.StatusConflict, registry.ReasonInvalidStatus, registry.KindInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/records/0/decisions", tt.identity, map[string]any{"status": tt.status})
			requireError(t, w, tt.code, tt.reason, tt.kind)
		})
	}

	t.Run("missing status", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/records/0/decisions", registrytest.Principal, `{"reason":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFindings(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	w := do(r, http.MethodPost, "/api/v1/records/0/vulnerabilities", registrytest.Supervisor,
		VulnerabilityRequest{CID: "QmVuln", Severity: "High"})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/records/0/advisories", registrytest.Principal,
		AdvisoryRequest{CID: "QmAdv", Scope: "EU", Action: "restrict"})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/records/0/vulnerabilities/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	vuln := decode[models.VulnerabilityEntry](t, w)
	assert.Equal(t, "QmVuln", vuln.CID)
	assert.Equal(t, models.SeverityHigh, vuln.Severity)

	w = do(r, http.MethodGet, "/api/v1/records/0/advisories/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QmAdv", decode[models.AdvisoryEntry](t, w).CID)

	w = do(r, http.MethodGet, "/api/v1/records/0/vulnerabilities/1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodGet, "/api/v1/records/0/advisories/5", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindings_Errors(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	w := do(r, http.MethodPost, "/api/v1/records/0/vulnerabilities", registrytest.Developer,
		VulnerabilityRequest{CID: "QmVuln", Severity: "High"})
	requireError(t, w, http.StatusForbidden, registry.ReasonNotPrincipal, registry.KindAuthorization)

	w = do(r, http.MethodPost, "/api/v1/records/0/vulnerabilities", registrytest.Principal,
		VulnerabilityRequest{CID: "QmVuln", Severity: "Apocalyptic"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/records/0/vulnerabilities", registrytest.Principal, `{"cid":"QmVuln"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/records/0/vulnerabilities", registrytest.Regulator,
		VulnerabilityRequest{CID: "QmVuln", Severity: "Low"})
	requireError(t, w, http.StatusForbidden, registry.ReasonNotPrincipal, registry.KindAuthorization)

	w = do(r, http.MethodPost, "/api/v1/records/0/advisories", registrytest.Regulator, AdvisoryRequest{CID: "QmAdv"})
	requireError(t, w, http.StatusForbidden, registry.ReasonNotPrincipal, registry.KindAuthorization)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func TestList(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodGet, "/api/v1/records", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[struct {
		Records []models.AIBOMRecord `json:"records"`
		Count   int                  `json:"count"`
	}](t, w)
	assert.NotNil(t, empty.Records)
	assert.Zero(t, empty.Count)

	register(t, r, registrytest.Developer, "QmA")
	register(t, r, registrytest.Attacker, "QmB")

	w = do(r, http.MethodGet, "/api/v1/records", "", nil)
	body := decode[struct {
		Records []models.AIBOMRecord `json:"records"`
		Count   int                  `json:"count"`
	}](t, w)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "QmA", body.Records[0].CID)
	assert.Equal(t, "QmB", body.Records[1].CID)
}

func TestGet_NotFound(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodGet, "/api/v1/records/3", "", nil)
	requireError(t, w, http.StatusNotFound, registry.ReasonModelNotFound, registry.KindNotFound)
}

func TestSubmissionQueries(t *testing.T) {
	r, _ := newRouter(t)
	register(t, r, registrytest.Developer, "QmReg")

	w := do(r, http.MethodGet, "/api/v1/records/0/submissions/latest", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QmReg", decode[map[string]any](t, w)["cid"])

	for _, cid := range []string{"QmS1", "QmS2"} {
		w = do(r, http.MethodPost, "/api/v1/records/0/submissions", registrytest.Developer, SubmitRequest{CID: cid})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/records/0/submissions/latest", "", nil)
	assert.Equal(t, "QmS2", decode[map[string]any](t, w)["cid"])

	type ledger struct {
		Submissions []models.SubmissionEntry `json:"submissions"`
	}
	w = do(r, http.MethodGet, "/api/v1/records/0/submissions", "", nil)
	assert.Len(t, decode[ledger](t, w).Submissions, 2)

	w = do(r, http.MethodGet, "/api/v1/records/0/submissions/approved", "", nil)
	assert.Empty(t, decode[ledger](t, w).Submissions)

	w = do(r, http.MethodPost, "/api/v1/records/0/decisions", registrytest.Principal, map[string]any{"status": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/records/0/submissions/approved", "", nil)
	assert.Len(t, decode[ledger](t, w).Submissions, 2)

	w = do(r, http.MethodGet, "/api/v1/records/4/submissions/latest", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownModelLedgersAreEmpty(t *testing.T) {
	r, _ := newRouter(t)
	for _, path := range []string{
		"/api/v1/records/3/submissions",
		"/api/v1/records/3/vulnerabilities",
		"/api/v1/records/3/advisories",
	} {
		w := do(r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

// ---------------------------------------------------------------------------
// parseStatus
// ---------------------------------------------------------------------------

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   models.ReviewStatus
		wantOK bool
	}{
		{`3`, models.StatusApproved, true},
		{` 2 `, models.StatusInReview, true},
		{`"Rejected"`, models.StatusRejected, true},
		{`"4"`, models.StatusRejected, true},
		{`9`, models.ReviewStatus(9), true},
		{`256`, 0, false},
		{`-1`, 0, false},
		{`"Pending"`, 0, false},
		{`true`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseStatus(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
