package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// runner executes the scenarios and tallies the checks
type runner struct {
	client *client
	ids    identities
	logger *slog.Logger

	passed int
	failed int
}

func (r *runner) check(scenario, name string, ok bool, detail any) {
	if ok {
		r.passed++
		r.logger.Info("PASS", "scenario", scenario, "check", name)
		return
	}
	r.failed++
	r.logger.Error("FAIL", "scenario", scenario, "check", name, "got", fmt.Sprint(detail))
}

func (r *runner) call(ctx context.Context, scenario, method, path, identity string, body any) *response {
	resp, err := r.client.do(ctx, method, path, identity, body)
	if err != nil {
		r.check(scenario, method+" "+path, false, err)
		return &response{}
	}
	return resp
}

func (r *runner) run(ctx context.Context) {
	modelID, ok := r.scenarioA(ctx)
	if !ok {
		r.logger.Error("scenario A did not produce a record; skipping B and C")
		return
	}
	r.scenarioB(ctx, modelID)
	r.scenarioC(ctx, modelID)
}

// scenarioA: the owner registers and submits; a stranger cannot submit
func (r *runner) scenarioA(ctx context.Context) (uint64, bool) {
	const s = "A"
	dev, att := r.ids.developer, r.ids.attacker

	resp := r.call(ctx, s, http.MethodPost, "/api/v1/records", dev, map[string]string{"cid": "QmX"})
	r.check(s, "register returns 201", resp.Status == http.StatusCreated, resp)
	id, ok := number(resp.Body, "model_id")
	if !ok {
		return 0, false
	}
	modelID := uint64(id)
	r.check(s, "owner is the developer", resp.Body["owner"] == dev, resp.Body["owner"])
	r.check(s, "new record is Draft", isNumber(resp.Body, "status", 0), resp.Body["status"])

	base := fmt.Sprintf("/api/v1/records/%d", modelID)
	resp = r.call(ctx, s, http.MethodPost, base+"/submissions", dev, map[string]string{"cid": "QmY"})
	r.check(s, "owner submission returns 201", resp.Status == http.StatusCreated, resp)

	resp = r.call(ctx, s, http.MethodGet, base, "", nil)
	r.check(s, "status is Submitted", isNumber(resp.Body, "status", 1), resp)

	resp = r.call(ctx, s, http.MethodPost, base+"/submissions", att, map[string]string{"cid": "QmZ"})
	r.check(s, "stranger submission returns 403", resp.Status == http.StatusForbidden, resp)
	r.check(s, "reason is Not owner", resp.Body["error"] == "Not owner", resp.Body["error"])

	resp = r.call(ctx, s, http.MethodGet, base+"/submissions", "", nil)
	subs, _ := resp.Body["submissions"].([]interface{})
	ok = len(subs) == 1
	if ok {
		entry, _ := subs[0].(map[string]interface{})
		ok = entry["cid"] == "QmY"
	}
	r.check(s, "submissions are exactly [QmY]", ok, resp)
	return modelID, true
}

// scenarioB: the principal moves the record into review; Draft is refused
func (r *runner) scenarioB(ctx context.Context, modelID uint64) {
	const s = "B"
	p := r.ids.principal
	base := fmt.Sprintf("/api/v1/records/%d", modelID)

	resp := r.call(ctx, s, http.MethodPost, base+"/decisions", p, map[string]interface{}{"status": 2, "reason": "start"})
	r.check(s, "decide InReview returns 200", resp.Status == http.StatusOK, resp)
	r.check(s, "status is InReview", isNumber(resp.Body, "status", 2), resp.Body["status"])
	r.check(s, "reason is start", resp.Body["review_reason"] == "start", resp.Body["review_reason"])

	resp = r.call(ctx, s, http.MethodPost, base+"/decisions", p, map[string]interface{}{"status": 0, "reason": "bad"})
	r.check(s, "decide Draft returns 409", resp.Status == http.StatusConflict, resp)
	r.check(s, "reason is Invalid status", resp.Body["error"] == "Invalid status", resp.Body["error"])

	resp = r.call(ctx, s, http.MethodGet, base, "", nil)
	r.check(s, "status remains InReview", isNumber(resp.Body, "status", 2), resp)
}

// scenarioC: the principal reports a vulnerability; the developer cannot
func (r *runner) scenarioC(ctx context.Context, modelID uint64) {
	const s = "C"
	base := fmt.Sprintf("/api/v1/records/%d/vulnerabilities", modelID)

	resp := r.call(ctx, s, http.MethodPost, base, r.ids.principal, map[string]string{"cid": "QmVuln", "severity": "HIGH"})
	r.check(s, "principal report returns 201", resp.Status == http.StatusCreated, resp)

	resp = r.call(ctx, s, http.MethodGet, base+"/0", "", nil)
	r.check(s, "first vulnerability is QmVuln", resp.Body["cid"] == "QmVuln", resp)
	r.check(s, "severity is HIGH", resp.Body["severity"] == "HIGH", resp.Body["severity"])
	r.check(s, "finding is active", resp.Body["active"] == true, resp.Body["active"])

	resp = r.call(ctx, s, http.MethodPost, base, r.ids.developer, map[string]string{"cid": "QmVuln2", "severity": "HIGH"})
	r.check(s, "developer report returns 403", resp.Status == http.StatusForbidden, resp)

	resp = r.call(ctx, s, http.MethodGet, "/api/v1/events/verify", "", nil)
	r.check(s, "event chain verifies", resp.Body["valid"] == true, resp)
}

func number(body map[string]interface{}, key string) (float64, bool) {
	v, ok := body[key].(float64)
	return v, ok
}

func isNumber(body map[string]interface{}, key string, want float64) bool {
	v, ok := number(body, key)
	return ok && v == want
}
