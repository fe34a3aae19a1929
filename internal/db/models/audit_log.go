package models

import "time"

// AuditLog is one recorded API action. Identity is nil for unauthenticated
// requests.
type AuditLog struct {
	ID           string
	Identity     *string
	Action       string  // "POST /api/v1/records/:modelId/decision"
	ResourceType *string // "record", "api_key", "snapshot", "role"
	ResourceID   *string // model id or key id
	StatusCode   int
	Metadata     map[string]interface{} // JSONB
	IPAddress    *string
	CreatedAt    time.Time
}
