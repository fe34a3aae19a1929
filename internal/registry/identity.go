// identity.go implements the identity resolver: a table binding caller
// identities to named roles, each role carrying a set of permission bits.
// One distinguished principal, fixed at construction, holds every permission.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// Permission is a bit set of principal-level capabilities
type Permission uint8

const (
	PermDecide Permission = 1 << iota
	PermReportVulnerability
	PermRecordAdvisory
	PermManageRoles

	PermNone Permission = 0
	PermAll             = PermDecide | PermReportVulnerability | PermRecordAdvisory | PermManageRoles
)

var permissionNames = map[string]Permission{
	"decide":               PermDecide,
	"report_vulnerability": PermReportVulnerability,
	"record_advisory":      PermRecordAdvisory,
	"manage_roles":         PermManageRoles,
	"all":                  PermAll,
}

// Built-in role names
const (
	RolePrincipal  = "principal"
	RoleRegulator  = "regulator"
	RoleSupervisor = "supervisor"
)

// DefaultRoles returns the built-in role table. Regulators decide reviews;
// supervisors attach post-approval findings.
func DefaultRoles() map[string]Permission {
	return map[string]Permission{
		RolePrincipal:  PermAll,
		RoleRegulator:  PermDecide,
		RoleSupervisor: PermReportVulnerability | PermRecordAdvisory,
	}
}

// Has reports whether every bit of want is set in p
func (p Permission) Has(want Permission) bool {
	return want != PermNone && p&want == want
}

// Names returns the permission names set in p, sorted
func (p Permission) Names() []string {
	names := make([]string, 0, 4)
	for name, bit := range permissionNames {
		if bit != PermAll && p&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ParsePermissions combines permission names into a bit set
func ParsePermissions(names []string) (Permission, error) {
	var p Permission
	for _, n := range names {
		bit, ok := permissionNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return PermNone, fmt.Errorf("unknown permission %q", n)
		}
		p |= bit
	}
	return p, nil
}

// NormalizeIdentity canonicalizes a caller identity. Identities compare
// case-insensitively: bindings are loaded through viper, which lowercases map
// keys, so every identity is folded the same way.
func NormalizeIdentity(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Resolver answers authorization questions about a caller identity.
// It is safe for concurrent use; bindings may be replaced at runtime.
type Resolver struct {
	principal string

	mu       sync.RWMutex
	roles    map[string]Permission
	bindings map[string][]string
}

// NewResolver builds a resolver. roles may be nil to use DefaultRoles;
// bindings maps identities to role names.
func NewResolver(principal string, roles map[string]Permission, bindings map[string][]string) (*Resolver, error) {
	principal = NormalizeIdentity(principal)
	if principal == "" {
		return nil, fmt.Errorf("principal identity is required")
	}
	r := &Resolver{principal: principal}
	if err := r.Reload(roles, bindings); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload atomically replaces the role and binding tables. The principal
// cannot be changed after construction.
func (r *Resolver) Reload(roles map[string]Permission, bindings map[string][]string) error {
	if roles == nil {
		roles = DefaultRoles()
	}
	rt := make(map[string]Permission, len(roles))
	for name, p := range roles {
		rt[strings.ToLower(name)] = p
	}
	bt := make(map[string][]string, len(bindings))
	for id, names := range bindings {
		id = NormalizeIdentity(id)
		if id == "" {
			return fmt.Errorf("role binding with empty identity")
		}
		for _, n := range names {
			n = strings.ToLower(n)
			if _, ok := rt[n]; !ok {
				return fmt.Errorf("identity %s bound to unknown role %q", id, n)
			}
			bt[id] = append(bt[id], n)
		}
	}

	r.mu.Lock()
	r.roles = rt
	r.bindings = bt
	r.mu.Unlock()
	return nil
}

// Principal returns the distinguished identity
func (r *Resolver) Principal() string {
	return r.principal
}

// IsPrincipal is true only for the distinguished identity fixed at construction
func (r *Resolver) IsPrincipal(caller string) bool {
	return NormalizeIdentity(caller) == r.principal
}

// IsRecordOwner is true iff caller registered rec. A nil record yields false.
func (r *Resolver) IsRecordOwner(caller string, rec *models.AIBOMRecord) bool {
	if rec == nil {
		return false
	}
	id := NormalizeIdentity(caller)
	return id != "" && id == rec.Owner
}

// Permissions returns the union of permissions granted to caller
func (r *Resolver) Permissions(caller string) Permission {
	id := NormalizeIdentity(caller)
	if id == "" {
		return PermNone
	}
	if id == r.principal {
		return PermAll
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var p Permission
	for _, role := range r.bindings[id] {
		p |= r.roles[role]
	}
	return p
}

// Can reports whether caller holds every bit of perm
func (r *Resolver) Can(caller string, perm Permission) bool {
	return r.Permissions(caller).Has(perm)
}

// Roles returns the role names bound to caller, sorted. The principal
// always reports the principal role.
func (r *Resolver) Roles(caller string) []string {
	id := NormalizeIdentity(caller)
	r.mu.RLock()
	roles := append([]string(nil), r.bindings[id]...)
	r.mu.RUnlock()
	if id != "" && id == r.principal && !contains(roles, RolePrincipal) {
		roles = append(roles, RolePrincipal)
	}
	sort.Strings(roles)
	return roles
}

// Bindings returns a copy of the binding table
func (r *Resolver) Bindings() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.bindings))
	for id, roles := range r.bindings {
		out[id] = append([]string(nil), roles...)
	}
	return out
}

// RoleTable returns a copy of the role table
func (r *Resolver) RoleTable() map[string]Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Permission, len(r.roles))
	for k, v := range r.roles {
		out[k] = v
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
