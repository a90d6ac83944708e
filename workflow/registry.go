package workflow

import (
	"fmt"
	"strings"
	"sync"
)

// Canonical role names, in workflow order.
const (
	RoleRequirementAnalysis = "RequirementAnalysisAgent"
	RoleCoding              = "CodingAgent"
	RoleCodeReview          = "CodeReviewAgent"
	RoleDocumentation       = "DocumentationAgent"
	RoleTestCases           = "TestCasesAgent"
	RoleDeployment          = "DeploymentAgent"
	RoleUIGeneration        = "UIGenerationAgent"
)

// SourceUser is the Message.Source of the seed requirement message.
const SourceUser = "user"

var canonicalOrder = []string{
	RoleRequirementAnalysis,
	RoleCoding,
	RoleCodeReview,
	RoleDocumentation,
	RoleTestCases,
	RoleDeployment,
	RoleUIGeneration,
}

// CanonicalRoleNames returns the workflow's role names in hand-off order.
func CanonicalRoleNames() []string {
	return append([]string(nil), canonicalOrder...)
}

// Role is a named participant with a fixed responsibility and prompt.
// Roles are values; the registry never hands out references to its copies.
type Role struct {
	Name         string
	Description  string
	SystemPrompt string
}

// Registry holds the catalogue of roles participating in a workflow. It is
// built once at startup. There is no removal operation.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]Role
	order []string // registration order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]Role)}
}

// Register adds role. It fails with *DuplicateRoleError if the name is
// taken and ErrInvalidRole if the name is blank.
func (r *Registry) Register(role Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.roles[role.Name]; exists {
		return &DuplicateRoleError{Name: role.Name}
	}
	r.roles[role.Name] = role
	r.order = append(r.order, role.Name)
	return nil
}

// Lookup returns the role registered under name.
func (r *Registry) Lookup(name string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[name]
	return role, ok
}

// Len returns the number of registered roles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles)
}

// OrderedRoles returns the registered roles in canonical workflow order:
// analysis, coding, review, documentation, tests, deployment, UI. Roles
// outside that set follow in registration order.
func (r *Registry) OrderedRoles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Role, 0, len(r.roles))
	canonical := make(map[string]bool, len(canonicalOrder))
	for _, name := range canonicalOrder {
		canonical[name] = true
		if role, ok := r.roles[name]; ok {
			out = append(out, role)
		}
	}
	for _, name := range r.order {
		if !canonical[name] {
			out = append(out, r.roles[name])
		}
	}
	return out
}

// Validate reports ErrMissingRole, naming the first absent canonical role.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range canonicalOrder {
		if _, ok := r.roles[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRole, name)
		}
	}
	return nil
}
