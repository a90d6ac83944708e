package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRoles returns the built-in catalogue in canonical order.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        RoleRequirementAnalysis,
			Description: "Turns a natural-language request into structured software requirements.",
			SystemPrompt: `You are a requirements analyst. Rewrite the user's request as structured software requirements:
functional requirements, non-functional requirements, constraints, assumptions and acceptance criteria.
Keep every requirement testable. Do not write code.`,
		},
		{
			Name:        RoleCoding,
			Description: "Writes a production-ready, framework-based implementation of the requirements.",
			SystemPrompt: `You are a senior software engineer. Implement the analysed requirements as a complete,
production-ready codebase using an established web framework, laid out so it can be deployed to a managed
app service. Show every file with its path. When the reviewer asks for changes, return the full revised code.`,
		},
		{
			Name:        RoleCodeReview,
			Description: "Reviews code for correctness, efficiency and security and requests improvements.",
			SystemPrompt: `You are a code reviewer. Check the latest code for correctness, efficiency, security and
adherence to the requirements. If changes are required, list them and include the line NEEDS_IMPROVEMENT.
If the code is acceptable, say APPROVED and summarise why.`,
		},
		{
			Name:        RoleDocumentation,
			Description: "Documents setup, design decisions and complex logic.",
			SystemPrompt: `You are a technical writer. Produce documentation for the approved code: overview,
setup and run instructions, configuration, the reasoning behind key design decisions and explanations of
any complex logic.`,
		},
		{
			Name:        RoleTestCases,
			Description: "Writes positive, negative and edge-case tests for the code.",
			SystemPrompt: `You are a test engineer. Write automated tests for the approved code covering positive
scenarios, negative scenarios and edge cases. Explain what each group of tests verifies.`,
		},
		{
			Name:        RoleDeployment,
			Description: "Produces deployment configuration and a CI/CD pipeline.",
			SystemPrompt: `You are a DevOps engineer. Produce the configuration needed to deploy the application to a
managed app service and a CI/CD pipeline that builds, tests and deploys it. List required secrets and settings.`,
		},
		{
			Name:        RoleUIGeneration,
			Description: "Builds a simple UI over the backend for non-technical users and ends the workflow.",
			SystemPrompt: `You are a UI developer. Build a simple, friendly user interface for non-technical users that
calls the backend APIs, including a not-found page that redirects home. When your UI is complete, finish
your message with the line WORKFLOW_COMPLETE.`,
		},
	}
}

// DefaultRegistry returns a registry populated with DefaultRoles.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, role := range DefaultRoles() {
		// Names in DefaultRoles are unique.
		_ = reg.Register(role)
	}
	return reg
}

// roleFile is the YAML layout of a role catalogue:
//
//	roles:
//	  - name: CodeReviewAgent
//	    description: Strict security-focused reviewer
//	    system_prompt: |
//	      ...
type roleFile struct {
	Roles []roleEntry `yaml:"roles"`
}

type roleEntry struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
}

// LoadRoles parses a YAML role catalogue layered over DefaultRoles. Entries
// naming a canonical role replace its description and prompt (blank fields
// keep the default); other entries add roles. A name repeated within the
// payload is a *DuplicateRoleError.
func LoadRoles(r io.Reader) (*Registry, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read role catalogue: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errors.New("role catalogue: payload is empty")
	}

	var file roleFile
	if err := yaml.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("role catalogue: %w", err)
	}

	defaults := DefaultRoles()
	index := make(map[string]int, len(defaults))
	for i, role := range defaults {
		index[role.Name] = i
	}

	seen := make(map[string]bool, len(file.Roles))
	var extra []Role
	for _, entry := range file.Roles {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("role catalogue: %w", ErrInvalidRole)
		}
		if seen[name] {
			return nil, fmt.Errorf("role catalogue: %w", &DuplicateRoleError{Name: name})
		}
		seen[name] = true

		if i, ok := index[name]; ok {
			if d := strings.TrimSpace(entry.Description); d != "" {
				defaults[i].Description = d
			}
			if p := strings.TrimSpace(entry.SystemPrompt); p != "" {
				defaults[i].SystemPrompt = p
			}
			continue
		}
		extra = append(extra, Role{
			Name:         name,
			Description:  strings.TrimSpace(entry.Description),
			SystemPrompt: strings.TrimSpace(entry.SystemPrompt),
		})
	}

	reg := NewRegistry()
	for _, role := range append(defaults, extra...) {
		if err := reg.Register(role); err != nil {
			return nil, fmt.Errorf("role catalogue: %w", err)
		}
	}
	return reg, nil
}

// LoadRolesFile reads a YAML role catalogue from path.
func LoadRolesFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open role catalogue: %w", err)
	}
	defer f.Close()
	return LoadRoles(f)
}
