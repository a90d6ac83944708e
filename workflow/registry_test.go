package workflow

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("duplicate names are rejected", func(t *testing.T) {
		reg := NewRegistry()
		if err := reg.Register(Role{Name: RoleCoding}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := reg.Register(Role{Name: RoleCoding, SystemPrompt: "other"})
		var dup *DuplicateRoleError
		if !errors.As(err, &dup) || dup.Name != RoleCoding {
			t.Errorf("expected DuplicateRoleError, got %v", err)
		}
		if role, _ := reg.Lookup(RoleCoding); role.SystemPrompt != "" {
			t.Error("duplicate registration must not replace the role")
		}
	})

	t.Run("blank names are rejected", func(t *testing.T) {
		if err := NewRegistry().Register(Role{Name: "  "}); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("expected ErrInvalidRole, got %v", err)
		}
	})

	t.Run("ordered roles follow the workflow", func(t *testing.T) {
		reg := NewRegistry()
		names := CanonicalRoleNames()
		_ = reg.Register(Role{Name: "SecurityAgent"})
		for i := len(names) - 1; i >= 0; i-- {
			_ = reg.Register(Role{Name: names[i]})
		}
		_ = reg.Register(Role{Name: "PerfAgent"})

		var got []string
		for _, r := range reg.OrderedRoles() {
			got = append(got, r.Name)
		}
		want := append(names, "SecurityAgent", "PerfAgent")
		if !equalStrings(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		if reg.Len() != 9 {
			t.Errorf("expected 9 roles, got %d", reg.Len())
		}
	})

	t.Run("validate names the missing role", func(t *testing.T) {
		reg := NewRegistry()
		for _, name := range CanonicalRoleNames() {
			if name != RoleDeployment {
				_ = reg.Register(Role{Name: name})
			}
		}
		err := reg.Validate()
		if !errors.Is(err, ErrMissingRole) || !strings.Contains(err.Error(), RoleDeployment) {
			t.Errorf("expected missing DeploymentAgent, got %v", err)
		}
	})
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	if err := reg.Validate(); err != nil {
		t.Fatalf("default registry invalid: %v", err)
	}
	for _, role := range reg.OrderedRoles() {
		if role.SystemPrompt == "" || role.Description == "" {
			t.Errorf("%s lacks a prompt or description", role.Name)
		}
	}
	ui, _ := reg.Lookup(RoleUIGeneration)
	if !strings.Contains(ui.SystemPrompt, DefaultCompletionToken) {
		t.Error("UI role should be told to emit the completion token")
	}
	review, _ := reg.Lookup(RoleCodeReview)
	if !DefaultReviewSignal(review.SystemPrompt) {
		t.Error("reviewer prompt should mention the improvement signal")
	}
}

func TestLoadRoles(t *testing.T) {
	t.Run("overrides and extends", func(t *testing.T) {
		reg, err := LoadRoles(strings.NewReader(`
roles:
  - name: CodeReviewAgent
    system_prompt: Review for security first. Say NEEDS_IMPROVEMENT when changes are needed.
  - name: SecurityAgent
    description: Audits dependencies
    system_prompt: Audit the dependency list.
`))
		if err != nil {
			t.Fatalf("LoadRoles: %v", err)
		}
		review, _ := reg.Lookup(RoleCodeReview)
		if !strings.HasPrefix(review.SystemPrompt, "Review for security first.") {
			t.Errorf("prompt not overridden: %q", review.SystemPrompt)
		}
		if review.Description == "" {
			t.Error("blank description should keep the default")
		}
		if _, ok := reg.Lookup("SecurityAgent"); !ok {
			t.Error("expected added role")
		}
		if err := reg.Validate(); err != nil {
			t.Errorf("loaded registry invalid: %v", err)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		if _, err := LoadRoles(strings.NewReader("  \n")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := LoadRoles(strings.NewReader("roles: [")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("duplicate entries", func(t *testing.T) {
		_, err := LoadRoles(strings.NewReader("roles:\n  - name: A\n  - name: A\n"))
		var dup *DuplicateRoleError
		if !errors.As(err, &dup) {
			t.Errorf("expected DuplicateRoleError, got %v", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := LoadRoles(strings.NewReader("roles:\n  - description: nameless\n"))
		if !errors.Is(err, ErrInvalidRole) {
			t.Errorf("expected ErrInvalidRole, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadRolesFile(t.TempDir() + "/none.yaml"); err == nil {
			t.Error("expected error")
		}
	})
}
