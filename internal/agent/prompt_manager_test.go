package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager("")
	for _, role := range []string{RolePlanner, RoleExecutor, RoleValidator, RoleResponder} {
		prompt, err := pm.Get(role)
		if err != nil {
			t.Fatalf("%s: %v", role, err)
		}
		if !strings.Contains(prompt, "# Role:") {
			t.Errorf("%s prompt looks wrong: %q", role, prompt)
		}
	}
	if _, err := pm.Get("janitor"); err == nil {
		t.Error("expected an error for an unknown role")
	}
}

func TestPromptManager_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "planner.md"), []byte("Custom Planner"), 0644); err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(dir)
	prompt, err := pm.Get(RolePlanner)
	if err != nil {
		t.Fatal(err)
	}
	if prompt != "Custom Planner" {
		t.Errorf("override not used: %q", prompt)
	}

	// Roles without a file fall back to the built-in prompt.
	prompt, err = pm.Get(RoleValidator)
	if err != nil || !strings.Contains(prompt, "Validator") {
		t.Errorf("expected built-in validator prompt, got %q (%v)", prompt, err)
	}
}

func TestPromptManager_WithTools(t *testing.T) {
	pm := NewPromptManager("")
	prompt := pm.WithTools(RoleExecutor, []toolDef{
		{Name: "open_tab", Description: "Open a tab"},
		{Name: "read_page", Description: "Read a page"},
	})
	if !strings.Contains(prompt, "## Available Tools:\n- open_tab: Open a tab\n- read_page: Read a page") {
		t.Errorf("tool list missing:\n%s", prompt)
	}
}
