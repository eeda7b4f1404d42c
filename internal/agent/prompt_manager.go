package agent

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/tabpilot/internal/tools"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	RolePlanner   = "planner"
	RoleExecutor  = "executor"
	RoleValidator = "validator"
	RoleResponder = "responder"
)

// PromptManager loads role prompts. A <role>.md file in Directory overrides
// the built-in prompt for that role.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// Get returns the system prompt of a role.
func (pm *PromptManager) Get(role string) (string, error) {
	name := role + ".md"
	if pm != nil && pm.Directory != "" {
		path := filepath.Join(pm.Directory, name)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			return string(data), nil
		case !os.IsNotExist(err):
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
		}
	}

	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("no prompt for role %s", role)
	}
	return string(data), nil
}

// WithTools appends the tool list to a role prompt.
func (pm *PromptManager) WithTools(role string, defs []toolDef) string {
	prompt, err := pm.Get(role)
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	if len(defs) == 0 {
		return prompt
	}
	var lines []string
	for _, d := range defs {
		lines = append(lines, fmt.Sprintf("- %s: %s", d.Name, d.Description))
	}
	return fmt.Sprintf("%s\n\n## Available Tools:\n%s", prompt, strings.Join(lines, "\n"))
}

type toolDef struct {
	Name        string
	Description string
}

func toolList(reg *tools.Registry, filter func(tools.Tool) bool) []toolDef {
	var defs []toolDef
	for _, d := range reg.Definitions(filter) {
		defs = append(defs, toolDef{Name: d.Function.Name, Description: d.Function.Description})
	}
	return defs
}
