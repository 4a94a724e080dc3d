package automation

import (
	"fmt"
	"os"

	"devprobe/internal/config"
	"devprobe/internal/translate"

	"gopkg.in/yaml.v3"
)

// Step is one scripted command.
type Step struct {
	Command string         `yaml:"command" json:"command"`
	Args    translate.Args `yaml:"args,omitempty" json:"args,omitempty"`
}

// Script is an automation script file:
//
//	name: login
//	backend: direct
//	steps:
//	  - command: fill_input
//	    args: {selector: "#user", value: "admin"}
//	  - command: click_button
//	    args: {text: "Sign in"}
type Script struct {
	Name    string `yaml:"name,omitempty"`
	Backend string `yaml:"backend,omitempty"` // overrides automation.backend
	Steps   []Step `yaml:"steps"`
}

// LoadScript reads and validates a YAML script. Unknown commands are not
// rejected here; they fail as individual steps.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	for i, step := range s.Steps {
		if step.Command == "" {
			return nil, fmt.Errorf("step %d has no command", i+1)
		}
	}
	if s.Backend != "" {
		if err := (config.AutomationConfig{Backend: s.Backend}).Validate(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
