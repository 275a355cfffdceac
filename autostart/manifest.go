package autostart

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Command is one declared autostart step, normalized from either the
// legacy `startup: [...]` or current `autostart: {enabled, commands}`
// YAML shape.
type Command struct {
	Name       string
	Command    string
	Condition  string
	Background bool
	Timeout    int
}

const defaultTimeout = 120

// rawCommand mirrors a single YAML command entry before defaults are
// applied.
type rawCommand struct {
	Name       string `yaml:"name"`
	Command    string `yaml:"command"`
	Condition  string `yaml:"condition"`
	Background bool   `yaml:"background"`
	Timeout    int    `yaml:"timeout"`
}

type rawManifest struct {
	Startup   []rawCommand `yaml:"startup"`
	Autostart *struct {
		Enabled  *bool        `yaml:"enabled"`
		Commands []rawCommand `yaml:"commands"`
	} `yaml:"autostart"`
}

// ParseManifest normalizes either accepted YAML shape into an ordered
// list of Commands. A command whose Command field is empty is dropped
// (the caller is expected to log a warning naming it); everything else
// has its defaults filled in (Name="unnamed", Timeout=120).
func ParseManifest(data []byte) ([]Command, []string, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing autostart manifest: %w", err)
	}

	var rawCommands []rawCommand
	switch {
	case raw.Autostart != nil:
		enabled := raw.Autostart.Enabled == nil || *raw.Autostart.Enabled
		if enabled {
			rawCommands = raw.Autostart.Commands
		}
	case len(raw.Startup) > 0:
		rawCommands = raw.Startup
	}

	var commands []Command
	var skipped []string
	for _, rc := range rawCommands {
		name := rc.Name
		if name == "" {
			name = "unnamed"
		}
		if rc.Command == "" {
			skipped = append(skipped, name)
			continue
		}
		timeout := rc.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		commands = append(commands, Command{
			Name:       name,
			Command:    rc.Command,
			Condition:  rc.Condition,
			Background: rc.Background,
			Timeout:    timeout,
		})
	}
	return commands, skipped, nil
}
