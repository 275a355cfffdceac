// Package autostart reads a repo-local YAML manifest and runs its
// declared commands inside the sandbox once a warmer's runtime exists
// and the target repo has been cloned. Failures anywhere in this
// package are best-effort: they're logged and execution continues,
// never propagating out to the caller, because autostart is convenience
// the user's claim must never be blocked on.
package autostart

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/jxucoder/prewarm/host"
)

const conditionCheckTimeoutSec = 30

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Executor runs one repo's autostart manifest inside a single sandbox.
type Executor struct {
	Runtime            host.Runtime
	SessionID          string
	SelectedRepository string // "owner/repo", or "" for a repo-less sandbox
}

// NewExecutor creates an Executor bound to a runtime and logging
// context.
func NewExecutor(rt host.Runtime, sessionID, selectedRepository string) *Executor {
	return &Executor{Runtime: rt, SessionID: sessionID, SelectedRepository: selectedRepository}
}

// manifestPath resolves <workspace>/<repo_leaf>/.openhands/autostart.yaml
// when a repository is selected, else <workspace>/.openhands/autostart.yaml.
func (e *Executor) manifestPath() string {
	workspace := e.Runtime.WorkspacePath()
	if e.SelectedRepository == "" {
		return workspace + "/.openhands/autostart.yaml"
	}
	parts := strings.Split(e.SelectedRepository, "/")
	leaf := parts[len(parts)-1]
	return workspace + "/" + leaf + "/.openhands/autostart.yaml"
}

// Run executes the manifest's commands in declaration order. It has no
// return value: every failure path is logged and absorbed here, per the
// autostart contract in spec.md §4.3.
func (e *Executor) Run(ctx context.Context) {
	path := e.manifestPath()
	log.Printf("autostart: looking for config at %s", path)

	content, err := e.Runtime.Read(ctx, path)
	if err != nil {
		log.Printf("autostart: could not read %s: %v", path, err)
		return
	}
	if content == "" || strings.HasPrefix(content, "ERROR") {
		log.Printf("autostart: no usable config at %s", path)
		return
	}

	commands, skipped, err := ParseManifest([]byte(content))
	if err != nil {
		log.Printf("autostart: failed to parse YAML config: %v", err)
		return
	}
	for _, name := range skipped {
		log.Printf("autostart: skipping %q - no command specified", name)
	}
	if len(commands) == 0 {
		log.Printf("autostart: no startup commands in config")
		return
	}

	log.Printf("autostart: found %d startup commands (session=%s)", len(commands), e.SessionID)
	for _, cmd := range commands {
		e.runOne(ctx, cmd)
	}
}

func (e *Executor) runOne(ctx context.Context, cmd Command) {
	if cmd.Condition != "" {
		check := fmt.Sprintf("[ %s ] && echo CONDITION_MET || echo CONDITION_NOT_MET", cmd.Condition)
		_, out, err := e.Runtime.Run(ctx, check, conditionCheckTimeoutSec, true)
		if err != nil {
			log.Printf("autostart: condition check failed for %q, running anyway: %v", cmd.Name, err)
		} else if strings.Contains(out, "CONDITION_NOT_MET") {
			log.Printf("autostart: skipping %q - condition not met (session=%s)", cmd.Name, e.SessionID)
			return
		}
	}

	command := cmd.Command
	if cmd.Background {
		safeName := unsafeNameChars.ReplaceAllString(cmd.Name, "_")
		logFile := fmt.Sprintf("/tmp/autostart_%s.log", safeName)
		command = fmt.Sprintf("nohup %s > %s 2>&1 & disown", cmd.Command, logFile)
	}

	log.Printf("autostart: running %q (session=%s)", cmd.Name, e.SessionID)
	exitCode, out, err := e.Runtime.Run(ctx, command, cmd.Timeout, true)
	if err != nil {
		log.Printf("autostart: %q failed to execute: %v", cmd.Name, err)
		return
	}
	if exitCode != 0 && !cmd.Background {
		log.Printf("autostart: %q exited with code %d (session=%s): %s",
			cmd.Name, exitCode, e.SessionID, truncate(out, 500))
		return
	}
	log.Printf("autostart: %q completed (session=%s)", cmd.Name, e.SessionID)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
