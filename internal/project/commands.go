package project

import (
	"regexp"
	"strings"
)

// CommandType represents the type of workflow command parsed from chat text.
type CommandType int

const (
	CmdUnknown CommandType = iota
	CmdHelp
	CmdListProjects
	CmdNewProject
	CmdLoadProject
	CmdStatus
	CmdHistory
	CmdAdvance
	CmdRevert
	CmdJump
	CmdPause
	CmdResume
	CmdCancel
	CmdComplete
	CmdContext
)

// Command represents a parsed workflow command. Free text that is not a
// command returns nil from ParseCommand and goes to the agent team instead.
// The session-current project is owned by the caller, so only load carries
// a project ID.
type Command struct {
	Type    CommandType
	ID      string            // load
	Name    string            // new
	Context map[string]string // new: key=value pairs after the name
	Target  string            // jump
	Reason  string            // pause, cancel
	Key     string            // context
	Value   string            // context
}

var quoteRe = regexp.MustCompile(`"([^"]+)"`)

// ParseCommand parses a raw chat message into a workflow Command.
// Returns nil when the text is not a recognized command.
func ParseCommand(text string) *Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	parts := strings.Fields(text)
	first := strings.ToLower(parts[0])

	switch first {
	case "help", "?":
		return &Command{Type: CmdHelp}

	case "projects", "list":
		return &Command{Type: CmdListProjects}

	case "new":
		return parseNewCommand(text, parts)

	case "load", "open":
		if len(parts) >= 2 {
			return &Command{Type: CmdLoadProject, ID: parts[1]}
		}
		return nil

	case "status":
		return &Command{Type: CmdStatus}

	case "history":
		return &Command{Type: CmdHistory}

	case "advance", "next":
		return &Command{Type: CmdAdvance}

	case "revert", "back":
		return &Command{Type: CmdRevert}

	case "jump":
		if len(parts) >= 2 {
			return &Command{Type: CmdJump, Target: strings.ToLower(parts[1])}
		}
		return &Command{Type: CmdJump}

	case "pause":
		return &Command{Type: CmdPause, Reason: strings.Join(parts[1:], " ")}

	case "resume":
		return &Command{Type: CmdResume}

	case "cancel":
		return &Command{Type: CmdCancel, Reason: strings.Join(parts[1:], " ")}

	case "complete", "finish":
		return &Command{Type: CmdComplete}

	case "context":
		if len(parts) >= 3 {
			return &Command{
				Type:  CmdContext,
				Key:   parts[1],
				Value: strings.Join(parts[2:], " "),
			}
		}
		return &Command{Type: CmdContext}
	}

	return nil
}

// parseNewCommand handles: new project "Name" [key=value ...]
func parseNewCommand(text string, parts []string) *Command {
	if len(parts) < 3 || strings.ToLower(parts[1]) != "project" {
		return nil
	}

	cmd := &Command{Type: CmdNewProject}

	// Quoted name wins; otherwise the first non key=value word after "project".
	if matches := quoteRe.FindStringSubmatch(text); len(matches) >= 2 {
		cmd.Name = matches[1]
	}

	for _, p := range parts[2:] {
		if idx := strings.Index(p, "="); idx > 0 {
			if cmd.Context == nil {
				cmd.Context = make(map[string]string)
			}
			cmd.Context[p[:idx]] = p[idx+1:]
			continue
		}
		if cmd.Name == "" && !strings.HasPrefix(p, `"`) {
			cmd.Name = p
		}
	}

	return cmd
}

// HelpText lists the recognized commands for chat surfaces.
func HelpText() string {
	return strings.Join([]string{
		"Commands:",
		`  projects                      list all projects`,
		`  new project "Name" [k=v ...]  create a project with optional context`,
		`  load <project_id>             switch to an existing project`,
		`  status                        show the current project`,
		`  history                       show conversation and decision history`,
		`  advance / revert              move between stages`,
		`  jump <stage>                  jump to any stage (` + strings.Join(StageNames(), ", ") + `)`,
		`  pause <reason>                put the project on hold`,
		`  resume                        reactivate an on-hold project`,
		`  cancel <reason>               cancel the project (terminal)`,
		`  complete                      mark the project completed (terminal)`,
		`  context <key> <value>         record a fact about the project`,
		"Anything else goes to the procurement assistant.",
	}, "\n")
}
