// Command chat is the interactive terminal client for procbot. It keeps the
// session-current project locally; the store and workflow stay stateless.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/procbot-io/procbot/internal/config"
	"github.com/procbot-io/procbot/internal/llm"
	"github.com/procbot-io/procbot/internal/project"
	"github.com/procbot-io/procbot/internal/team"
)

type session struct {
	store   *project.Store
	manager *project.Manager
	agents  *team.Team
	current *project.Project
	out     *bufio.Writer
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Interactive tool: keep logs out of the conversation unless asked for.
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl < zerolog.WarnLevel {
		logger = logger.Level(lvl)
	}

	storageDir, err := cfg.EnsureStorageDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "storage error:", err)
		os.Exit(1)
	}

	store, err := project.NewStore(storageDir, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storage error:", err)
		os.Exit(1)
	}

	s := &session{
		store:   store,
		manager: project.NewManager(store, nil, logger),
		out:     bufio.NewWriter(os.Stdout),
	}

	if cfg.ChatEnabled() {
		teamCfg, err := team.LoadConfig(cfg.AgentConfigPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "agent config error:", err)
			os.Exit(1)
		}
		provider := llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.AnthropicModel),
			llm.WithMaxTokens(cfg.MaxTokens),
			llm.WithTemperature(cfg.Temperature),
			llm.WithLogger(logger),
		)
		s.agents = team.New(teamCfg, provider, nil, logger)
	}

	s.printf("PROCBOT procurement assistant\n")
	if s.agents == nil {
		s.printf("(no API key configured: workflow commands only, free chat disabled)\n")
	}
	s.printf("Type 'help' for commands, Ctrl-D to exit.\n\n")
	s.flush()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		s.prompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		s.handle(line)
		s.flush()
	}

	s.printf("\nGoodbye.\n")
	s.flush()
}

func (s *session) prompt() {
	if s.current != nil {
		s.printf("[%s | %s] > ", s.current.Name, s.current.CurrentStage)
	} else {
		s.printf("> ")
	}
	s.flush()
}

func (s *session) handle(line string) {
	cmd := project.ParseCommand(line)
	if cmd == nil {
		s.freeChat(line)
		return
	}

	switch cmd.Type {
	case project.CmdHelp:
		s.printf("%s\n", project.HelpText())

	case project.CmdListProjects:
		s.listProjects()

	case project.CmdNewProject:
		p, err := s.store.Create(project.CreateProjectInput{Name: cmd.Name, Context: cmd.Context})
		if err != nil {
			s.printf("Error: %v\n", err)
			return
		}
		s.current = p
		s.printf("Created project %q\n", p.Name)
		s.printf("  ID: %s\n  Stage: %s\n", p.ID, p.CurrentStage)
		if len(p.Context) > 0 {
			s.printf("  Context: %v\n", p.Context)
		}

	case project.CmdLoadProject:
		p, err := s.store.Load(cmd.ID)
		if err != nil {
			s.printf("Error: %v\n", err)
			return
		}
		s.current = p
		s.printf("Loaded project %q (stage: %s)\n", p.Name, p.CurrentStage)
		if n := len(p.ConversationHistory); n > 0 {
			last := p.ConversationHistory[n-1]
			s.printf("Last message: %s\n", truncate(last.Message, 100))
		}

	case project.CmdStatus:
		s.status()

	case project.CmdHistory:
		s.history()

	case project.CmdAdvance, project.CmdRevert, project.CmdJump,
		project.CmdPause, project.CmdResume, project.CmdCancel, project.CmdComplete:
		s.workflow(cmd)

	case project.CmdContext:
		if !s.requireProject() {
			return
		}
		if cmd.Key == "" {
			s.printf("Usage: context <key> <value>\n")
			return
		}
		res, err := s.manager.AddContext(s.current.ID, cmd.Key, cmd.Value)
		if err != nil {
			s.printf("Error: %v\n", err)
			return
		}
		s.current = res.Project
		s.printf("%s\n", res.Message)
	}
}

// workflow maps parsed commands to manager actions against the current project.
func (s *session) workflow(cmd *project.Command) {
	if !s.requireProject() {
		return
	}

	action := map[project.CommandType]string{
		project.CmdAdvance:  project.ActionAdvance,
		project.CmdRevert:   project.ActionRevert,
		project.CmdJump:     project.ActionJumpTo,
		project.CmdPause:    project.ActionPause,
		project.CmdResume:   project.ActionResume,
		project.CmdCancel:   project.ActionCancel,
		project.CmdComplete: project.ActionComplete,
	}[cmd.Type]

	res, err := s.manager.Apply(s.current.ID, action, cmd.Reason, cmd.Target)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.current = res.Project
	s.printf("%s\n", res.Message)
}

func (s *session) listProjects() {
	summaries, err := s.store.List()
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		s.printf("No projects found. Create one with: new project \"Name\"\n")
		return
	}

	s.printf("Projects:\n")
	for i, sum := range summaries {
		s.printf("%d. %s\n", i+1, sum.ProjectName)
		s.printf("   ID: %s\n   Stage: %s  Status: %s\n   Updated: %s\n",
			sum.ProjectID, sum.CurrentStage, sum.Status, sum.UpdatedAt.Format(time.RFC3339))
	}
}

func (s *session) status() {
	if !s.requireProject() {
		return
	}
	p, err := s.store.Load(s.current.ID)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.current = p

	s.printf("Project Status\n")
	s.printf("  Name: %s\n  ID: %s\n  Stage: %s\n  Status: %s\n",
		p.Name, p.ID, p.CurrentStage, p.Status)
	s.printf("  Created: %s\n  Updated: %s\n",
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	if len(p.Context) > 0 {
		s.printf("  Context:\n")
		for k, v := range p.Context {
			s.printf("    %s: %s\n", k, v)
		}
	}
	s.printf("  Conversations: %d  Decisions: %d\n", len(p.ConversationHistory), len(p.Decisions))
}

func (s *session) history() {
	if !s.requireProject() {
		return
	}
	p, err := s.store.Load(s.current.ID)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.current = p

	if len(p.Decisions) > 0 {
		s.printf("Decisions:\n")
		for _, d := range p.Decisions {
			line := fmt.Sprintf("  %s  %s", d.Timestamp.Format("2006-01-02 15:04"), d.Action)
			if d.FromStage != "" {
				line += fmt.Sprintf(" (%s -> %s)", d.FromStage, d.ToStage)
			}
			if d.Reason != "" {
				line += ": " + d.Reason
			}
			s.printf("%s\n", line)
		}
	}
	if len(p.ConversationHistory) == 0 {
		s.printf("No conversation yet.\n")
		return
	}
	s.printf("Conversation:\n")
	for _, entry := range p.ConversationHistory {
		who := entry.Role
		if entry.Agent != "" {
			who = entry.Agent
		}
		s.printf("  [%s] %s\n", who, truncate(entry.Message, 200))
	}
}

func (s *session) freeChat(line string) {
	if s.agents == nil {
		s.printf("Free chat is disabled (no API key). Type 'help' for workflow commands.\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if s.current != nil {
		if _, err := s.store.AppendConversation(s.current.ID, project.RoleUser, line, ""); err != nil {
			s.printf("Error: %v\n", err)
			return
		}
	}

	reply, err := s.agents.Respond(ctx, s.current, line)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	if s.current != nil {
		updated, err := s.store.AppendConversation(s.current.ID, project.RoleAgent, reply.Text, reply.Agent)
		if err != nil {
			s.printf("Error: %v\n", err)
			return
		}
		s.current = updated
	}

	s.printf("[%s] %s\n", reply.Agent, reply.Text)
}

func (s *session) requireProject() bool {
	if s.current == nil {
		s.printf("No active project. Use: new project \"Name\"  or  load <project_id>\n")
		return false
	}
	return true
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) flush() { _ = s.out.Flush() }

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
