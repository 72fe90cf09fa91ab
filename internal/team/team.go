package team

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/procbot-io/procbot/internal/llm"
	"github.com/procbot-io/procbot/internal/metrics"
	"github.com/procbot-io/procbot/internal/project"
	"github.com/procbot-io/procbot/internal/retry"
)

// historyWindow is how many recent conversation turns are replayed to the model.
const historyWindow = 10

// Reply is the outcome of a single chat turn.
type Reply struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// Team routes chat messages to the specialist matching the project's current
// stage, falling back to the coordinator when no project is loaded.
type Team struct {
	cfg      Config
	provider llm.Provider
	retryCfg retry.Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a Team from a validated config and an LLM provider.
func New(cfg Config, provider llm.Provider, m *metrics.Metrics, logger zerolog.Logger) *Team {
	return &Team{
		cfg:      cfg,
		provider: provider,
		retryCfg: retry.DefaultConfig(),
		metrics:  m,
		logger:   logger.With().Str("component", "team").Logger(),
	}
}

// AgentFor returns the agent key handling the given project. A nil project
// goes to the coordinator.
func (t *Team) AgentFor(p *project.Project) string {
	if p == nil {
		return CoordinatorName
	}
	if key, ok := specialistByStage[p.CurrentStage]; ok {
		return key
	}
	return CoordinatorName
}

// Respond runs one chat turn. The project may be nil for general questions.
func (t *Team) Respond(ctx context.Context, p *project.Project, userMessage string) (*Reply, error) {
	key := t.AgentFor(p)
	agent := t.cfg[key]

	req := llm.CompletionRequest{
		SystemPrompt: t.systemPrompt(agent, p),
		Messages:     buildMessages(p, userMessage),
		Model:        agent.Model,
	}

	var resp *llm.CompletionResponse
	err := retry.Do(ctx, t.retryCfg, func(ctx context.Context) error {
		var callErr error
		resp, callErr = t.provider.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		t.logger.Error().Err(err).Str("agent", key).Msg("chat turn failed")
		if t.metrics != nil {
			t.metrics.RecordError("team", "llm")
		}
		return nil, fmt.Errorf("agent %s: %w", key, err)
	}

	if t.metrics != nil {
		t.metrics.RecordChatTurn(key)
	}
	t.logger.Debug().
		Str("agent", key).
		Int("in_tokens", resp.InputTokens).
		Int("out_tokens", resp.OutputTokens).
		Msg("chat turn")

	return &Reply{Agent: key, Text: resp.Text}, nil
}

// systemPrompt combines the agent's configured prompt with the project state
// so the model answers in context.
func (t *Team) systemPrompt(agent AgentConfig, p *project.Project) string {
	prompt := agent.SystemPrompt()
	if p == nil {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\nCurrent project:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Stage: %s\n", p.CurrentStage)
	fmt.Fprintf(&b, "- Status: %s\n", p.Status)
	if len(p.Context) > 0 {
		b.WriteString("- Known facts:\n")
		for _, k := range sortedKeys(p.Context) {
			fmt.Fprintf(&b, "  - %s: %s\n", k, p.Context[k])
		}
	}
	return b.String()
}

// buildMessages replays recent conversation history and appends the new
// user message.
func buildMessages(p *project.Project, userMessage string) []llm.Message {
	var msgs []llm.Message
	if p != nil {
		history := p.ConversationHistory
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		for _, entry := range history {
			role := llm.RoleUser
			if entry.Role == project.RoleAgent {
				role = llm.RoleAssistant
			}
			msgs = append(msgs, llm.Message{Role: role, Content: entry.Message})
		}
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: userMessage})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
