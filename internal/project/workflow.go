package project

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/procbot-io/procbot/internal/errors"
	"github.com/procbot-io/procbot/internal/metrics"
)

// Result is the outcome of a workflow operation: the refreshed project and
// a human-readable message suitable for a chat or HTTP caller.
type Result struct {
	Project *Project `json:"project"`
	Message string   `json:"message"`
}

// Manager enforces the status and stage state machines on top of the Store.
// Every operation is a single read-modify-write against one project record;
// the Manager itself is stateless between calls.
type Manager struct {
	store   *Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewManager creates a workflow manager. metrics may be nil.
func NewManager(store *Store, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "project.workflow").Logger(),
	}
}

// Store returns the underlying project store.
func (m *Manager) Store() *Store { return m.store }

// Advance moves the project to the next stage in sequence. The stage
// machine is independent of status: advancing while on_hold is allowed.
func (m *Manager) Advance(id string) (*Result, error) {
	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionAdvance, err)
	}

	next, ok := p.CurrentStage.Next()
	if !ok {
		return nil, m.record(ActionAdvance, fmt.Errorf(
			"%w: already at %s, the final stage; use complete to finish the project",
			perrors.ErrInvalidTransition, StageSummary))
	}

	from := p.CurrentStage
	updated, err := m.store.Update(id, Updates{
		Stage:    &next,
		Decision: &Decision{Action: ActionAdvance, FromStage: from, ToStage: next},
	})
	if err != nil {
		return nil, m.record(ActionAdvance, err)
	}

	m.record(ActionAdvance, nil)
	m.logger.Info().Str("project_id", id).Str("from", string(from)).Str("to", string(next)).Msg("stage advanced")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Moved %q from %s to %s.", updated.Name, from, next),
	}, nil
}

// Revert moves the project to the previous stage.
func (m *Manager) Revert(id string) (*Result, error) {
	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionRevert, err)
	}

	prev, ok := p.CurrentStage.Prev()
	if !ok {
		return nil, m.record(ActionRevert, fmt.Errorf(
			"%w: already at %s, the first stage", perrors.ErrInvalidTransition, StageBusinessCase))
	}

	from := p.CurrentStage
	updated, err := m.store.Update(id, Updates{
		Stage:    &prev,
		Decision: &Decision{Action: ActionRevert, FromStage: from, ToStage: prev},
	})
	if err != nil {
		return nil, m.record(ActionRevert, err)
	}

	m.record(ActionRevert, nil)
	m.logger.Info().Str("project_id", id).Str("from", string(from)).Str("to", string(prev)).Msg("stage reverted")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Moved %q back from %s to %s.", updated.Name, from, prev),
	}, nil
}

// JumpTo moves the project directly to any recognized stage.
func (m *Manager) JumpTo(id, target string) (*Result, error) {
	stage := Stage(strings.TrimSpace(target))
	if !stage.Valid() {
		return nil, m.record(ActionJumpTo, fmt.Errorf("%w: %q (valid stages: %s)",
			perrors.ErrInvalidStage, target, strings.Join(StageNames(), ", ")))
	}

	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionJumpTo, err)
	}

	from := p.CurrentStage
	updated, err := m.store.Update(id, Updates{
		Stage:    &stage,
		Decision: &Decision{Action: ActionJumpTo, FromStage: from, ToStage: stage},
	})
	if err != nil {
		return nil, m.record(ActionJumpTo, err)
	}

	m.record(ActionJumpTo, nil)
	m.logger.Info().Str("project_id", id).Str("from", string(from)).Str("to", string(stage)).Msg("stage jumped")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Jumped %q from %s to %s.", updated.Name, from, stage),
	}, nil
}

// Pause places an active project on hold. A reason is required.
func (m *Manager) Pause(id, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, m.record(ActionPause, fmt.Errorf("%w: pause requires a reason", perrors.ErrMissingArgument))
	}

	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionPause, err)
	}
	if p.Status != StatusActive {
		return nil, m.record(ActionPause, fmt.Errorf(
			"%w: cannot pause a %s project", perrors.ErrInvalidTransition, p.Status))
	}

	status := StatusOnHold
	updated, err := m.store.Update(id, Updates{
		Status:   &status,
		Decision: &Decision{Action: ActionPause, Reason: reason},
	})
	if err != nil {
		return nil, m.record(ActionPause, err)
	}

	m.record(ActionPause, nil)
	m.logger.Info().Str("project_id", id).Str("reason", reason).Msg("project paused")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Put %q on hold: %s", updated.Name, reason),
	}, nil
}

// Resume reactivates a project. Valid only from on_hold.
func (m *Manager) Resume(id string) (*Result, error) {
	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionResume, err)
	}
	if p.Status != StatusOnHold {
		return nil, m.record(ActionResume, fmt.Errorf(
			"%w: resume is only valid from on_hold (current status: %s)",
			perrors.ErrInvalidTransition, p.Status))
	}

	status := StatusActive
	updated, err := m.store.Update(id, Updates{
		Status:   &status,
		Decision: &Decision{Action: ActionResume},
	})
	if err != nil {
		return nil, m.record(ActionResume, err)
	}

	m.record(ActionResume, nil)
	m.logger.Info().Str("project_id", id).Msg("project resumed")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Resumed %q, status is active again.", updated.Name),
	}, nil
}

// Cancel terminates a project. A reason is required. Terminal.
func (m *Manager) Cancel(id, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, m.record(ActionCancel, fmt.Errorf("%w: cancel requires a reason", perrors.ErrMissingArgument))
	}

	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionCancel, err)
	}
	if p.Status.Terminal() {
		return nil, m.record(ActionCancel, fmt.Errorf(
			"%w: project is already %s", perrors.ErrInvalidTransition, p.Status))
	}

	status := StatusCancelled
	updated, err := m.store.Update(id, Updates{
		Status:   &status,
		Decision: &Decision{Action: ActionCancel, Reason: reason},
	})
	if err != nil {
		return nil, m.record(ActionCancel, err)
	}

	m.record(ActionCancel, nil)
	m.logger.Info().Str("project_id", id).Str("reason", reason).Msg("project cancelled")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Cancelled %q: %s", updated.Name, reason),
	}, nil
}

// Complete marks a project completed. Terminal.
func (m *Manager) Complete(id string) (*Result, error) {
	p, err := m.store.Load(id)
	if err != nil {
		return nil, m.record(ActionComplete, err)
	}
	if p.Status.Terminal() {
		return nil, m.record(ActionComplete, fmt.Errorf(
			"%w: project is already %s", perrors.ErrInvalidTransition, p.Status))
	}

	status := StatusCompleted
	updated, err := m.store.Update(id, Updates{
		Status:   &status,
		Decision: &Decision{Action: ActionComplete},
	})
	if err != nil {
		return nil, m.record(ActionComplete, err)
	}

	m.record(ActionComplete, nil)
	m.logger.Info().Str("project_id", id).Msg("project completed")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Completed %q. Congratulations!", updated.Name),
	}, nil
}

// AddContext merges a single key into the project's context mapping.
// Last write wins; no decision entry is appended, but updated_at advances.
func (m *Manager) AddContext(id, key, value string) (*Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: context key", perrors.ErrMissingArgument)
	}

	updated, err := m.store.Update(id, Updates{Context: map[string]string{key: value}})
	if err != nil {
		return nil, err
	}

	m.logger.Debug().Str("project_id", id).Str("key", key).Msg("context added")
	return &Result{
		Project: updated,
		Message: fmt.Sprintf("Added context: %s = %s", key, value),
	}, nil
}

// Apply dispatches a named workflow action. Unknown actions are rejected;
// reason feeds pause/cancel and target feeds jump_to.
func (m *Manager) Apply(id, action, reason, target string) (*Result, error) {
	switch action {
	case ActionAdvance:
		return m.Advance(id)
	case ActionRevert:
		return m.Revert(id)
	case ActionJumpTo:
		return m.JumpTo(id, target)
	case ActionPause:
		return m.Pause(id, reason)
	case ActionResume:
		return m.Resume(id)
	case ActionCancel:
		return m.Cancel(id, reason)
	case ActionComplete:
		return m.Complete(id)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", perrors.ErrMissingArgument, action)
	}
}

// record updates the transition metrics and passes the error through.
func (m *Manager) record(action string, err error) error {
	if m.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.RecordTransition(action, result)
	}
	return err
}
