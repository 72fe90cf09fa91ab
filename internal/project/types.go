package project

import (
	"time"
)

// Stage is one of the five sequential phases of a procurement engagement.
type Stage string

const (
	StageBusinessCase   Stage = "business_case"
	StageMarketResearch Stage = "market_research"
	StageRFIRFP         Stage = "rfi_rfp"
	StageEvaluation     Stage = "evaluation"
	StageSummary        Stage = "summary"
)

// Stages is the canonical stage order. Advance and Revert move along it.
var Stages = []Stage{
	StageBusinessCase,
	StageMarketResearch,
	StageRFIRFP,
	StageEvaluation,
	StageSummary,
}

// Valid returns true if s is one of the five recognized stages.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// Next returns the following stage, or false when s is the final stage.
func (s Stage) Next() (Stage, bool) {
	for i, st := range Stages {
		if s == st && i+1 < len(Stages) {
			return Stages[i+1], true
		}
	}
	return "", false
}

// Prev returns the preceding stage, or false when s is the first stage.
func (s Stage) Prev() (Stage, bool) {
	for i, st := range Stages {
		if s == st && i > 0 {
			return Stages[i-1], true
		}
	}
	return "", false
}

// StageNames returns the stage identifiers in order, for error messages.
func StageNames() []string {
	names := make([]string, len(Stages))
	for i, s := range Stages {
		names[i] = string(s)
	}
	return names
}

// Status is the lifecycle flag of a project, orthogonal to stage.
type Status string

const (
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal returns true for statuses no action may transition out of.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Workflow action names, recorded verbatim in the decision log.
const (
	ActionAdvance  = "advance"
	ActionRevert   = "revert"
	ActionJumpTo   = "jump_to"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
)

// Conversation roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ConversationEntry is a single turn in a project's conversation history.
type ConversationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Agent     string    `json:"agent,omitempty"`
}

// Decision is one entry in the append-only audit log of workflow transitions.
type Decision struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	FromStage Stage     `json:"from_stage,omitempty"`
	ToStage   Stage     `json:"to_stage,omitempty"`
}

// StageOutput is an artifact produced by a stage. Overwritable per stage.
type StageOutput struct {
	Timestamp time.Time `json:"timestamp"`
	Output    string    `json:"output"`
}

// Project is the sole persistent entity: a procurement engagement tracked
// through the five-stage workflow.
type Project struct {
	ID                  string                `json:"project_id"`
	Name                string                `json:"project_name"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	CurrentStage        Stage                 `json:"current_stage"`
	Status              Status                `json:"status"`
	Context             map[string]string     `json:"context"`
	ConversationHistory []ConversationEntry   `json:"conversation_history"`
	Decisions           []Decision            `json:"decisions"`
	StageOutputs        map[Stage]StageOutput `json:"stage_outputs"`
}

// Summary holds the list view of a project.
type Summary struct {
	ProjectID    string    `json:"project_id"`
	ProjectName  string    `json:"project_name"`
	CurrentStage Stage     `json:"current_stage"`
	Status       Status    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize returns the project's summary fields.
func (p *Project) Summarize() Summary {
	return Summary{
		ProjectID:    p.ID,
		ProjectName:  p.Name,
		CurrentStage: p.CurrentStage,
		Status:       p.Status,
		UpdatedAt:    p.UpdatedAt,
	}
}

// CreateProjectInput holds the parameters for creating a new project.
type CreateProjectInput struct {
	Name    string            `json:"name"`
	Context map[string]string `json:"context,omitempty"`
}

// StageOutputUpdate attaches an artifact to a stage via Updates.
type StageOutputUpdate struct {
	Stage  Stage
	Output string
}

// Updates is the typed field-update set merged into a project by
// Store.Update. Nil pointers leave the field untouched; Context is merged
// key by key; Decision is appended, never replacing prior entries.
type Updates struct {
	Name        *string
	Stage       *Stage
	Status      *Status
	Context     map[string]string
	Decision    *Decision
	StageOutput *StageOutputUpdate
}
