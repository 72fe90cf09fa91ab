package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/procbot-io/procbot/internal/errors"
	"github.com/procbot-io/procbot/internal/metrics"
)

// Store persists projects as one JSON file per project under dir. It keeps
// no in-memory cache: every operation re-reads from disk, so the file is
// the single source of truth across process restarts. Single-writer access
// per project is assumed; there is no cross-process locking.
type Store struct {
	dir     string
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewStore creates a file-backed project store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perrors.NewStorageError("mkdir", dir, err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "project.store").Logger(),
	}, nil
}

// WithMetrics enables store operation metrics. Returns the store for chaining.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// recordOp updates the store operation metrics and passes the error through.
func (s *Store) recordOp(op string, err error) error {
	if s.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.RecordStoreOp(op, result)
	}
	return err
}

// NewProjectID generates a collision-resistant project identifier.
// The date prefix keeps files roughly sorted for humans browsing the
// directory; the UUID suffix removes any clock-resolution collision risk.
func NewProjectID() string {
	return fmt.Sprintf("proj_%s_%s",
		time.Now().UTC().Format("20060102"),
		strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create initializes and persists a new project. The record starts at
// business_case / active with empty collections.
func (s *Store) Create(input CreateProjectInput) (*Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name", perrors.ErrMissingArgument)
	}

	now := time.Now().UTC()
	ctx := make(map[string]string, len(input.Context))
	for k, v := range input.Context {
		ctx[k] = v
	}

	p := &Project{
		ID:                  NewProjectID(),
		Name:                name,
		CreatedAt:           now,
		UpdatedAt:           now,
		CurrentStage:        StageBusinessCase,
		Status:              StatusActive,
		Context:             ctx,
		ConversationHistory: []ConversationEntry{},
		Decisions:           []Decision{},
		StageOutputs:        map[Stage]StageOutput{},
	}

	if err := s.recordOp("create", s.write(p)); err != nil {
		return nil, err
	}
	s.logger.Info().Str("project_id", p.ID).Str("name", p.Name).Msg("project created")
	return p, nil
}

// Load reads a project record from disk.
func (s *Store) Load(id string) (*Project, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", perrors.ErrNotFound, id)
		}
		return nil, perrors.NewStorageError("read", s.path(id), err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, perrors.NewStorageError("decode", s.path(id), err)
	}
	if p.Context == nil {
		p.Context = map[string]string{}
	}
	if p.StageOutputs == nil {
		p.StageOutputs = map[Stage]StageOutput{}
	}
	return &p, nil
}

// List returns every project's summary, most-recently-updated first.
// An empty store yields an empty slice, not an error.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, perrors.NewStorageError("list", s.dir, err)
	}

	summaries := []Summary{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		p, err := s.Load(id)
		if err != nil {
			// A stray or half-written file should not break listing.
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable project file")
			continue
		}
		summaries = append(summaries, p.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Update merges the typed field updates into the stored record, bumps
// updated_at, persists, and returns the refreshed project.
func (s *Store) Update(id string, u Updates) (*Project, error) {
	p, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Stage != nil {
		p.CurrentStage = *u.Stage
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	for k, v := range u.Context {
		p.Context[k] = v
	}
	if u.Decision != nil {
		d := *u.Decision
		if d.Timestamp.IsZero() {
			d.Timestamp = time.Now().UTC()
		}
		p.Decisions = append(p.Decisions, d)
	}
	if u.StageOutput != nil {
		p.StageOutputs[u.StageOutput.Stage] = StageOutput{
			Timestamp: time.Now().UTC(),
			Output:    u.StageOutput.Output,
		}
	}

	p.touch()
	if err := s.recordOp("update", s.write(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// AppendConversation appends one turn to the project's conversation history.
func (s *Store) AppendConversation(id, role, message, agent string) (*Project, error) {
	p, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	p.ConversationHistory = append(p.ConversationHistory, ConversationEntry{
		Timestamp: time.Now().UTC(),
		Role:      role,
		Message:   message,
		Agent:     agent,
	})
	p.touch()
	if err := s.recordOp("update", s.write(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveStageOutput stores an artifact for a stage, overwriting any prior one.
func (s *Store) SaveStageOutput(id string, stage Stage, output string) (*Project, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %q (valid stages: %s)",
			perrors.ErrInvalidStage, stage, strings.Join(StageNames(), ", "))
	}
	return s.Update(id, Updates{StageOutput: &StageOutputUpdate{Stage: stage, Output: output}})
}

// touch refreshes updated_at, keeping it monotonically non-decreasing.
func (p *Project) touch() {
	now := time.Now().UTC()
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
}

// write persists the record atomically: marshal to a temp file in the same
// directory, then rename over the destination so a reader never observes a
// half-written record.
func (s *Store) write(p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return perrors.NewStorageError("encode", s.path(p.ID), err)
	}

	tmp, err := os.CreateTemp(s.dir, p.ID+".tmp-*")
	if err != nil {
		return perrors.NewStorageError("write", s.dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return perrors.NewStorageError("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return perrors.NewStorageError("write", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path(p.ID)); err != nil {
		os.Remove(tmpName)
		return perrors.NewStorageError("write", s.path(p.ID), err)
	}
	return nil
}
