package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procbot-io/procbot/internal/health"
	"github.com/procbot-io/procbot/internal/llm"
	"github.com/procbot-io/procbot/internal/metrics"
	"github.com/procbot-io/procbot/internal/project"
	"github.com/procbot-io/procbot/internal/team"
)

type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Text: s.text, StopReason: llm.StopReasonEndTurn}, nil
}

func (s *stubProvider) ModelID() string { return "stub" }
func (s *stubProvider) MaxTokens() int  { return 4096 }

func stubTeam(t *testing.T, provider llm.Provider) *team.Team {
	t.Helper()
	cfg := team.Config{
		"coordinator":           {Name: "Coordinator"},
		"business_requirements": {Name: "Business Requirements Analyst"},
		"market_research":       {Name: "Market Research Analyst"},
		"rfi_rfp":               {Name: "RFI/RFP Specialist"},
		"evaluation":            {Name: "Vendor Evaluation Specialist"},
		"summary":               {Name: "Executive Summary Writer"},
	}
	return team.New(cfg, provider, nil, zerolog.Nop())
}

func setupTestServer(t *testing.T, agents *team.Team) (*Server, *project.Store) {
	t.Helper()
	store, err := project.NewStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	manager := project.NewManager(store, nil, zerolog.Nop())
	checker := health.NewChecker(zerolog.Nop())
	checker.Register("storage", health.StorageCheck(store.Dir()))

	srv := New(Config{}, store, manager, agents, checker, metrics.New(), zerolog.Nop())
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	resp := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	resp := doJSON(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	resp := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateProject(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
		ProjectName: "Cloud Storage RFP",
		Context:     map[string]string{"budget": "100k"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[ProjectResponse](t, resp)
	assert.NotEmpty(t, body.Project.ID)
	assert.Equal(t, "Cloud Storage RFP", body.Project.Name)
	assert.Equal(t, project.StageBusinessCase, body.Project.CurrentStage)
	assert.Equal(t, "100k", body.Project.Context["budget"])
}

func TestCreateProject_MissingName(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects", CreateProjectRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "missing_argument", problem.Type)
	assert.Equal(t, "/api/v1/projects", problem.Instance)
}

func TestListProjects(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	_, err := store.Create(project.CreateProjectInput{Name: "One"})
	require.NoError(t, err)
	_, err = store.Create(project.CreateProjectInput{Name: "Two"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ProjectListResponse](t, resp)
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Projects, 2)
}

func TestListProjects_Empty(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ProjectListResponse](t, resp)
	assert.Equal(t, 0, body.Total)
	assert.NotNil(t, body.Projects)
}

func TestGetProject(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Lookup"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+p.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ProjectResponse](t, resp)
	assert.Equal(t, p.ID, body.Project.ID)
}

func TestGetProject_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	resp := doJSON(t, srv, http.MethodGet, "/api/v1/projects/proj_ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "project_not_found", problem.Type)
}

func TestWorkflowAction_Advance(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Flow"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/workflow",
		WorkflowRequest{Action: "advance"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[WorkflowResponse](t, resp)
	assert.Equal(t, project.StageMarketResearch, body.Project.CurrentStage)
	assert.NotEmpty(t, body.Message)
	assert.Len(t, body.Project.Decisions, 1)
}

func TestWorkflowAction_JumpTo(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Flow"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/workflow",
		WorkflowRequest{Action: "jump_to", Target: "evaluation"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[WorkflowResponse](t, resp)
	assert.Equal(t, project.StageEvaluation, body.Project.CurrentStage)
}

func TestWorkflowAction_InvalidStage(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Flow"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/workflow",
		WorkflowRequest{Action: "jump_to", Target: "negotiation"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_stage", problem.Type)
}

func TestWorkflowAction_TerminalConflict(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Flow"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/workflow",
		WorkflowRequest{Action: "complete"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/workflow",
		WorkflowRequest{Action: "pause", Reason: "too late"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_transition", problem.Type)
}

func TestWorkflowAction_MissingAction(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Flow"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/workflow", WorkflowRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "missing_action", problem.Type)
}

func TestAddContextEndpoint(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Facts"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/context",
		ContextRequest{Key: "budget", Value: "250k"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[WorkflowResponse](t, resp)
	assert.Equal(t, "250k", body.Project.Context["budget"])
	assert.Empty(t, body.Project.Decisions)
}

func TestAppendConversationEndpoint(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Chatty"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/conversation",
		ConversationRequest{Role: project.RoleUser, Message: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ProjectResponse](t, resp)
	require.Len(t, body.Project.ConversationHistory, 1)
	assert.Equal(t, "hello", body.Project.ConversationHistory[0].Message)
}

func TestAppendConversation_InvalidRole(t *testing.T) {
	srv, store := setupTestServer(t, nil)
	p, err := store.Create(project.CreateProjectInput{Name: "Chatty"})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+p.ID+"/conversation",
		ConversationRequest{Role: "narrator", Message: "hello"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_role", problem.Type)
}

func TestChat_Disabled(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "chat_disabled", problem.Type)
}

func TestChat_FreeMessage(t *testing.T) {
	agents := stubTeam(t, &stubProvider{text: "Hello! Ready to help with procurement."})
	srv, _ := setupTestServer(t, agents)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ChatResponse](t, resp)
	assert.Equal(t, "coordinator", body.Agent)
	assert.Contains(t, body.Reply, "procurement")
	assert.Nil(t, body.Project)
}

func TestChat_WithProjectRecordsHistory(t *testing.T) {
	agents := stubTeam(t, &stubProvider{text: "Consider three vendors."})
	srv, store := setupTestServer(t, agents)

	p, err := store.Create(project.CreateProjectInput{Name: "Cloud Storage RFP"})
	require.NoError(t, err)
	_, err = store.Update(p.ID, project.Updates{Stage: stagePtr(project.StageMarketResearch)})
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/chat",
		ChatRequest{Message: "which vendors?", ProjectID: p.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ChatResponse](t, resp)
	assert.Equal(t, "market_research", body.Agent)
	require.NotNil(t, body.Project)
	require.Len(t, body.Project.ConversationHistory, 2)
	assert.Equal(t, project.RoleUser, body.Project.ConversationHistory[0].Role)
	assert.Equal(t, project.RoleAgent, body.Project.ConversationHistory[1].Role)
	assert.Equal(t, "market_research", body.Project.ConversationHistory[1].Agent)

	// Persisted, not just echoed.
	got, err := store.Load(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.ConversationHistory, 2)
}

func TestChat_UnknownProject(t *testing.T) {
	agents := stubTeam(t, &stubProvider{text: "ok"})
	srv, _ := setupTestServer(t, agents)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/chat",
		ChatRequest{Message: "hi", ProjectID: "proj_ghost"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func stagePtr(s project.Stage) *project.Stage { return &s }
