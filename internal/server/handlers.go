package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/procbot-io/procbot/internal/errors"
	"github.com/procbot-io/procbot/internal/health"
	"github.com/procbot-io/procbot/internal/project"
	"github.com/procbot-io/procbot/internal/team"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store   *project.Store
	manager *project.Manager
	agents  *team.Team
	checker *health.Checker
	logger  zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *project.Store, manager *project.Manager, agents *team.Team, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		manager: manager,
		agents:  agents,
		checker: checker,
		logger:  logger.With().Str("component", "handlers").Logger(),
	}
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	p, err := h.store.Create(project.CreateProjectInput{
		Name:    req.ProjectName,
		Context: req.Context,
	})
	if err != nil {
		return h.domainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ProjectResponse{Project: p})
}

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	summaries, err := h.store.List()
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(ProjectListResponse{Projects: summaries, Total: len(summaries)})
}

// GetProject handles GET /api/v1/projects/:id.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	p, err := h.store.Load(c.Params("id"))
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(ProjectResponse{Project: p})
}

// WorkflowAction handles POST /api/v1/projects/:id/workflow.
func (h *Handlers) WorkflowAction(c *fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Action == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_action", "Bad Request",
			"Workflow action is required")
	}

	res, err := h.manager.Apply(c.Params("id"), req.Action, req.Reason, req.Target)
	if err != nil {
		return h.domainError(c, err)
	}

	return c.JSON(WorkflowResponse{Project: res.Project, Message: res.Message})
}

// AddContext handles POST /api/v1/projects/:id/context.
func (h *Handlers) AddContext(c *fiber.Ctx) error {
	var req ContextRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	res, err := h.manager.AddContext(c.Params("id"), req.Key, req.Value)
	if err != nil {
		return h.domainError(c, err)
	}

	return c.JSON(WorkflowResponse{Project: res.Project, Message: res.Message})
}

// AppendConversation handles POST /api/v1/projects/:id/conversation.
func (h *Handlers) AppendConversation(c *fiber.Ctx) error {
	var req ConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Role != project.RoleUser && req.Role != project.RoleAgent {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_role", "Bad Request",
			"Role must be user or agent")
	}
	if strings.TrimSpace(req.Message) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_message", "Bad Request",
			"Message is required")
	}

	p, err := h.store.AppendConversation(c.Params("id"), req.Role, req.Message, req.Agent)
	if err != nil {
		return h.domainError(c, err)
	}

	return c.JSON(ProjectResponse{Project: p})
}

// Chat handles POST /api/v1/chat. When project_id is set, the turn is
// recorded in that project's conversation history and the specialist for its
// current stage answers; otherwise the coordinator answers statelessly.
func (h *Handlers) Chat(c *fiber.Ctx) error {
	if h.agents == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"chat_disabled", "Service Unavailable",
			"Chat is not configured (missing API key)")
	}

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_message", "Bad Request",
			"Message is required")
	}

	var current *project.Project
	if req.ProjectID != "" {
		p, err := h.store.Load(req.ProjectID)
		if err != nil {
			return h.domainError(c, err)
		}
		current = p
		if _, err := h.store.AppendConversation(req.ProjectID, project.RoleUser, req.Message, ""); err != nil {
			return h.domainError(c, err)
		}
	}

	reply, err := h.agents.Respond(c.Context(), current, req.Message)
	if err != nil {
		return problemResponse(c, fiber.StatusBadGateway,
			"llm_error", "Bad Gateway",
			"The assistant failed to respond: "+err.Error())
	}

	if req.ProjectID != "" {
		updated, err := h.store.AppendConversation(req.ProjectID, project.RoleAgent, reply.Text, reply.Agent)
		if err != nil {
			return h.domainError(c, err)
		}
		current = updated
	}

	return c.JSON(ChatResponse{Reply: reply.Text, Agent: reply.Agent, Project: current})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil && !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// domainError maps store and workflow errors onto HTTP problem responses.
func (h *Handlers) domainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"project_not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrInvalidTransition):
		return problemResponse(c, fiber.StatusConflict,
			"invalid_transition", "Conflict", err.Error())
	case errors.Is(err, perrors.ErrInvalidStage):
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_stage", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrMissingArgument):
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_argument", "Bad Request", err.Error())
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("storage error")
		return problemResponse(c, fiber.StatusInternalServerError,
			"storage_error", "Internal Server Error",
			"Project storage failed")
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
