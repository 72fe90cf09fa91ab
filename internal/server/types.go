// Package server provides the procbot HTTP API.
package server

import "github.com/procbot-io/procbot/internal/project"

// --- Request DTOs ---

// CreateProjectRequest is the payload for POST /api/v1/projects.
type CreateProjectRequest struct {
	ProjectName string            `json:"project_name"`
	Context     map[string]string `json:"context,omitempty"`
}

// WorkflowRequest is the payload for POST /api/v1/projects/:id/workflow.
type WorkflowRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
	Target string `json:"target,omitempty"`
}

// ContextRequest is the payload for POST /api/v1/projects/:id/context.
type ContextRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ConversationRequest is the payload for POST /api/v1/projects/:id/conversation.
type ConversationRequest struct {
	Role    string `json:"role"`
	Message string `json:"message"`
	Agent   string `json:"agent,omitempty"`
}

// ChatRequest is the payload for POST /api/v1/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	ProjectID string `json:"project_id,omitempty"`
}

// --- Response DTOs ---

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Project *project.Project `json:"project"`
}

// ProjectListResponse wraps the project listing.
type ProjectListResponse struct {
	Projects []project.Summary `json:"projects"`
	Total    int               `json:"total"`
}

// WorkflowResponse is the response for workflow actions.
type WorkflowResponse struct {
	Project *project.Project `json:"project"`
	Message string           `json:"message"`
}

// ChatResponse is the response for POST /api/v1/chat.
type ChatResponse struct {
	Reply   string           `json:"reply"`
	Agent   string           `json:"agent"`
	Project *project.Project `json:"project,omitempty"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
