package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/procbot-io/procbot/internal/errors"
)

// roundTripFunc lets tests redirect the provider's HTTP client to a test server.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testProvider(t *testing.T, handler http.HandlerFunc, opts ...AnthropicOption) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			redirected := r.Clone(r.Context())
			redirected.URL.Scheme = "http"
			redirected.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(redirected)
		}),
	}
	opts = append([]AnthropicOption{WithHTTPClient(client)}, opts...)
	return NewAnthropicProvider("test-key", opts...)
}

func TestNewAnthropicProvider_Defaults(t *testing.T) {
	p := NewAnthropicProvider("key")
	assert.Equal(t, defaultModel, p.ModelID())
	assert.Equal(t, defaultMaxTokens, p.MaxTokens())
}

func TestNewAnthropicProvider_Options(t *testing.T) {
	p := NewAnthropicProvider("key", WithModel("claude-haiku-4-5"), WithMaxTokens(1024))
	assert.Equal(t, "claude-haiku-4-5", p.ModelID())
	assert.Equal(t, 1024, p.MaxTokens())
}

func TestNewAnthropicProvider_EmptyOptionsIgnored(t *testing.T) {
	p := NewAnthropicProvider("key", WithModel(""), WithMaxTokens(0))
	assert.Equal(t, defaultModel, p.ModelID())
	assert.Equal(t, defaultMaxTokens, p.MaxTokens())
}

func TestComplete_Success(t *testing.T) {
	var gotReq anthropicRequest
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "Three vendors stand out."}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 42, "output_tokens": 7},
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "You are a procurement assistant.",
		Messages:     []Message{{Role: RoleUser, Content: "Which vendors?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Three vendors stand out.", resp.Text)
	assert.Equal(t, StopReasonEndTurn, resp.StopReason)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)

	assert.Equal(t, "You are a procurement assistant.", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, RoleUser, gotReq.Messages[0].Role)
}

func TestComplete_RequestOverrides(t *testing.T) {
	var gotReq anthropicRequest
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]any{}, "stop_reason": "end_turn"})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Model:       "claude-haiku-4-5",
		MaxTokens:   256,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	require.NotNil(t, gotReq.Temperature)
	assert.InDelta(t, 0.2, *gotReq.Temperature, 0.001)
}

func TestComplete_ProviderTemperatureDefault(t *testing.T) {
	var gotReq anthropicRequest
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]any{}, "stop_reason": "end_turn"})
	}, WithTemperature(0.7))

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.NotNil(t, gotReq.Temperature)
	assert.InDelta(t, 0.7, *gotReq.Temperature, 0.001)
}

func TestComplete_APIError(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
		})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, perrors.IsRetryable(err))

	var apiErr *perrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "anthropic", apiErr.Service)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "slow down")
}

func TestComplete_BadRequestNotRetryable(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]string{"type": "invalid_request_error", "message": "bad payload"},
		})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.False(t, perrors.IsRetryable(err))
}

func TestComplete_MultipleTextBlocks(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "part one. "},
				{"type": "text", "text": "part two."},
			},
			"stop_reason": "end_turn",
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "part one. part two.", resp.Text)
}
