package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kattapik/texttosql-project/pkg/logger"
)

func TestTextToSQL_LLM_OpenAI_Config(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://localhost"})
	require.ErrorContains(t, err, "logger is required")

	_, err = NewOpenAIClient(OpenAIConfig{Logger: logger.Discard(), BaseURL: "  "})
	require.ErrorContains(t, err, "base URL is required")

	c, err := NewOpenAIClient(OpenAIConfig{Logger: logger.Discard(), BaseURL: "http://localhost:11434/v1/"})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:11434/v1", c.baseURL)
	require.Equal(t, defaultOpenAIModel, c.model)
	require.Equal(t, defaultOpenAITimeout, c.client.Timeout)
}

func TestTextToSQL_LLM_OpenAI_Complete(t *testing.T) {
	t.Parallel()

	t.Run("returns the first choice", func(t *testing.T) {
		t.Parallel()

		var got chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/chat/completions", r.URL.Path)
			require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "[\"users\"]"}}]}`))
		}))
		t.Cleanup(srv.Close)

		c, err := NewOpenAIClient(OpenAIConfig{
			Logger:      logger.Discard(),
			BaseURL:     srv.URL + "/v1",
			APIKey:      "secret",
			Model:       "llama3",
			Temperature: 0.1,
		})
		require.NoError(t, err)

		reply, err := c.Complete(t.Context(), "system prompt", "user prompt")
		require.NoError(t, err)
		require.Equal(t, `["users"]`, reply)

		require.Equal(t, chatRequest{
			Model: "llama3",
			Messages: []chatMessage{
				{Role: "system", Content: "system prompt"},
				{Role: "user", Content: "user prompt"},
			},
			Temperature: 0.1,
		}, got)
	})

	t.Run("no authorization header without a key", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
		}))
		t.Cleanup(srv.Close)

		c, err := NewOpenAIClient(OpenAIConfig{Logger: logger.Discard(), BaseURL: srv.URL})
		require.NoError(t, err)
		reply, err := c.Complete(t.Context(), "s", "u")
		require.NoError(t, err)
		require.Equal(t, "ok", reply)
	})

	t.Run("failures", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			status  int
			body    string
			wantErr string
		}{
			{name: "http error", status: http.StatusUnauthorized, body: `{"error": "bad key"}`, wantErr: `chat completion failed status=401 body={"error": "bad key"}`},
			{name: "long body truncated", status: http.StatusInternalServerError, body: strings.Repeat("x", 2000), wantErr: strings.Repeat("x", maxErrorBodyLen) + "..."},
			{name: "bad json", status: http.StatusOK, body: "not json", wantErr: "decode chat completion response"},
			{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, wantErr: "empty chat completion choices"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(tt.body))
				}))
				t.Cleanup(srv.Close)

				c, err := NewOpenAIClient(OpenAIConfig{Logger: logger.Discard(), BaseURL: srv.URL})
				require.NoError(t, err)
				_, err = c.Complete(t.Context(), "s", "u")
				require.ErrorContains(t, err, tt.wantErr)
			})
		}
	})
}
