package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/config"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "test-model" || req.ResponseFormat.Type != "json_object" || len(req.Messages) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestClassifierAnalyze(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, `{"qualityMultiplier":0.8,"keywords":["late","messy"]}`)
	defer srv.Close()

	c, err := NewClassifier(config.ClassifierConfig{Endpoint: srv.URL + "/v1", Model: "test-model", APIKey: "k"})
	require.NoError(t, err)

	got, err := c.Analyze(context.Background(), "they showed up late")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.QualityMultiplier, 1e-9)
	assert.Equal(t, []string{"late", "messy"}, got.Keywords)
}

func TestClassifierRejectsNonJSONContent(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, "not json")
	defer srv.Close()

	c, err := NewClassifier(config.ClassifierConfig{Endpoint: srv.URL + "/v1", Model: "test-model", APIKey: "k"})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewClassifierRequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	_, err := NewClassifier(config.ClassifierConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewClassifier(config.ClassifierConfig{APIKey: "k"})
	assert.Error(t, err)
}
