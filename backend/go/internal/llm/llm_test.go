package llm

import (
	"GeoCMS/backend/go/internal/config"
	"GeoCMS/backend/go/internal/models"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *models.GenerateContentRequest {
	return &models.GenerateContentRequest{
		Messages: []models.Message{
			{Role: models.SpeakerSystem, Text: "你是网站内容编辑"},
			{Role: models.SpeakerUser, Text: "生成homepage页面内容"},
		},
		Temperature: 0.2,
		MaxTokens:   256,
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "mock"})
	assert.Error(t, err)

	_, err = NewClient(config.LLMConfig{Provider: "openai"})
	assert.Error(t, err, "model is required")

	c, err := NewClient(config.LLMConfig{Provider: "ollama", Ollama: config.OllamaConfig{Model: "qwen2"}})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, c)
}

func TestOpenAI_GenerateContent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":"# 首页"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI("gpt-test", "sk-test", srv.URL+"/v1")
	require.NoError(t, err)

	resp, err := c.GenerateContent(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "# 首页", resp.Text)
	assert.Equal(t, "chatcmpl-1", resp.ResponseID)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAI_SamplingFields(t *testing.T) {
	o, err := NewOpenAI("gpt-test", "sk-test", "")
	require.NoError(t, err)

	r := o.toOpenAIRequest(sampleRequest())
	require.NotNil(t, r.Temperature)
	assert.InDelta(t, 0.2, *r.Temperature, 1e-6)
	assert.Equal(t, 256, r.MaxTokens)

	req := sampleRequest()
	req.Temperature = 0
	r = o.toOpenAIRequest(req)
	assert.Nil(t, r.Temperature)
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI("gpt-test", "sk-test", srv.URL)
	require.NoError(t, err)
	_, err = c.GenerateContent(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOllama_GenerateContent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"qwen2","response":"欢迎访问","done":true}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewOllama("qwen2", srv.URL)
	require.NoError(t, err)

	resp, err := c.GenerateContent(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "欢迎访问", resp.Text)
	assert.Equal(t, "qwen2", resp.ModelVersion)
	assert.Equal(t, "你是网站内容编辑", got["system"])
	assert.Equal(t, "生成homepage页面内容", got["prompt"])
	assert.Equal(t, false, got["stream"])
}

func TestOllama_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewOllama("missing", srv.URL)
	require.NoError(t, err)
	_, err = c.GenerateContent(context.Background(), sampleRequest())
	assert.Error(t, err)
}
