package writer

import (
	"GeoCMS/backend/go/internal/models"
	"GeoCMS/backend/go/pkg/circuitbreaker"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	text  string
	err   error
	calls int32
	last  *models.GenerateContentRequest
}

func (f *fakeLLM) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.GenerateContentResponse{Text: f.text, ModelVersion: "fake-1"}, nil
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(ctx context.Context, req *Request) (*Content, error) {
	return nil, g.err
}

func homepageRequest(knowledge map[string]interface{}) *Request {
	return &Request{
		RunID:            "run-1",
		UserIntent:       "做一个企业官网",
		PageType:         "homepage",
		KnowledgeContext: knowledge,
		Slots: map[string]interface{}{
			"site_type":         "企业官网",
			"brand_name":        "Acme",
			"knowledge_context": knowledge,
		},
	}
}

func TestRequestPrompt(t *testing.T) {
	assert.Equal(t, "生成homepage页面内容", (&Request{PageType: "homepage"}).Prompt())
	assert.Equal(t, "生成general页面内容", (&Request{}).Prompt())
}

func TestTemplateWriter_NoKnowledge(t *testing.T) {
	content, err := NewTemplateWriter().Generate(context.Background(), homepageRequest(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ContentFormatStructured, content.Format)
	assert.Equal(t, "欢迎来到我们的网站", content.Title())
	assert.Empty(t, content.Body["knowledge_sources"])
}

func TestTemplateWriter_EnhancesWithKnowledge(t *testing.T) {
	knowledge := map[string]interface{}{
		"company_info": map[string]interface{}{"name": "示例科技"},
		"product_info": map[string]interface{}{"name": "智能助手"},
	}
	content, err := NewTemplateWriter().Generate(context.Background(), homepageRequest(knowledge))
	require.NoError(t, err)

	assert.Equal(t, "示例科技 - 欢迎来到我们的网站", content.Title())
	paragraphs := content.Body["paragraphs"].([]string)
	assert.Contains(t, paragraphs[0], "示例科技致力于")
	assert.Contains(t, paragraphs[1], "智能助手在行业内")
	assert.NotContains(t, strings.Join(paragraphs, ""), "本公司")
	assert.Equal(t, []string{"company_info", "product_info"}, content.Body["knowledge_sources"])

	// templates themselves are not mutated
	again, err := NewTemplateWriter().Generate(context.Background(), homepageRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "欢迎来到我们的网站", again.Title())
	assert.Contains(t, again.Body["paragraphs"].([]string)[0], "我们的公司")
}

func TestTemplateWriter_UnknownPageTypeUsesGeneral(t *testing.T) {
	content, err := NewTemplateWriter().Generate(context.Background(), &Request{PageType: "pricing"})
	require.NoError(t, err)
	assert.Equal(t, "页面内容", content.Title())
	assert.Equal(t, "pricing", content.Body["page_type"])
}

func TestTemplateWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTemplateWriter().Generate(ctx, homepageRequest(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPrompt(t *testing.T) {
	knowledge := map[string]interface{}{"company_info": map[string]interface{}{"name": "示例科技"}}
	prompt := BuildPrompt(homepageRequest(knowledge))

	assert.Contains(t, prompt, "主题：生成homepage页面内容")
	assert.Contains(t, prompt, "- brand_name: Acme")
	assert.Contains(t, prompt, `- company_info: {"name":"示例科技"}`)
	assert.NotContains(t, prompt, "- knowledge_context:")
}

func TestLLMWriter_Markdown(t *testing.T) {
	client := &fakeLLM{text: "# 示例科技首页\n\n欢迎访问。"}
	w := NewLLMWriter(client, WithSampling(0.3, 512))

	content, err := w.Generate(context.Background(), homepageRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, models.ContentFormatMarkdown, content.Format)
	assert.Equal(t, "示例科技首页", content.Title())
	assert.Equal(t, "fake-1", content.Body["model"])
	assert.Equal(t, float32(0.3), client.last.Temperature)
	assert.Equal(t, 512, client.last.MaxTokens)
	require.Len(t, client.last.Messages, 2)
	assert.Equal(t, models.SpeakerSystem, client.last.Messages[0].Role)
}

func TestLLMWriter_ConvertsHTML(t *testing.T) {
	client := &fakeLLM{text: "<h1>产品介绍</h1><p>这是<strong>核心</strong>功能。</p>"}
	content, err := NewLLMWriter(client).Generate(context.Background(), homepageRequest(nil))
	require.NoError(t, err)

	md := content.Body["markdown"].(string)
	assert.Contains(t, md, "# 产品介绍")
	assert.Contains(t, md, "**核心**")
	assert.NotContains(t, md, "<p>")
	assert.Equal(t, "产品介绍", content.Title())
}

func TestLLMWriter_BreakerOpens(t *testing.T) {
	client := &fakeLLM{err: errors.New("upstream 500")}
	breaker := circuitbreaker.New(2, 1, time.Minute)
	w := NewLLMWriter(client, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := w.Generate(context.Background(), homepageRequest(nil))
		require.Error(t, err)
	}
	_, err := w.Generate(context.Background(), homepageRequest(nil))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&client.calls))
}

func TestFallbackWriter(t *testing.T) {
	w := NewFallbackWriter(failingGenerator{err: errors.New("boom")}, NewTemplateWriter())
	content, err := w.Generate(context.Background(), homepageRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "欢迎来到我们的网站", content.Title())
}

func TestFallbackWriter_TimeoutIsNotMasked(t *testing.T) {
	w := NewFallbackWriter(failingGenerator{err: context.DeadlineExceeded}, NewTemplateWriter())
	_, err := w.Generate(context.Background(), homepageRequest(nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
