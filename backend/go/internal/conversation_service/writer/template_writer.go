package writer

import (
	"GeoCMS/backend/go/internal/models"
	"context"
	"strings"
)

type pageTemplate struct {
	title      string
	headings   []string
	paragraphs []string
	faqs       []map[string]interface{}
}

var pageTemplates = map[string]pageTemplate{
	"homepage": {
		title:    "欢迎来到我们的网站",
		headings: []string{"关于我们", "核心优势", "联系我们"},
		paragraphs: []string{
			"我们的公司致力于为客户提供专业、可靠的服务。",
			"本公司拥有经验丰富的团队，我们的产品在行业内广受好评。",
			"欢迎随时与我们取得联系，了解更多信息。",
		},
		faqs: []map[string]interface{}{
			{"question": "如何开始合作？", "answer": "通过联系页面留下您的需求，我们会尽快回复。"},
		},
	},
	"about": {
		title:    "关于我们",
		headings: []string{"公司简介", "发展历程", "团队介绍"},
		paragraphs: []string{
			"本公司成立以来始终专注于核心业务。",
			"我们的公司经历了多个发展阶段，不断成长。",
			"我们拥有一支专业、高效的团队。",
		},
	},
	"products": {
		title:    "产品介绍",
		headings: []string{"产品概览", "核心功能", "适用场景"},
		paragraphs: []string{
			"我们的产品为用户提供完整的解决方案。",
			"该产品具备稳定、易用、可扩展等特点。",
			"该产品适用于多种业务场景。",
		},
		faqs: []map[string]interface{}{
			{"question": "该产品如何收费？", "answer": "请联系我们获取详细报价。"},
		},
	},
	"contact": {
		title:    "联系我们",
		headings: []string{"联系方式", "办公地址"},
		paragraphs: []string{
			"如需了解我们的公司或产品，请通过以下方式联系我们。",
			"欢迎到本公司实地参观交流。",
		},
	},
	"blog": {
		title:    "最新文章",
		headings: []string{"近期动态", "经验分享"},
		paragraphs: []string{
			"这里记录了作者最近的思考与实践。",
			"欢迎阅读并留下您的看法。",
		},
	},
	"general": {
		title:    "页面内容",
		headings: []string{"概述", "详情"},
		paragraphs: []string{
			"这里是页面的概述内容。",
			"这里是页面的详细内容。",
		},
	},
}

// TemplateWriter 按页面类型生成确定性的结构化内容，并用知识上下文增强。
type TemplateWriter struct{}

// NewTemplateWriter 创建模板生成器。
func NewTemplateWriter() *TemplateWriter {
	return &TemplateWriter{}
}

// Generate 实现 Generator。
func (w *TemplateWriter) Generate(ctx context.Context, req *Request) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, ok := pageTemplates[req.PageType]
	if !ok {
		tpl = pageTemplates["general"]
	}

	body := map[string]interface{}{
		"title":      tpl.title,
		"headings":   append([]string(nil), tpl.headings...),
		"paragraphs": append([]string(nil), tpl.paragraphs...),
		"page_type":  req.PageType,
	}
	if len(tpl.faqs) > 0 {
		body["faqs"] = tpl.faqs
	}
	if len(req.KnowledgeContext) > 0 {
		enhanceWithKnowledge(body, req.KnowledgeContext)
	}
	body["knowledge_sources"] = req.KnowledgeTopics()

	return &Content{Format: models.ContentFormatStructured, Body: body}, nil
}

// enhanceWithKnowledge 用公司或产品名称替换标题前缀和段落中的占位说法。
func enhanceWithKnowledge(body map[string]interface{}, knowledge map[string]interface{}) {
	company := knowledgeName(knowledge, "company_info")
	product := knowledgeName(knowledge, "product_info")

	if title, ok := body["title"].(string); ok {
		switch {
		case company != "":
			body["title"] = company + " - " + title
		case product != "":
			body["title"] = product + " - " + title
		}
	}

	paragraphs, _ := body["paragraphs"].([]string)
	for i, p := range paragraphs {
		if company != "" {
			p = strings.ReplaceAll(p, "我们的公司", company)
			p = strings.ReplaceAll(p, "本公司", company)
		}
		if product != "" {
			p = strings.ReplaceAll(p, "我们的产品", product)
			p = strings.ReplaceAll(p, "该产品", product)
		}
		paragraphs[i] = p
	}
}
