// Package verifier 对生成的内容做规则校验并打分。
package verifier

import (
	"GeoCMS/backend/go/internal/conversation_service/writer"
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// 评级阈值。
const (
	PassScore      = 0.6
	GoodScore      = 0.75
	ExcellentScore = 0.9
)

// Result 是一次校验的结果。
type Result struct {
	OverallScore float64  `json:"overall_score"`
	Passed       bool     `json:"passed"`
	Grade        string   `json:"grade"`
	IssuesFound  []string `json:"issues_found"`
	Suggestions  []string `json:"suggestions"`
}

// Verifier 校验一段生成内容。
type Verifier interface {
	Verify(ctx context.Context, content *writer.Content, knowledge map[string]interface{}) (*Result, error)
}

// RuleVerifier 基于简单规则打分：标题、正文长度、章节数、知识使用情况，各占四分之一。
type RuleVerifier struct {
	MinBodyRunes int
	MinSections  int
}

// NewRuleVerifier 返回使用默认阈值的 RuleVerifier。
func NewRuleVerifier() *RuleVerifier {
	return &RuleVerifier{MinBodyRunes: 40, MinSections: 2}
}

// Verify 实现 Verifier。
func (v *RuleVerifier) Verify(ctx context.Context, content *writer.Content, knowledge map[string]interface{}) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if content == nil || content.Body == nil {
		return nil, fmt.Errorf("empty content")
	}

	res := &Result{IssuesFound: []string{}, Suggestions: []string{}}
	score := 0.0

	if strings.TrimSpace(content.Title()) != "" {
		score += 0.25
	} else {
		res.IssuesFound = append(res.IssuesFound, "缺少标题")
		res.Suggestions = append(res.Suggestions, "为页面添加一个吸引人的标题")
	}

	text, sections := flatten(content)
	if utf8.RuneCountInString(text) >= v.MinBodyRunes {
		score += 0.25
	} else {
		res.IssuesFound = append(res.IssuesFound, "正文内容过短")
		res.Suggestions = append(res.Suggestions, "补充更详细的段落内容")
	}

	if sections >= v.MinSections {
		score += 0.25
	} else {
		res.IssuesFound = append(res.IssuesFound, "章节数量不足")
		res.Suggestions = append(res.Suggestions, fmt.Sprintf("至少包含 %d 个章节", v.MinSections))
	}

	score += 0.25 * knowledgeCoverage(content, text, knowledge, res)

	res.OverallScore = math.Round(score*100) / 100
	res.Passed = res.OverallScore >= PassScore
	res.Grade = Grade(res.OverallScore)
	return res, nil
}

// Grade 把分数映射为评级。
func Grade(score float64) string {
	switch {
	case score >= ExcellentScore:
		return "excellent"
	case score >= GoodScore:
		return "good"
	case score >= PassScore:
		return "fair"
	default:
		return "poor"
	}
}

// flatten 返回正文文本与章节数。
func flatten(content *writer.Content) (string, int) {
	if md, ok := content.Body["markdown"].(string); ok {
		sections := 0
		for _, line := range strings.Split(md, "\n") {
			if strings.HasPrefix(line, "## ") {
				sections++
			}
		}
		return md, sections
	}

	var sb strings.Builder
	for _, p := range stringList(content.Body["paragraphs"]) {
		sb.WriteString(p)
	}
	return sb.String(), len(stringList(content.Body["headings"]))
}

// knowledgeCoverage 返回知识主题被使用的比例；没有知识时视为满分。
func knowledgeCoverage(content *writer.Content, text string, knowledge map[string]interface{}, res *Result) float64 {
	if len(knowledge) == 0 {
		return 1
	}
	sources := map[string]bool{}
	for _, s := range stringList(content.Body["knowledge_sources"]) {
		sources[s] = true
	}

	used := 0
	for topic, entry := range knowledge {
		name := ""
		if m, ok := entry.(map[string]interface{}); ok {
			name, _ = m["name"].(string)
		}
		switch {
		case name != "" && (strings.Contains(text, name) || strings.Contains(content.Title(), name)):
			used++
		case name == "" && sources[topic]:
			used++
		default:
			res.IssuesFound = append(res.IssuesFound, fmt.Sprintf("未使用知识: %s", topic))
			res.Suggestions = append(res.Suggestions, fmt.Sprintf("在内容中体现 %s 的信息", topic))
		}
	}
	return float64(used) / float64(len(knowledge))
}

// stringList 兼容 []string 与 JSON 解码得到的 []interface{}。
func stringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
