package pipeline

import (
	"context"
	"fmt"
	"time"
	"vidzyme/app/config"

	"resty.dev/v3"
)

// TextGenerator 基于 Gemini 文本接口的脚本生成器
type TextGenerator struct {
	apiKey string
	url    string
	client *resty.Client
}

// NewTextGenerator 创建文本生成器
func NewTextGenerator(cfg config.PipelineConfig) *TextGenerator {
	client := resty.New()
	client.SetTimeout(60 * time.Second)

	return &TextGenerator{
		apiKey: cfg.GeminiAPIKey,
		url:    cfg.GeminiURL,
		client: client,
	}
}

// geminiTextResponse 文本生成接口的响应结构
type geminiTextResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// text 取第一个候选的文本
func (r *geminiTextResponse) text() (string, error) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("响应中不包含生成文本")
	}
	return r.Candidates[0].Content.Parts[0].Text, nil
}

// Query 发送提示词并返回生成的文本
func (g *TextGenerator) Query(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": prompt}}},
		},
	}

	var result geminiTextResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&result).
		Post(g.url)
	if err != nil {
		return "", fmt.Errorf("请求文本生成接口失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("文本生成接口返回 %d: %s", resp.StatusCode(), resp.String())
	}

	return result.text()
}

// GenerateTitle 围绕主题生成候选标题并取第一个
func (g *TextGenerator) GenerateTitle(ctx context.Context, topic string) (string, error) {
	prompt := fmt.Sprintf("Give me 5 YouTube Shorts titles related to the topic '%s' separated by commas", topic)
	raw, err := g.Query(ctx, prompt)
	if err != nil {
		return "", err
	}

	title := ExtractTitle(raw)
	if title == "" {
		return "", fmt.Errorf("生成的标题为空")
	}
	return title, nil
}

// GenerateScript 围绕标题生成一分钟左右的解说脚本
func (g *TextGenerator) GenerateScript(ctx context.Context, title string) (string, error) {
	prompt := fmt.Sprintf("Explain this topic '%s' briefly in one minute. Be creative.", title)
	script, err := g.Query(ctx, prompt)
	if err != nil {
		return "", err
	}
	if script == "" {
		return "", fmt.Errorf("生成的脚本为空")
	}
	return script, nil
}
