package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"resty.dev/v3"
)

const (
	geminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	geminiTTSModel = "gemini-2.5-flash-preview-tts"

	// Gemini 定价约 $0.016 / 1000 字符，显著低于 ElevenLabs
	geminiCostPerChar = 0.000016
	geminiMaxChars    = 32000
)

// geminiFeatures 固定能力表
var geminiFeatures = map[string]bool{
	"voice_cloning":            false,
	"emotion_control":          true,
	"multi_language":           true,
	"high_quality":             true,
	"real_time":                false,
	"multi_speaker":            true,
	"natural_language_control": true,
	"cost_effective":           true,
}

// geminiVoices Gemini 的预置音色（接口不提供音色列表查询）
var geminiVoices = []Voice{
	{ID: "Puck", Name: "Puck", Language: "multi", Provider: "gemini"},
	{ID: "Charon", Name: "Charon", Language: "multi", Provider: "gemini"},
	{ID: "Kore", Name: "Kore", Language: "multi", Provider: "gemini"},
	{ID: "Fenrir", Name: "Fenrir", Language: "multi", Provider: "gemini"},
	{ID: "Aoede", Name: "Aoede", Language: "multi", Provider: "gemini"},
}

// GeminiProvider Gemini 语音合成供应商，作为低成本备选
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

// NewGeminiProvider 创建 Gemini 供应商
func NewGeminiProvider(apiKey string) *GeminiProvider {
	client := resty.New()
	client.SetTimeout(60 * time.Second)

	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		client:  client,
	}
}

// Name 供应商标识
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// TextToSpeech 调用 Gemini 接口合成语音
// 音频以 base64 内联在 JSON 响应里返回
func (p *GeminiProvider) TextToSpeech(ctx context.Context, text string, cfg VoiceConfig, outputPath string) (TTSResult, error) {
	if len(text) > geminiMaxChars {
		err := &TextTooLongError{Provider: p.Name(), Length: len(text), MaxLength: geminiMaxChars}
		return failure(p.Name(), len(text), err), err
	}

	prompt := text
	if cfg.Emotion != "" {
		// Gemini 支持自然语言风格控制，把情绪要求拼进提示词
		prompt = fmt.Sprintf("Say in a %s tone: %s", cfg.Emotion, text)
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]any{"voiceName": cfg.VoiceID},
				},
			},
		},
	}

	var result geminiTTSResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, geminiTTSModel))

	if err != nil {
		terr := &TransportError{Provider: p.Name(), Err: err}
		return failure(p.Name(), len(text), terr), terr
	}
	if resp.StatusCode() != 200 {
		herr := fromHTTPStatus(p.Name(), resp.StatusCode(), resp.String())
		return failure(p.Name(), len(text), herr), herr
	}

	audio, err := result.audioData()
	if err != nil {
		return failure(p.Name(), len(text), err), err
	}

	if err := writeAudioFile(outputPath, audio); err != nil {
		return failure(p.Name(), len(text), err), err
	}

	return TTSResult{
		Success:        true,
		Provider:       p.Name(),
		AudioPath:      outputPath,
		CostEstimate:   p.CostEstimate(len(text)),
		CharacterCount: len(text),
	}, nil
}

// geminiTTSResponse Gemini 合成接口的响应结构
type geminiTTSResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// audioData 从响应中取出并解码内联音频
func (r *geminiTTSResponse) audioData() ([]byte, error) {
	for _, c := range r.Candidates {
		for _, part := range c.Content.Parts {
			if part.InlineData.Data == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("解码音频数据失败: %w", err)
			}
			return audio, nil
		}
	}
	return nil, fmt.Errorf("响应中不包含音频数据")
}

// AvailableVoices 返回预置音色
func (p *GeminiProvider) AvailableVoices(ctx context.Context) ([]Voice, error) {
	voices := make([]Voice, len(geminiVoices))
	copy(voices, geminiVoices)
	return voices, nil
}

// ValidateConfig 校验凭证有效性
func (p *GeminiProvider) ValidateConfig(ctx context.Context) error {
	if p.apiKey == "" {
		return &AuthError{Provider: p.Name(), Message: "API 密钥为空"}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		Get(p.baseURL + "/models")
	if err != nil {
		return &TransportError{Provider: p.Name(), Err: err}
	}
	if resp.StatusCode() != 200 {
		return fromHTTPStatus(p.Name(), resp.StatusCode(), resp.String())
	}
	return nil
}

// CostEstimate 按字符数估算费用
func (p *GeminiProvider) CostEstimate(characterCount int) float64 {
	return float64(characterCount) * geminiCostPerChar
}

// SupportsFeature 查询能力表
func (p *GeminiProvider) SupportsFeature(feature string) bool {
	return geminiFeatures[feature]
}

// Info 供应商概要
func (p *GeminiProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:           p.Name(),
		Features:       featureList(geminiFeatures),
		CostPer1kChars: p.CostEstimate(1000),
		MaxTextLength:  geminiMaxChars,
	}
}
