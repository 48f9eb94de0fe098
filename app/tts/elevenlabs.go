package tts

import (
	"context"
	"time"

	"resty.dev/v3"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

	// ElevenLabs 定价约 $0.03 / 1000 字符
	elevenLabsCostPerChar = 0.00003
	elevenLabsMaxChars    = 5000
)

// elevenLabsFeatures 固定能力表
var elevenLabsFeatures = map[string]bool{
	"voice_cloning":            true,
	"emotion_control":          true,
	"multi_language":           true,
	"high_quality":             true,
	"real_time":                true,
	"multi_speaker":            false,
	"natural_language_control": false,
}

// ElevenLabsProvider ElevenLabs 语音合成供应商
type ElevenLabsProvider struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

// NewElevenLabsProvider 创建 ElevenLabs 供应商
func NewElevenLabsProvider(apiKey string) *ElevenLabsProvider {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("xi-api-key", apiKey)

	return &ElevenLabsProvider{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		client:  client,
	}
}

// Name 供应商标识
func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// TextToSpeech 调用 ElevenLabs 接口合成语音
func (p *ElevenLabsProvider) TextToSpeech(ctx context.Context, text string, cfg VoiceConfig, outputPath string) (TTSResult, error) {
	if len(text) > elevenLabsMaxChars {
		err := &TextTooLongError{Provider: p.Name(), Length: len(text), MaxLength: elevenLabsMaxChars}
		return failure(p.Name(), len(text), err), err
	}

	body := map[string]any{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
		"voice_settings": map[string]any{
			"stability":         cfg.Stability,
			"similarity_boost":  cfg.SimilarityBoost,
			"style":             cfg.Style,
			"use_speaker_boost": cfg.UseSpeakerBoost,
		},
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Accept", "audio/mpeg").
		SetBody(body).
		Post(p.baseURL + "/text-to-speech/" + cfg.VoiceID)

	if err != nil {
		terr := &TransportError{Provider: p.Name(), Err: err}
		return failure(p.Name(), len(text), terr), terr
	}

	if resp.StatusCode() != 200 {
		herr := fromHTTPStatus(p.Name(), resp.StatusCode(), resp.String())
		return failure(p.Name(), len(text), herr), herr
	}

	if err := writeAudioFile(outputPath, resp.Bytes()); err != nil {
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

// AvailableVoices 拉取账户下的音色列表
func (p *ElevenLabsProvider) AvailableVoices(ctx context.Context) ([]Voice, error) {
	var result struct {
		Voices []struct {
			VoiceID string            `json:"voice_id"`
			Name    string            `json:"name"`
			Labels  map[string]string `json:"labels"`
		} `json:"voices"`
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(p.baseURL + "/voices")
	if err != nil {
		return nil, &TransportError{Provider: p.Name(), Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, fromHTTPStatus(p.Name(), resp.StatusCode(), resp.String())
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voices = append(voices, Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Language: v.Labels["language"],
			Provider: p.Name(),
		})
	}
	return voices, nil
}

// ValidateConfig 校验凭证有效性
func (p *ElevenLabsProvider) ValidateConfig(ctx context.Context) error {
	if p.apiKey == "" {
		return &AuthError{Provider: p.Name(), Message: "API 密钥为空"}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		Get(p.baseURL + "/user")
	if err != nil {
		return &TransportError{Provider: p.Name(), Err: err}
	}
	if resp.StatusCode() != 200 {
		return fromHTTPStatus(p.Name(), resp.StatusCode(), resp.String())
	}
	return nil
}

// CostEstimate 按字符数估算费用
func (p *ElevenLabsProvider) CostEstimate(characterCount int) float64 {
	return float64(characterCount) * elevenLabsCostPerChar
}

// SupportsFeature 查询能力表
func (p *ElevenLabsProvider) SupportsFeature(feature string) bool {
	return elevenLabsFeatures[feature]
}

// Info 供应商概要
func (p *ElevenLabsProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:           p.Name(),
		Features:       featureList(elevenLabsFeatures),
		CostPer1kChars: p.CostEstimate(1000),
		MaxTextLength:  elevenLabsMaxChars,
	}
}

// failure 构造失败结果
func failure(provider string, chars int, err error) TTSResult {
	return TTSResult{
		Success:        false,
		Provider:       provider,
		ErrorMessage:   err.Error(),
		CharacterCount: chars,
	}
}

// featureList 提取能力表中支持的特性名
func featureList(features map[string]bool) []string {
	var list []string
	for name, supported := range features {
		if supported {
			list = append(list, name)
		}
	}
	return list
}
