package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// VoiceConfig 语音合成请求描述，创建后不再修改
type VoiceConfig struct {
	VoiceID         string  `json:"voice_id"`
	Provider        string  `json:"provider"`
	Language        string  `json:"language"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
	Pitch           float64 `json:"pitch"`
	Emotion         string  `json:"emotion,omitempty"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceConfig 默认合成参数
func DefaultVoiceConfig(voiceID, provider string) VoiceConfig {
	return VoiceConfig{
		VoiceID:         voiceID,
		Provider:        provider,
		Language:        "en",
		Speed:           1.0,
		Pitch:           1.0,
		Stability:       0.5,
		SimilarityBoost: 0.5,
		UseSpeakerBoost: true,
	}
}

// TTSResult 一次合成的结果
type TTSResult struct {
	Success        bool    `json:"success"`
	Provider       string  `json:"provider,omitempty"`
	AudioPath      string  `json:"audio_path,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	CostEstimate   float64 `json:"cost_estimate,omitempty"`
	CharacterCount int     `json:"character_count"`
}

// Voice 供应商的一个可用音色
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Provider string `json:"provider"`
}

// ProviderInfo 供应商概要信息，用于对比展示
type ProviderInfo struct {
	Name            string   `json:"name"`
	Features        []string `json:"features"`
	CostPer1kChars  float64  `json:"cost_per_1k_chars"`
	MaxTextLength   int      `json:"max_text_length"`
	CostEstimate    float64  `json:"cost_estimate,omitempty"`
	Available       bool     `json:"available"`
	ValidationError string   `json:"error,omitempty"`
}

// Provider 语音合成供应商接口
type Provider interface {
	// Name 供应商标识（注册名）
	Name() string

	// TextToSpeech 合成语音并写入 outputPath
	// 失败时不得留下写了一半的文件
	TextToSpeech(ctx context.Context, text string, cfg VoiceConfig, outputPath string) (TTSResult, error)

	// AvailableVoices 列出可用音色
	AvailableVoices(ctx context.Context) ([]Voice, error)

	// ValidateConfig 探测可达性与凭证有效性
	ValidateConfig(ctx context.Context) error

	// CostEstimate 估算指定字符数的费用（美元）
	CostEstimate(characterCount int) float64

	// SupportsFeature 按固定能力表判断是否支持某特性
	SupportsFeature(feature string) bool

	// Info 供应商概要
	Info() ProviderInfo
}

// writeAudioFile 原子写入音频文件：先写临时文件再改名
// 自动创建父目录，失败时清理临时文件
func writeAudioFile(outputPath string, data []byte) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tts-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入音频数据失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("移动音频文件失败: %w", err)
	}
	return nil
}
