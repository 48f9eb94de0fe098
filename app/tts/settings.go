package tts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"vidzyme/app/config"
)

// ProviderSettings 单个供应商的启用状态与优先级
type ProviderSettings struct {
	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"` // 数值越小越优先
}

// Settings 语音合成选择策略配置
// 持久化为 JSON 文件，文件不存在时写入默认值
type Settings struct {
	PrimaryProvider   string                       `json:"primary_provider"`
	FallbackProvider  string                       `json:"fallback_provider"`
	CostThreshold     float64                      `json:"cost_threshold"`
	QualityPreference string                       `json:"quality_preference"` // high / standard / cost_effective
	AutoFallback      bool                         `json:"auto_fallback"`
	Providers         map[string]ProviderSettings  `json:"providers"`
	VoiceMappings     map[string]map[string]string `json:"voice_mappings"`
}

// defaultSettings 基于应用配置构造默认策略
func defaultSettings(cfg config.TTSConfig) *Settings {
	return &Settings{
		PrimaryProvider:   cfg.PrimaryProvider,
		FallbackProvider:  cfg.FallbackProvider,
		CostThreshold:     cfg.CostThreshold,
		QualityPreference: cfg.QualityPreference,
		AutoFallback:      cfg.AutoFallback,
		Providers: map[string]ProviderSettings{
			"elevenlabs": {Enabled: true, Priority: 1},
			"gemini":     {Enabled: true, Priority: 2},
		},
		VoiceMappings: map[string]map[string]string{
			"arabic_male":    {"elevenlabs": "pNInz6obpgDQGcFmaJgB", "gemini": "Charon"},
			"arabic_female":  {"elevenlabs": "Xb7hH8MSUJpSbSDYk0k2", "gemini": "Aoede"},
			"english_male":   {"elevenlabs": "29vD33N1CtxCmqQRPOHJ", "gemini": "Puck"},
			"english_female": {"elevenlabs": "21m00Tcm4TlvDq8ikWAM", "gemini": "Kore"},
			"default":        {"elevenlabs": "21m00Tcm4TlvDq8ikWAM", "gemini": "Kore"},
		},
	}
}

// LoadSettings 从 JSON 文件加载策略，文件不存在时创建默认配置
func LoadSettings(cfg config.TTSConfig) (*Settings, error) {
	path := cfg.ConfigFile

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		settings := defaultSettings(cfg)
		if err := settings.Save(path); err != nil {
			return nil, err
		}
		return settings, nil
	}
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("读取 TTS 配置失败: %v", err)}
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("解析 TTS 配置失败: %v", err)}
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save 校验并将策略写入 JSON 文件
func (s *Settings) Save(path string) error {
	if err := s.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ConfigError{Message: fmt.Sprintf("创建配置目录失败: %v", err)}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &ConfigError{Message: fmt.Sprintf("序列化 TTS 配置失败: %v", err)}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ConfigError{Message: fmt.Sprintf("写入 TTS 配置失败: %v", err)}
	}
	return nil
}

// validate 校验策略合法性
func (s *Settings) validate() error {
	switch s.QualityPreference {
	case "high", "standard", "cost_effective":
	case "":
		s.QualityPreference = "high"
	default:
		return &ConfigError{Message: "无效的音质偏好: " + s.QualityPreference}
	}
	if s.CostThreshold < 0 {
		return &ConfigError{Message: "成本阈值不能为负数"}
	}
	return nil
}

// ProviderEnabled 检查供应商是否启用
func (s *Settings) ProviderEnabled(name string) bool {
	return s.Providers[name].Enabled
}

// VoiceFor 查找音色键在指定供应商下的音色ID
// 未配置时回退到 default 映射
func (s *Settings) VoiceFor(voiceKey, provider string) string {
	if mapping, ok := s.VoiceMappings[voiceKey]; ok {
		if id, ok := mapping[provider]; ok {
			return id
		}
	}
	if mapping, ok := s.VoiceMappings["default"]; ok {
		return mapping[provider]
	}
	return ""
}
