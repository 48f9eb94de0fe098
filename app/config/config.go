package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"` // 最大并发任务数
	MaxRetries         int `mapstructure:"max_retries"`          // 单个任务最大重试次数
	// 各外部服务的速率限制（时间窗口内允许的调用次数）
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
}

// RateLimitConfig 滑动窗口速率限制配置
type RateLimitConfig struct {
	MaxCalls   int `mapstructure:"max_calls"`   // 窗口内最大调用次数
	TimeWindow int `mapstructure:"time_window"` // 窗口长度（秒）
}

// PipelineConfig 视频生成流水线配置
type PipelineConfig struct {
	OutputDir    string `mapstructure:"output_dir"`    // 输出目录
	GeminiAPIKey string `mapstructure:"gemini_api_key"` // 文本生成 API 密钥
	GeminiURL    string `mapstructure:"gemini_url"`     // 文本生成 API 地址
	ImageAPIURL  string `mapstructure:"image_api_url"`  // 图片生成 API 地址
	FFmpegPath   string `mapstructure:"ffmpeg_path"`    // 媒体渲染工具路径
	FontPath     string `mapstructure:"font_path"`      // 字幕字体文件路径（可选）
}

// TTSConfig 语音合成配置
type TTSConfig struct {
	ConfigFile        string  `mapstructure:"config_file"`        // 供应商配置 JSON 文件路径
	ElevenLabsKey     string  `mapstructure:"elevenlabs_api_key"` // ElevenLabs API 密钥
	GeminiKey         string  `mapstructure:"gemini_api_key"`     // Gemini TTS API 密钥
	PrimaryProvider   string  `mapstructure:"primary_provider"`
	FallbackProvider  string  `mapstructure:"fallback_provider"`
	CostThreshold     float64 `mapstructure:"cost_threshold"`
	QualityPreference string  `mapstructure:"quality_preference"` // high / standard / cost_effective
	AutoFallback      bool    `mapstructure:"auto_fallback"`
}

// SchedulerConfig 定时调度配置
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Timezone string `mapstructure:"timezone"`
}

func Load() *Config {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "vidzyme")

	// 队列默认配置
	viper.SetDefault("queue.max_concurrent_tasks", 3)
	viper.SetDefault("queue.max_retries", 3)
	viper.SetDefault("queue.rate_limits.gemini.max_calls", 60)
	viper.SetDefault("queue.rate_limits.gemini.time_window", 60)
	viper.SetDefault("queue.rate_limits.elevenlabs.max_calls", 120)
	viper.SetDefault("queue.rate_limits.elevenlabs.time_window", 60)
	viper.SetDefault("queue.rate_limits.veo3.max_calls", 30)
	viper.SetDefault("queue.rate_limits.veo3.time_window", 60)

	// 流水线默认配置
	viper.SetDefault("pipeline.output_dir", "outputs")
	viper.SetDefault("pipeline.gemini_url", "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash-latest:generateContent")
	viper.SetDefault("pipeline.image_api_url", "https://image.pollinations.ai/prompt")
	viper.SetDefault("pipeline.ffmpeg_path", "ffmpeg")

	// TTS默认配置
	viper.SetDefault("tts.config_file", "data/tts_config.json")
	viper.SetDefault("tts.primary_provider", "elevenlabs")
	viper.SetDefault("tts.fallback_provider", "gemini")
	viper.SetDefault("tts.cost_threshold", 0.10)
	viper.SetDefault("tts.quality_preference", "high")
	viper.SetDefault("tts.auto_fallback", true)

	// 调度器默认配置
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.timezone", "UTC")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Queue.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("最大并发任务数必须大于 0")
	}
	switch config.TTS.QualityPreference {
	case "high", "standard", "cost_effective":
	default:
		return fmt.Errorf("无效的音质偏好: %s", config.TTS.QualityPreference)
	}
	return nil
}
