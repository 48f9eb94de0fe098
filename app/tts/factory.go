package tts

import (
	"context"
	"sort"
	"sync"
	"time"
	"vidzyme/app/config"
	"vidzyme/app/logger"

	gocache "github.com/patrickmn/go-cache"
)

// voiceCacheKey 音色列表的缓存键
const voiceCacheKey = "all_voices"

// providerConstructor 已知供应商的构造函数表
var providerConstructors = map[string]func(cfg config.TTSConfig) Provider{
	"elevenlabs": func(cfg config.TTSConfig) Provider { return NewElevenLabsProvider(cfg.ElevenLabsKey) },
	"gemini":     func(cfg config.TTSConfig) Provider { return NewGeminiProvider(cfg.GeminiKey) },
}

// Factory 语音合成供应商工厂
// 注册表在启动时整体初始化，配置更新时整体重建，不支持单个供应商热替换
type Factory struct {
	logger   *logger.Logger
	cfg      config.TTSConfig
	settings *Settings

	names      []string // 注册顺序（按优先级），选择时平局以先注册者优先
	providers  map[string]Provider
	voiceCache *gocache.Cache
	mu         sync.RWMutex
}

// NewFactory 创建工厂并初始化所有启用的供应商
func NewFactory(cfg config.TTSConfig, log *logger.Logger) (*Factory, error) {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return nil, err
	}

	f := &Factory{
		logger:     log,
		cfg:        cfg,
		settings:   settings,
		providers:  make(map[string]Provider),
		voiceCache: gocache.New(10*time.Minute, 30*time.Minute),
	}
	f.initProviders(context.Background())
	return f, nil
}

// initProviders 按优先级初始化所有启用且通过校验的供应商
func (f *Factory) initProviders(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.names = nil
	f.providers = make(map[string]Provider)

	// 按配置优先级排序，未知供应商跳过
	type candidate struct {
		name     string
		priority int
	}
	var candidates []candidate
	for name, ps := range f.settings.Providers {
		if !ps.Enabled {
			continue
		}
		if _, known := providerConstructors[name]; !known {
			f.logger.Warnf("跳过未知的 TTS 供应商: %s", name)
			continue
		}
		candidates = append(candidates, candidate{name: name, priority: ps.Priority})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].name < candidates[j].name
	})

	for _, c := range candidates {
		provider := providerConstructors[c.name](f.cfg)
		if err := provider.ValidateConfig(ctx); err != nil {
			f.logger.Warnf("TTS 供应商校验失败，已排除: %s, 错误=%v", c.name, err)
			continue
		}
		f.names = append(f.names, c.name)
		f.providers[c.name] = provider
		f.logger.Infof("TTS 供应商已初始化: %s", c.name)
	}

	if len(f.names) == 0 {
		f.logger.Warn("没有可用的 TTS 供应商")
	}
}

// Reload 重新加载配置并整体重建供应商注册表
func (f *Factory) Reload(ctx context.Context) error {
	settings, err := LoadSettings(f.cfg)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.settings = settings
	f.mu.Unlock()

	f.initProviders(ctx)
	f.voiceCache.Flush()
	f.logger.Info("TTS 供应商配置已重新加载")
	return nil
}

// Settings 当前策略配置
func (f *Factory) Settings() *Settings {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.settings
}

// Provider 按名称获取供应商
func (f *Factory) Provider(name string) (Provider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if p, ok := f.providers[name]; ok {
		return p, nil
	}
	return nil, &ProviderUnavailableError{Provider: name, Reason: "未注册或校验失败"}
}

// registered 按注册顺序返回所有可用供应商，调用方不得修改
func (f *Factory) registered() ([]string, map[string]Provider) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, len(f.names))
	copy(names, f.names)
	providers := make(map[string]Provider, len(f.providers))
	for k, v := range f.providers {
		providers[k] = v
	}
	return names, providers
}

// OptimalProviderForText 根据文本长度、成本与音质偏好选择最优供应商
//
// cost_effective: 永远选最便宜的
// high:           首选供应商成本不超过阈值（或只有它可用）时选它，否则退回最便宜的
// standard:       最便宜者低于阈值则选它；否则选成本不超过 2 倍阈值的供应商；再否则退回最便宜的
func (f *Factory) OptimalProviderForText(text string, qualityPreference string) (Provider, error) {
	names, providers := f.registered()
	if len(names) == 0 {
		return nil, &ProviderUnavailableError{Provider: "*", Reason: "没有可用的 TTS 供应商"}
	}

	settings := f.Settings()
	if qualityPreference == "" {
		qualityPreference = settings.QualityPreference
	}
	threshold := settings.CostThreshold
	chars := len(text)

	type scored struct {
		provider Provider
		cost     float64
	}
	costs := make([]scored, 0, len(names))
	for _, name := range names {
		p := providers[name]
		costs = append(costs, scored{provider: p, cost: p.CostEstimate(chars)})
	}
	// 稳定排序保证同成本时先注册者优先
	sort.SliceStable(costs, func(i, j int) bool {
		return costs[i].cost < costs[j].cost
	})

	switch qualityPreference {
	case "cost_effective":
		return costs[0].provider, nil

	case "high":
		for _, s := range costs {
			if s.provider.Name() == settings.PrimaryProvider {
				if s.cost <= threshold || len(costs) == 1 {
					return s.provider, nil
				}
			}
		}
		return costs[0].provider, nil

	default: // standard
		if costs[0].cost <= threshold {
			return costs[0].provider, nil
		}
		for _, s := range costs {
			if s.cost <= threshold*2 {
				return s.provider, nil
			}
		}
		return costs[0].provider, nil
	}
}

// TextToSpeechWithFallback 带自动回退的语音合成
// 依次尝试：调用方指定的供应商 → 策略选出的最优供应商 → 其余所有已注册供应商；
// 所有错误都在此边界内转换为失败结果，绝不向上抛出
func (f *Factory) TextToSpeechWithFallback(ctx context.Context, text string, voiceCfg VoiceConfig, outputPath, preferredProvider string) TTSResult {
	attempted := make(map[string]bool)

	try := func(p Provider) (TTSResult, bool) {
		attempted[p.Name()] = true
		result, err := p.TextToSpeech(ctx, text, voiceCfg, outputPath)
		if err != nil && retrySameProvider(err) {
			// 限流或网络抖动对同一供应商立即重试一次，仍失败才切换
			f.logger.Warnf("TTS 供应商 %s 瞬时失败，重试一次: %v", p.Name(), err)
			result, err = p.TextToSpeech(ctx, text, voiceCfg, outputPath)
		}
		if err != nil {
			f.logger.Warnf("TTS 供应商 %s 合成失败: %v", p.Name(), err)
			return result, false
		}
		return result, result.Success
	}

	// 1. 调用方指定的供应商
	if preferredProvider != "" {
		if p, err := f.Provider(preferredProvider); err == nil {
			if result, ok := try(p); ok {
				return result
			}
		} else {
			f.logger.Warnf("指定的 TTS 供应商不可用: %s, %v", preferredProvider, err)
		}
	}

	// 2. 策略选出的最优供应商
	if p, err := f.OptimalProviderForText(text, ""); err == nil && !attempted[p.Name()] {
		if result, ok := try(p); ok {
			return result
		}
	}

	// 3. 其余所有已注册供应商，按注册顺序
	if f.Settings().AutoFallback {
		names, providers := f.registered()
		for _, name := range names {
			if attempted[name] {
				continue
			}
			f.logger.Infof("尝试备用 TTS 供应商: %s", name)
			if result, ok := try(providers[name]); ok {
				return result
			}
		}
	}

	return TTSResult{
		Success:        false,
		ErrorMessage:   "所有 TTS 供应商均失败",
		CharacterCount: len(text),
	}
}

// AllVoices 汇总所有供应商的音色列表，结果带 TTL 缓存
func (f *Factory) AllVoices(ctx context.Context) []Voice {
	if cached, ok := f.voiceCache.Get(voiceCacheKey); ok {
		return cached.([]Voice)
	}

	names, providers := f.registered()
	var all []Voice
	for _, name := range names {
		voices, err := providers[name].AvailableVoices(ctx)
		if err != nil {
			f.logger.Warnf("获取 %s 音色列表失败: %v", name, err)
			continue
		}
		all = append(all, voices...)
	}

	f.voiceCache.Set(voiceCacheKey, all, gocache.DefaultExpiration)
	return all
}

// Comparison 生成所有供应商的对比信息
func (f *Factory) Comparison(characterCount int) []ProviderInfo {
	names, providers := f.registered()

	infos := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		info := providers[name].Info()
		info.CostEstimate = providers[name].CostEstimate(characterCount)
		info.Available = true
		infos = append(infos, info)
	}
	return infos
}
