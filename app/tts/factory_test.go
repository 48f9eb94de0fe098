package tts

import (
	"context"
	"errors"
	"testing"
	"time"
	"vidzyme/app/config"
	"vidzyme/app/logger"

	gocache "github.com/patrickmn/go-cache"
)

// fakeProvider 用于测试的可控供应商
type fakeProvider struct {
	name        string
	costPerChar float64
	err         error
	calls       int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) TextToSpeech(ctx context.Context, text string, cfg VoiceConfig, outputPath string) (TTSResult, error) {
	p.calls++
	if p.err != nil {
		return failure(p.name, len(text), p.err), p.err
	}
	return TTSResult{
		Success:        true,
		Provider:       p.name,
		AudioPath:      outputPath,
		CostEstimate:   p.CostEstimate(len(text)),
		CharacterCount: len(text),
	}, nil
}

func (p *fakeProvider) AvailableVoices(ctx context.Context) ([]Voice, error) {
	return []Voice{{ID: p.name + "-voice", Provider: p.name}}, nil
}

func (p *fakeProvider) ValidateConfig(ctx context.Context) error { return nil }

func (p *fakeProvider) CostEstimate(characterCount int) float64 {
	return float64(characterCount) * p.costPerChar
}

func (p *fakeProvider) SupportsFeature(feature string) bool { return false }

func (p *fakeProvider) Info() ProviderInfo {
	return ProviderInfo{Name: p.name, CostPer1kChars: p.CostEstimate(1000)}
}

// newTestFactory 跳过网络校验直接装配工厂
func newTestFactory(settings *Settings, providers ...Provider) *Factory {
	f := &Factory{
		logger:     logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"}),
		settings:   settings,
		providers:  make(map[string]Provider),
		voiceCache: gocache.New(time.Minute, time.Minute),
	}
	for _, p := range providers {
		f.names = append(f.names, p.Name())
		f.providers[p.Name()] = p
	}
	return f
}

func testSettings(quality string, threshold float64) *Settings {
	return &Settings{
		PrimaryProvider:   "premium",
		FallbackProvider:  "cheap",
		CostThreshold:     threshold,
		QualityPreference: quality,
		AutoFallback:      true,
		Providers: map[string]ProviderSettings{
			"premium": {Enabled: true, Priority: 1},
			"cheap":   {Enabled: true, Priority: 2},
		},
	}
}

// text100 生成指定长度的文本
func text100() string {
	b := make([]byte, 100)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestOptimalProviderCostEffective(t *testing.T) {
	premium := &fakeProvider{name: "premium", costPerChar: 0.0005}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0001}
	f := newTestFactory(testSettings("cost_effective", 0.10), premium, cheap)

	p, err := f.OptimalProviderForText(text100(), "")
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if p.Name() != "cheap" {
		t.Fatalf("cost_effective 应选最便宜的，实际选了 %s", p.Name())
	}
}

func TestOptimalProviderHighWithinThreshold(t *testing.T) {
	// 首选供应商 100 字符成本 0.08，低于阈值 0.10
	premium := &fakeProvider{name: "premium", costPerChar: 0.0008}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0001}
	f := newTestFactory(testSettings("high", 0.10), premium, cheap)

	p, err := f.OptimalProviderForText(text100(), "")
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if p.Name() != "premium" {
		t.Fatalf("high 且成本在阈值内应选首选供应商，实际选了 %s", p.Name())
	}
}

func TestOptimalProviderHighOverThreshold(t *testing.T) {
	// 首选供应商 100 字符成本 0.50，超过阈值 0.10，应退回最便宜的
	premium := &fakeProvider{name: "premium", costPerChar: 0.005}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0001}
	f := newTestFactory(testSettings("high", 0.10), premium, cheap)

	p, err := f.OptimalProviderForText(text100(), "")
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if p.Name() != "cheap" {
		t.Fatalf("high 但成本超阈值应退回最便宜的，实际选了 %s", p.Name())
	}
}

func TestOptimalProviderHighOnlyProvider(t *testing.T) {
	premium := &fakeProvider{name: "premium", costPerChar: 0.005}
	f := newTestFactory(testSettings("high", 0.10), premium)

	p, err := f.OptimalProviderForText(text100(), "")
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if p.Name() != "premium" {
		t.Fatalf("只有首选供应商可用时无论成本都应选它，实际选了 %s", p.Name())
	}
}

func TestOptimalProviderStandard(t *testing.T) {
	// 最便宜的 0.15 超过阈值 0.10 但低于 2 倍阈值
	premium := &fakeProvider{name: "premium", costPerChar: 0.005}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0015}
	f := newTestFactory(testSettings("standard", 0.10), premium, cheap)

	p, err := f.OptimalProviderForText(text100(), "")
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if p.Name() != "cheap" {
		t.Fatalf("standard 应选 2 倍阈值内的供应商，实际选了 %s", p.Name())
	}
}

func TestOptimalProviderNoProviders(t *testing.T) {
	f := newTestFactory(testSettings("high", 0.10))

	if _, err := f.OptimalProviderForText(text100(), ""); err == nil {
		t.Fatal("没有供应商时应返回错误")
	}
}

func TestFallbackSecondProviderSucceeds(t *testing.T) {
	premium := &fakeProvider{name: "premium", costPerChar: 0.0001, err: &AuthError{Provider: "premium", Message: "密钥失效"}}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0005}
	f := newTestFactory(testSettings("cost_effective", 0.10), premium, cheap)

	result := f.TextToSpeechWithFallback(context.Background(), text100(),
		DefaultVoiceConfig("v1", "premium"), t.TempDir()+"/out.mp3", "premium")

	if !result.Success {
		t.Fatalf("备用供应商应接管合成: %s", result.ErrorMessage)
	}
	if result.Provider != "cheap" {
		t.Fatalf("结果应来自备用供应商，实际 %s", result.Provider)
	}
}

func TestFallbackAllFailReturnsResult(t *testing.T) {
	premium := &fakeProvider{name: "premium", costPerChar: 0.0001, err: errors.New("挂了")}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0005, err: errors.New("也挂了")}
	f := newTestFactory(testSettings("cost_effective", 0.10), premium, cheap)

	result := f.TextToSpeechWithFallback(context.Background(), text100(),
		DefaultVoiceConfig("v1", "premium"), t.TempDir()+"/out.mp3", "")

	if result.Success {
		t.Fatal("所有供应商都失败时结果不应成功")
	}
	if result.ErrorMessage == "" {
		t.Fatal("失败结果应携带错误信息")
	}
	if premium.calls == 0 || cheap.calls == 0 {
		t.Fatal("两个供应商都应被尝试过")
	}
}

func TestFallbackDisabledAutoFallback(t *testing.T) {
	settings := testSettings("cost_effective", 0.10)
	settings.AutoFallback = false

	premium := &fakeProvider{name: "premium", costPerChar: 0.0001, err: errors.New("挂了")}
	cheap := &fakeProvider{name: "cheap", costPerChar: 0.0005}
	f := newTestFactory(settings, premium, cheap)

	// premium 最便宜且为策略最优，失败后因关闭自动回退不再尝试 cheap
	result := f.TextToSpeechWithFallback(context.Background(), text100(),
		DefaultVoiceConfig("v1", "premium"), t.TempDir()+"/out.mp3", "")

	if result.Success {
		t.Fatal("关闭自动回退后不应成功")
	}
	if cheap.calls != 0 {
		t.Fatal("关闭自动回退后不应尝试备用供应商")
	}
}

func TestAllVoicesCached(t *testing.T) {
	premium := &fakeProvider{name: "premium", costPerChar: 0.0001}
	f := newTestFactory(testSettings("high", 0.10), premium)

	first := f.AllVoices(context.Background())
	second := f.AllVoices(context.Background())

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("音色列表不符: %d/%d", len(first), len(second))
	}
}
