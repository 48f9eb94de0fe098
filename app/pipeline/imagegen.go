package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"
	"vidzyme/app/config"

	"github.com/disintegration/imaging"
	"resty.dev/v3"
)

// promptTemplate 图片生成的提示词增强模板
const promptTemplate = "High-quality, professional, cinematic image representing: %s. " +
	"Vibrant colors, sharp details, modern style, engaging visual composition, suitable for educational content"

// ImageGenerator 基于 Pollinations 接口的图片生成器
type ImageGenerator struct {
	apiURL string
	client *resty.Client
}

// NewImageGenerator 创建图片生成器
func NewImageGenerator(cfg config.PipelineConfig) *ImageGenerator {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &ImageGenerator{
		apiURL: cfg.ImageAPIURL,
		client: client,
	}
}

// Generate 按提示词生成一张图片并保存为 JPEG
// 接口直接返回图片字节，提示词经过增强模板包装后拼在 URL 上
func (g *ImageGenerator) Generate(ctx context.Context, prompt, outputPath string) error {
	enhanced := fmt.Sprintf(promptTemplate, prompt)

	resp, err := g.client.R().
		SetContext(ctx).
		Get(g.apiURL + "/" + url.QueryEscape(enhanced))
	if err != nil {
		return fmt.Errorf("请求图片生成接口失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("图片生成接口返回 %d", resp.StatusCode())
	}

	img, err := imaging.Decode(bytes.NewReader(resp.Bytes()))
	if err != nil {
		return fmt.Errorf("解码图片失败: %w", err)
	}

	if err := imaging.Save(img, outputPath, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("保存图片失败: %w", err)
	}
	return nil
}
