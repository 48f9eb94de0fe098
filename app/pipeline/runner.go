package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"vidzyme/app/config"
	"vidzyme/app/logger"
	"vidzyme/app/queue"
	"vidzyme/app/tts"
)

// 各阶段的进度区间，前端进度条依赖这些固定锚点
const (
	progressInit        = 0
	progressTitleStart  = 5
	progressTitleDone   = 15
	progressScriptDone  = 40
	progressImagesStart = 40
	progressVoiceStart  = 60
	progressRenderStart = 80
	progressDone        = 100
)

// Runner 视频生成流水线
// 按 标题 -> 脚本 -> 配图 -> 配音 -> 渲染 的顺序执行，
// 单句素材失败只降级，流水线整体失败交给队列重试
type Runner struct {
	cfg      config.PipelineConfig
	logger   *logger.Logger
	queue    *queue.Manager
	tts      *tts.Factory
	textGen  *TextGenerator
	imageGen *ImageGenerator
	renderer Renderer
}

// NewRunner 创建流水线并注册为视频生成任务的执行器
func NewRunner(cfg config.PipelineConfig, q *queue.Manager, factory *tts.Factory, log *logger.Logger) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   log,
		queue:    q,
		tts:      factory,
		textGen:  NewTextGenerator(cfg),
		imageGen: NewImageGenerator(cfg),
		renderer: NewFFmpegRenderer(cfg, log),
	}
	q.RegisterExecutor(queue.TaskTypeVideoGeneration, r.Execute)
	return r
}

// Execute 执行一次完整的视频生成
func (r *Runner) Execute(ctx context.Context, task *queue.Task, report queue.ProgressFunc) error {
	topic := task.PayloadString("topic")
	if topic == "" {
		return fmt.Errorf("任务缺少主题")
	}
	voiceKey := task.PayloadString("voice_key")
	if voiceKey == "" {
		voiceKey = "default"
	}

	// 重试会复用同一个任务目录，先清掉上次失败留下的残余文件
	dir := filepath.Join(r.cfg.OutputDir, task.ID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("清理输出目录失败: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	report("initializing", progressInit, "初始化视频生成任务", "")

	// 标题
	title, err := r.generateTitle(ctx, task, topic, report)
	if err != nil {
		return err
	}
	r.queue.SetTaskResult(task, "title", title)

	// 脚本
	script, err := r.generateScript(ctx, dir, title, report)
	if err != nil {
		return err
	}

	lines := SplitLines(script)
	if len(lines) == 0 {
		return fmt.Errorf("脚本切分后没有内容")
	}
	if err := r.writeLines(dir, lines); err != nil {
		return err
	}
	r.queue.SetTaskResult(task, "line_count", len(lines))

	if err := writeOutput(dir, "title.txt", title); err != nil {
		return err
	}

	// 配图
	r.generateImages(ctx, dir, lines, report)

	// 配音
	cost := r.generateVoice(ctx, dir, lines, voiceKey, report)
	r.queue.SetTaskResult(task, "tts_cost", cost)

	// 渲染
	report("render", progressRenderStart, "开始合成视频", "")
	outputPath, err := r.renderer.Render(ctx, dir, lines)
	if err != nil {
		return fmt.Errorf("视频渲染失败: %w", err)
	}

	r.queue.SetTaskResult(task, "output_path", outputPath)
	if ffr, ok := r.renderer.(*FFmpegRenderer); ok {
		r.queue.SetTaskResult(task, "duration", ffr.ProbeDuration(ctx, outputPath))
	}

	report("completed", progressDone, "视频生成完成", outputPath)
	r.logger.Infof("视频生成完成: 任务=%s, 输出=%s", task.ID, outputPath)
	return nil
}

// generateTitle 生成标题阶段，payload 指定标题时跳过生成
func (r *Runner) generateTitle(ctx context.Context, task *queue.Task, topic string, report queue.ProgressFunc) (string, error) {
	report("title", progressTitleStart, "生成视频标题", topic)

	if preset := task.PayloadString("title"); preset != "" {
		report("title", progressTitleDone, "使用指定标题", preset)
		return preset, nil
	}

	if err := r.queue.Limiter("gemini").Wait(ctx); err != nil {
		return "", err
	}
	title, err := r.textGen.GenerateTitle(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("生成标题失败: %w", err)
	}

	report("title", progressTitleDone, "标题已生成", title)
	return title, nil
}

// generateScript 生成脚本阶段
func (r *Runner) generateScript(ctx context.Context, dir, title string, report queue.ProgressFunc) (string, error) {
	report("script", progressTitleDone, "生成解说脚本", title)

	if err := r.queue.Limiter("gemini").Wait(ctx); err != nil {
		return "", err
	}
	script, err := r.textGen.GenerateScript(ctx, title)
	if err != nil {
		return "", fmt.Errorf("生成脚本失败: %w", err)
	}

	if err := writeOutput(dir, "text.txt", script); err != nil {
		return "", err
	}

	report("script", progressScriptDone, "脚本已生成", "")
	return script, nil
}

// writeLines 保存逐句文本
func (r *Runner) writeLines(dir string, lines []string) error {
	var content string
	for _, line := range lines {
		content += line + "\n"
	}
	return writeOutput(dir, "line_by_line.txt", content)
}

// generateImages 为每一句生成配图，失败的句子用黑色背景兜底
func (r *Runner) generateImages(ctx context.Context, dir string, lines []string, report queue.ProgressFunc) {
	imagesDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		r.logger.Errorf("创建配图目录失败: %v", err)
		return
	}

	total := len(lines)
	for i, line := range lines {
		progress := progressImagesStart + i*(progressVoiceStart-progressImagesStart)/total
		report("images", progress, fmt.Sprintf("生成配图 %d/%d", i+1, total), line)

		outputPath := filepath.Join(imagesDir, fmt.Sprintf("part%d.jpg", i))
		if err := r.imageGen.Generate(ctx, line, outputPath); err != nil {
			r.logger.Warnf("生成配图失败，渲染时使用黑色背景: 句子=%d, 错误=%v", i, err)
		}
	}
}

// generateVoice 为每一句合成配音，返回总费用估算
// 单句失败只降级为静音，不中断流水线
func (r *Runner) generateVoice(ctx context.Context, dir string, lines []string, voiceKey string, report queue.ProgressFunc) float64 {
	audioDir := filepath.Join(dir, "audio")
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		r.logger.Errorf("创建配音目录失败: %v", err)
		return 0
	}

	settings := r.tts.Settings()

	var totalCost float64
	total := len(lines)
	for i, line := range lines {
		progress := progressVoiceStart + i*(progressRenderStart-progressVoiceStart)/total
		report("voice", progress, fmt.Sprintf("生成配音 %d/%d", i+1, total), line)

		if err := r.queue.Limiter("elevenlabs").Wait(ctx); err != nil {
			r.logger.Warnf("等待配音速率限制被中断: %v", err)
			return totalCost
		}

		// 按策略选出供应商，再把音色键解析成该供应商的音色ID
		provider, err := r.tts.OptimalProviderForText(line, "")
		if err != nil {
			r.logger.Warnf("没有可用的配音供应商: %v", err)
			return totalCost
		}
		voiceCfg := tts.DefaultVoiceConfig(settings.VoiceFor(voiceKey, provider.Name()), provider.Name())

		outputPath := filepath.Join(audioDir, fmt.Sprintf("part%d.mp3", i))
		result := r.tts.TextToSpeechWithFallback(ctx, line, voiceCfg, outputPath, provider.Name())
		if !result.Success {
			r.logger.Warnf("配音合成失败，渲染时使用静音: 句子=%d, 错误=%s", i, result.ErrorMessage)
			continue
		}
		totalCost += result.CostEstimate
	}

	return totalCost
}

// writeOutput 写入输出目录下的文本文件
func writeOutput(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	return nil
}
