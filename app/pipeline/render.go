package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"vidzyme/app/config"
	"vidzyme/app/logger"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	frameWidth  = 1080
	frameHeight = 1920
	captionSize = 80
	captionY    = 1450

	// 缺少配音时的片段兜底时长（秒）
	silentDuration = 5
)

// Renderer 把逐句的图片和配音合成为最终视频
type Renderer interface {
	// Render 渲染 dir 下的素材，返回输出文件路径
	// dir 需包含 line_by_line.txt、images/part{i}.jpg、audio/part{i}.mp3
	Render(ctx context.Context, dir string, lines []string) (string, error)
}

// FFmpegRenderer 调用外部 ffmpeg 完成音视频合成
// 字幕和图片先用 gg 绘制成帧，再由 ffmpeg 配上音频拼接
type FFmpegRenderer struct {
	ffmpegPath string
	fontPath   string
	logger     *logger.Logger
}

// NewFFmpegRenderer 创建渲染器
func NewFFmpegRenderer(cfg config.PipelineConfig, log *logger.Logger) *FFmpegRenderer {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	return &FFmpegRenderer{
		ffmpegPath: ffmpegPath,
		fontPath:   cfg.FontPath,
		logger:     log,
	}
}

// Render 逐句渲染片段后拼接
// 单个片段的素材缺失只降级处理，不中断整个渲染
func (r *FFmpegRenderer) Render(ctx context.Context, dir string, lines []string) (string, error) {
	if len(lines) == 0 {
		return "", fmt.Errorf("没有可渲染的内容")
	}

	face, err := r.loadFontFace()
	if err != nil {
		return "", err
	}

	segmentsDir := filepath.Join(dir, "segments")
	if err := os.MkdirAll(segmentsDir, 0755); err != nil {
		return "", fmt.Errorf("创建片段目录失败: %w", err)
	}

	var segments []string
	for i, line := range lines {
		framePath := filepath.Join(segmentsDir, fmt.Sprintf("frame%d.jpg", i))
		imagePath := filepath.Join(dir, "images", fmt.Sprintf("part%d.jpg", i))
		audioPath := filepath.Join(dir, "audio", fmt.Sprintf("part%d.mp3", i))
		segmentPath := filepath.Join(segmentsDir, fmt.Sprintf("part%d.mp4", i))

		if err := r.drawFrame(framePath, imagePath, line, face); err != nil {
			return "", fmt.Errorf("绘制第%d个字幕帧失败: %w", i, err)
		}

		if err := r.renderSegment(ctx, framePath, audioPath, segmentPath); err != nil {
			r.logger.Warnf("渲染第%d个片段失败，已跳过: %v", i, err)
			continue
		}
		segments = append(segments, segmentPath)
	}

	if len(segments) == 0 {
		return "", fmt.Errorf("所有片段渲染均失败")
	}

	outputPath := filepath.Join(dir, "youtube_short.mp4")
	if err := r.concatSegments(ctx, segmentsDir, segments, outputPath); err != nil {
		return "", err
	}

	os.RemoveAll(segmentsDir)
	return outputPath, nil
}

// loadFontFace 加载字幕字体，未配置时使用内置字体
func (r *FFmpegRenderer) loadFontFace() (font.Face, error) {
	data := goregular.TTF
	if r.fontPath != "" {
		custom, err := os.ReadFile(r.fontPath)
		if err != nil {
			return nil, fmt.Errorf("读取字体文件失败: %w", err)
		}
		data = custom
	}

	ttf, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	return truetype.NewFace(ttf, &truetype.Options{Size: captionSize}), nil
}

// drawFrame 绘制单帧：黑色竖屏背景、居中的配图、底部的字幕
// 配图缺失时只保留字幕和黑色背景
func (r *FFmpegRenderer) drawFrame(framePath, imagePath, caption string, face font.Face) error {
	dc := gg.NewContext(frameWidth, frameHeight)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	if img, err := imaging.Open(imagePath); err == nil {
		fitted := imaging.Resize(img, frameWidth, 0, imaging.Lanczos)
		bounds := fitted.Bounds()
		dc.DrawImage(fitted, 0, (frameHeight-bounds.Dy())/2)
	} else {
		r.logger.Warnf("配图缺失，使用黑色背景: %s", imagePath)
	}

	dc.SetFontFace(face)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringWrapped(caption, frameWidth/2, captionY, 0.5, 0, 1000, 1.5, gg.AlignCenter)

	var frame image.Image = dc.Image()
	return imaging.Save(frame, framePath, imaging.JPEGQuality(90))
}

// renderSegment 把单帧和配音合成为一个视频片段
// 配音缺失时生成固定时长的静音片段
func (r *FFmpegRenderer) renderSegment(ctx context.Context, framePath, audioPath, segmentPath string) error {
	var args []string
	if _, err := os.Stat(audioPath); err == nil {
		args = []string{
			"-y",
			"-loop", "1", "-i", framePath,
			"-i", audioPath,
			"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-shortest",
			"-r", "30",
			segmentPath,
		}
	} else {
		r.logger.Warnf("配音缺失，使用 %d 秒静音: %s", silentDuration, audioPath)
		args = []string{
			"-y",
			"-loop", "1", "-i", framePath,
			"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
			"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-t", strconv.Itoa(silentDuration),
			"-r", "30",
			segmentPath,
		}
	}

	return r.runFFmpeg(ctx, args)
}

// concatSegments 用 concat 协议拼接所有片段
func (r *FFmpegRenderer) concatSegments(ctx context.Context, segmentsDir string, segments []string, outputPath string) error {
	listPath := filepath.Join(segmentsDir, "concat.txt")

	var sb strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return fmt.Errorf("解析片段路径失败: %w", err)
		}
		fmt.Fprintf(&sb, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("写入拼接列表失败: %w", err)
	}

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
	if err := r.runFFmpeg(ctx, args); err != nil {
		return fmt.Errorf("拼接视频片段失败: %w", err)
	}
	return nil
}

// runFFmpeg 执行 ffmpeg 命令
func (r *FFmpegRenderer) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg 执行失败: %w, 输出: %s", err, truncate(string(output), 500))
	}
	return nil
}

// durationPattern ffmpeg 输出中的时长行
var durationPattern = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+\.?\d*)`)

// ProbeDuration 探测媒体文件时长（秒），失败时返回 0
func (r *FFmpegRenderer) ProbeDuration(ctx context.Context, path string) float64 {
	cmd := exec.CommandContext(ctx, r.ffmpegPath, "-i", path)
	// ffmpeg -i 没有输出文件时以错误退出，但时长信息仍在输出里
	output, _ := cmd.CombinedOutput()

	m := durationPattern.FindStringSubmatch(string(output))
	if m == nil {
		return 0
	}
	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return hours*3600 + minutes*60 + seconds
}

// truncate 截断过长的命令输出
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
