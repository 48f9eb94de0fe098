package handler

import (
	"io"
	"net/http"
	"strconv"
	"vidzyme/app/database"
	"vidzyme/app/model"
	"vidzyme/app/progress"
	"vidzyme/app/queue"
	"vidzyme/app/tts"

	"github.com/gin-gonic/gin"
)

// GenerateHandler 视频生成任务处理器
type GenerateHandler struct {
	queue *queue.Manager
	tts   *tts.Factory
	hub   *progress.Hub
}

// NewGenerateHandler 创建视频生成处理器
func NewGenerateHandler(q *queue.Manager, factory *tts.Factory, hub *progress.Hub) *GenerateHandler {
	return &GenerateHandler{
		queue: q,
		tts:   factory,
		hub:   hub,
	}
}

// GenerateRequest 视频生成请求
type GenerateRequest struct {
	Topic     string `json:"topic" binding:"required"`
	Title     string `json:"title"`
	VoiceKey  string `json:"voice_key"`
	Priority  string `json:"priority"` // low/normal/high/urgent
	ChannelID uint   `json:"channel_id"`
}

// parsePriority 解析优先级名称，未知值回落到 normal
func parsePriority(s string) queue.Priority {
	switch s {
	case "low":
		return queue.PriorityLow
	case "high":
		return queue.PriorityHigh
	case "urgent":
		return queue.PriorityUrgent
	default:
		return queue.PriorityNormal
	}
}

// Generate 提交视频生成任务
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	task := queue.NewTask(queue.TaskTypeVideoGeneration, map[string]any{
		"topic":     req.Topic,
		"title":     req.Title,
		"voice_key": req.VoiceKey,
	})
	task.Priority = parsePriority(req.Priority)
	task.ChannelID = req.ChannelID
	if userID, ok := c.Get("user_id"); ok {
		if id, ok := userID.(uint); ok {
			task.UserID = id
		}
	}

	// 任务进度转发到事件广播器，供前端实时订阅
	// 任务进入终态或被取消时，队列管理器会移除这个回调
	taskID := task.ID
	h.queue.RegisterProgressCallback(taskID, func(step string, p int, message, details string) {
		h.hub.Publish(taskID, step, p, message, details)
	})

	h.queue.AddTask(task)
	success(c, gin.H{"task_id": taskID}, "任务已提交")
}

// GetTask 查询任务详情
func (h *GenerateHandler) GetTask(c *gin.Context) {
	taskID := c.Param("id")

	if task, ok := h.queue.GetTask(taskID); ok {
		success(c, task, "success")
		return
	}

	// 内存中没有时回落到持久化记录（服务重启后的历史任务）
	var record model.VideoTask
	if err := database.GetDB().Where("task_id = ?", taskID).First(&record).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "任务不存在")
		return
	}
	success(c, record, "success")
}

// ListTasks 分页查询任务记录
func (h *GenerateHandler) ListTasks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := database.GetDB().Model(&model.VideoTask{})
	if status := c.Query("status"); status != "" {
		db = db.Where("status = ?", status)
	}

	var total int64
	db.Count(&total)

	var records []model.VideoTask
	if err := db.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&records).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "查询任务记录失败")
		return
	}

	success(c, gin.H{
		"tasks": records,
		"total": total,
		"page":  page,
	}, "success")
}

// CancelTask 取消等待中的任务
func (h *GenerateHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("id")

	if !h.queue.CancelTask(taskID) {
		fail(c, http.StatusConflict, 409, "任务不存在或已开始处理，无法取消")
		return
	}
	success(c, gin.H{"task_id": taskID}, "任务已取消")
}

// QueueStatus 查询队列整体状态
func (h *GenerateHandler) QueueStatus(c *gin.Context) {
	success(c, h.queue.GetQueueStatus(), "success")
}

// Voices 列出所有供应商的可用音色
func (h *GenerateHandler) Voices(c *gin.Context) {
	success(c, gin.H{"voices": h.tts.AllVoices(c.Request.Context())}, "success")
}

// ProviderComparison 对比各供应商在指定字符数下的费用与能力
func (h *GenerateHandler) ProviderComparison(c *gin.Context) {
	chars, _ := strconv.Atoi(c.DefaultQuery("characters", "1000"))
	if chars < 0 {
		chars = 0
	}
	success(c, gin.H{"providers": h.tts.Comparison(chars)}, "success")
}

// Stream 通过 SSE 推送任务进度事件
func (h *GenerateHandler) Stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
