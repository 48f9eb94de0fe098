package queue

import (
	"time"
	"vidzyme/app/model"

	"github.com/google/uuid"
)

// TaskType 任务类型
type TaskType string

const (
	TaskTypeVideoGeneration TaskType = "video_generation" // 视频生成
	TaskTypePlatformContent TaskType = "platform_content" // 平台内容生成
)

// Priority 任务优先级，数值越大越优先
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// String 优先级名称
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// Task 队列中的一个任务
// 任务在其生命周期内由队列管理器独占持有，payload 只通过 ID 引用外部记录
type Task struct {
	ID          string           `json:"id"`
	Type        TaskType         `json:"task_type"`
	Payload     map[string]any   `json:"payload"`
	Priority    Priority         `json:"priority"`
	Status      model.TaskStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at"`
	ErrorMsg    string           `json:"error_message"`
	Progress    int              `json:"progress"`
	RetryCount  int              `json:"retry_count"`
	MaxRetries  int              `json:"max_retries"`
	UserID      uint             `json:"user_id"`
	ChannelID   uint             `json:"channel_id"`
	ScheduleID  uint             `json:"schedule_id"`
	Result      map[string]any   `json:"result,omitempty"`
}

// NewTask 创建一个待入队的任务
// MaxRetries 为 -1 表示入队时采用队列的默认重试次数，显式设为 0 则不重试
func NewTask(taskType TaskType, payload map[string]any) *Task {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Payload:    payload,
		Priority:   PriorityNormal,
		Status:     model.TaskStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: -1,
	}
}

// snapshot 返回任务的一份独立拷贝，调用方必须持有队列锁
func (t *Task) snapshot() *Task {
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	c.Payload = make(map[string]any, len(t.Payload))
	for k, v := range t.Payload {
		c.Payload[k] = v
	}
	if t.Result != nil {
		c.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	return &c
}

// PayloadString 读取 payload 中的字符串字段
func (t *Task) PayloadString(key string) string {
	if v, ok := t.Payload[key].(string); ok {
		return v
	}
	return ""
}
