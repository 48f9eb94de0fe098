package model

import (
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// VideoTask 视频生成任务的持久化记录
// 内存队列为任务的唯一所有者，状态变化会同步写入该记录
type VideoTask struct {
	ID          uint       `json:"id" gorm:"primarykey"`
	TaskID      string     `json:"task_id" gorm:"not null;uniqueIndex;size:36;comment:队列任务ID"`
	TaskType    string     `json:"task_type" gorm:"size:40;not null;index;comment:任务类型"`
	Topic       string     `json:"topic" gorm:"size:200;comment:视频主题"`
	VoiceKey    string     `json:"voice_key" gorm:"size:60;comment:音色标识"`
	Title       string     `json:"title" gorm:"size:200;comment:生成的标题"`
	OutputPath  string     `json:"output_path" gorm:"size:500;comment:成品视频路径"`
	Status      TaskStatus `json:"status" gorm:"size:20;default:pending;index;comment:状态"`
	Progress    int        `json:"progress" gorm:"default:0;comment:进度(0-100)"`
	Priority    int        `json:"priority" gorm:"default:2;comment:优先级"`
	RetryCount  int        `json:"retry_count" gorm:"default:0;comment:重试次数"`
	MaxRetries  int        `json:"max_retries" gorm:"default:3;comment:最大重试次数"`
	ErrorMsg    string     `json:"error_msg" gorm:"type:text;comment:最后一次错误信息"`
	UserID      uint       `json:"user_id" gorm:"index;comment:所属用户ID"`
	ChannelID   uint       `json:"channel_id" gorm:"index;comment:所属频道ID"`
	ScheduleID  uint       `json:"schedule_id" gorm:"index;comment:触发的调度ID(0表示手动触发)"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (VideoTask) TableName() string {
	return "video_tasks"
}
