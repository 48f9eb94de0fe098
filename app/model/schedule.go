package model

import (
	"time"
)

// ScheduleType 调度类型
const (
	ScheduleTypeDaily   = "daily"   // 每天
	ScheduleTypeWeekly  = "weekly"  // 每周指定星期
	ScheduleTypeMonthly = "monthly" // 每月1号
	ScheduleTypeCustom  = "custom"  // 外部指定下次执行时间
)

// ScheduledVideo 定时生成视频的调度定义
type ScheduledVideo struct {
	ID             uint       `json:"id" gorm:"primarykey"`
	UserID         uint       `json:"user_id" gorm:"index;comment:所属用户ID"`
	ChannelID      uint       `json:"channel_id" gorm:"index;comment:所属频道ID"`
	PromptTemplate string     `json:"prompt_template" gorm:"size:500;not null;comment:主题模板"`
	TitleTemplate  string     `json:"title_template" gorm:"size:200;comment:标题模板(可选)"`
	ScheduleType   string     `json:"schedule_type" gorm:"size:20;not null;comment:daily/weekly/monthly/custom"`
	ScheduleTime   string     `json:"schedule_time" gorm:"size:8;comment:执行时间 HH:MM"`
	ScheduleDays   string     `json:"schedule_days" gorm:"size:20;comment:每周执行的星期(逗号分隔,1=周一)"`
	NextExecution  *time.Time `json:"next_execution" gorm:"comment:custom类型的下次执行时间"`
	IsActive       bool       `json:"is_active" gorm:"default:true;index;comment:是否启用"`
	ExecutionCount int        `json:"execution_count" gorm:"default:0;comment:已执行次数"`
	MaxExecutions  int        `json:"max_executions" gorm:"default:0;comment:最大执行次数(0表示不限)"`
	LastExecution  *time.Time `json:"last_execution" gorm:"comment:上次执行时间"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// 关联关系
	Channel *Channel `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
}

// TableName 指定表名
func (ScheduledVideo) TableName() string {
	return "scheduled_videos"
}

// ReachedLimit 检查是否已达到最大执行次数
func (s *ScheduledVideo) ReachedLimit() bool {
	return s.MaxExecutions > 0 && s.ExecutionCount >= s.MaxExecutions
}

// MarkExecuted 记录一次执行，达到上限时自动停用
func (s *ScheduledVideo) MarkExecuted(now time.Time) {
	s.ExecutionCount++
	s.LastExecution = &now
	if s.ReachedLimit() {
		s.IsActive = false
	}
}

// WeekdayList 解析每周执行的星期列表
func (s *ScheduledVideo) WeekdayList() []int {
	if s.ScheduleDays == "" {
		return []int{1, 2, 3, 4, 5} // 默认工作日
	}
	var days []int
	for _, part := range splitAndTrim(s.ScheduleDays, ",") {
		if d, ok := atoiInRange(part, 1, 7); ok {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return []int{1, 2, 3, 4, 5}
	}
	return days
}
