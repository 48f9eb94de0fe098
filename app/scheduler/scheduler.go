package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"vidzyme/app/config"
	"vidzyme/app/logger"
	"vidzyme/app/model"
	"vidzyme/app/queue"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// JobInfo 已调度任务的概要，用于接口展示
type JobInfo struct {
	ScheduleID uint      `json:"schedule_id"`
	Type       string    `json:"schedule_type"`
	NextRun    time.Time `json:"next_run"`
}

// Scheduler 定时视频生成调度器
// daily/weekly/monthly 用 cron 表达式驱动，custom 类型按指定时间点一次性触发；
// 调度定义更新时先整体摘除旧触发器再挂新的，保证同一定义不会双触发
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *logger.Logger
	db     *gorm.DB
	queue  *queue.Manager

	cron    *cron.Cron
	entries map[uint]cron.EntryID
	timers  map[uint]*time.Timer

	mu      sync.Mutex
	running bool
}

// New 创建调度器
func New(cfg config.SchedulerConfig, db *gorm.DB, q *queue.Manager, log *logger.Logger) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("无效的时区配置: %w", err)
		}
	}

	return &Scheduler{
		cfg:     cfg,
		logger:  log,
		db:      db,
		queue:   q,
		cron:    cron.New(cron.WithLocation(loc)),
		entries: make(map[uint]cron.EntryID),
		timers:  make(map[uint]*time.Timer),
	}, nil
}

// Start 启动调度器并加载所有启用的调度定义
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()

	var definitions []model.ScheduledVideo
	if err := s.db.Where("is_active = ?", true).Find(&definitions).Error; err != nil {
		return fmt.Errorf("加载调度定义失败: %w", err)
	}

	for i := range definitions {
		if err := s.Schedule(&definitions[i]); err != nil {
			s.logger.Errorf("挂载调度定义失败: ID=%d, 错误=%v", definitions[i].ID, err)
		}
	}

	s.logger.Infof("调度器已启动，加载了 %d 个调度定义", len(definitions))
	return nil
}

// Stop 停止调度器，等待在途触发回调完成
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("调度器已停止")
}

// Schedule 挂载或替换一个调度定义的触发器
// 停用或已达上限的定义只做摘除
func (s *Scheduler) Schedule(sv *model.ScheduledVideo) error {
	s.Unschedule(sv.ID)

	if !sv.IsActive || sv.ReachedLimit() {
		return nil
	}

	if sv.ScheduleType == model.ScheduleTypeCustom {
		return s.scheduleCustom(sv)
	}

	spec, err := cronSpec(sv)
	if err != nil {
		return err
	}

	id := sv.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.fire(id) })
	if err != nil {
		return fmt.Errorf("挂载触发器失败: %w", err)
	}

	s.mu.Lock()
	s.entries[sv.ID] = entryID
	s.mu.Unlock()

	s.logger.Infof("调度定义已挂载: ID=%d, 类型=%s, 表达式=%q", sv.ID, sv.ScheduleType, spec)
	return nil
}

// scheduleCustom 按指定时间点挂载一次性触发器
func (s *Scheduler) scheduleCustom(sv *model.ScheduledVideo) error {
	if sv.NextExecution == nil {
		return fmt.Errorf("custom 类型的调度定义缺少下次执行时间")
	}

	delay := time.Until(*sv.NextExecution)
	if delay < 0 {
		delay = 0
	}

	id := sv.ID
	timer := time.AfterFunc(delay, func() { s.fire(id) })

	s.mu.Lock()
	s.timers[sv.ID] = timer
	s.mu.Unlock()

	s.logger.Infof("调度定义已挂载: ID=%d, 类型=custom, 执行时间=%s", sv.ID, sv.NextExecution.Format(time.RFC3339))
	return nil
}

// Unschedule 摘除调度定义的所有触发器
func (s *Scheduler) Unschedule(scheduleID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
	}
	if timer, ok := s.timers[scheduleID]; ok {
		timer.Stop()
		delete(s.timers, scheduleID)
	}
}

// fire 触发一次视频生成
// 每次触发都重新读取调度定义，接口侧的停用和删除立即生效
func (s *Scheduler) fire(scheduleID uint) {
	var sv model.ScheduledVideo
	if err := s.db.Preload("Channel").First(&sv, scheduleID).Error; err != nil {
		s.logger.Warnf("调度定义不存在，摘除触发器: ID=%d, 错误=%v", scheduleID, err)
		s.Unschedule(scheduleID)
		return
	}

	if !sv.IsActive || sv.ReachedLimit() {
		s.Unschedule(scheduleID)
		return
	}

	now := time.Now()

	voiceKey := "haitham"
	videoLength := 60
	if sv.Channel != nil {
		if sv.Channel.PreferredVoice != "" {
			voiceKey = sv.Channel.PreferredVoice
		}
		if sv.Channel.PreferredVideoLength > 0 {
			videoLength = sv.Channel.PreferredVideoLength
		}
	}

	title := sv.TitleTemplate
	if title == "" {
		title = fmt.Sprintf("Scheduled Video - %s", now.Format("2006-01-02 15:04"))
	}

	task := queue.NewTask(queue.TaskTypeVideoGeneration, map[string]any{
		"topic":        sv.PromptTemplate,
		"title":        title,
		"voice_key":    voiceKey,
		"video_length": videoLength,
	})
	task.Priority = queue.PriorityHigh
	task.UserID = sv.UserID
	task.ChannelID = sv.ChannelID
	task.ScheduleID = sv.ID

	taskID := s.queue.AddTask(task)
	s.logger.Infof("定时触发视频生成: 调度=%d, 任务=%s", sv.ID, taskID)

	// 记录执行次数，达到上限时自动停用
	sv.MarkExecuted(now)
	updates := map[string]any{
		"execution_count": sv.ExecutionCount,
		"last_execution":  sv.LastExecution,
		"is_active":       sv.IsActive,
	}
	if err := s.db.Model(&model.ScheduledVideo{}).Where("id = ?", sv.ID).Updates(updates).Error; err != nil {
		s.logger.Errorf("更新调度执行记录失败: ID=%d, 错误=%v", sv.ID, err)
	}

	if !sv.IsActive || sv.ScheduleType == model.ScheduleTypeCustom {
		// custom 类型一次性触发，下次执行时间由接口重新设置
		s.Unschedule(sv.ID)
	}
}

// Jobs 列出当前挂载的所有触发器
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []JobInfo
	for id, entryID := range s.entries {
		entry := s.cron.Entry(entryID)
		jobs = append(jobs, JobInfo{ScheduleID: id, Type: "cron", NextRun: entry.Next})
	}
	for id := range s.timers {
		jobs = append(jobs, JobInfo{ScheduleID: id, Type: model.ScheduleTypeCustom})
	}
	return jobs
}

// cronSpec 把调度定义转换为 cron 表达式
func cronSpec(sv *model.ScheduledVideo) (string, error) {
	hour, minute, err := parseScheduleTime(sv.ScheduleTime)
	if err != nil {
		return "", err
	}

	switch sv.ScheduleType {
	case model.ScheduleTypeDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil

	case model.ScheduleTypeWeekly:
		// 内部约定 1=周一 7=周日，cron 约定 0=周日
		var days []string
		for _, d := range sv.WeekdayList() {
			days = append(days, strconv.Itoa(d%7))
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(days, ",")), nil

	case model.ScheduleTypeMonthly:
		return fmt.Sprintf("%d %d 1 * *", minute, hour), nil

	default:
		return "", fmt.Errorf("不支持的调度类型: %s", sv.ScheduleType)
	}
}

// parseScheduleTime 解析 HH:MM 或 HH:MM:SS 格式的执行时间
func parseScheduleTime(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("无效的执行时间格式: %q", s)
	}

	hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("无效的小时: %q", parts[0])
	}
	minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("无效的分钟: %q", parts[1])
	}
	return hour, minute, nil
}
