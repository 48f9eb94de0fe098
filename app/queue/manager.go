package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"vidzyme/app/config"
	"vidzyme/app/logger"
	"vidzyme/app/model"

	"gorm.io/gorm"
)

// 调度轮询间隔，决定任务分发的最大延迟
const pollInterval = 100 * time.Millisecond

// ProgressFunc 阶段进度回调
type ProgressFunc func(step string, progress int, message, details string)

// ExecutorFunc 按任务类型注册的执行器
type ExecutorFunc func(ctx context.Context, task *Task, report ProgressFunc) error

// Stats 队列统计信息
type Stats struct {
	TotalTasks            int     `json:"total_tasks"`
	CompletedTasks        int     `json:"completed_tasks"`
	FailedTasks           int     `json:"failed_tasks"`
	AverageProcessingTime float64 `json:"average_processing_time"` // 秒
}

// Status 队列整体状态
type Status struct {
	PendingTasks    int                            `json:"pending_tasks"`
	ProcessingTasks int                            `json:"processing_tasks"`
	TotalTasks      int                            `json:"total_tasks"`
	Stats           Stats                          `json:"stats"`
	RateLimiters    map[string]RateLimiterSnapshot `json:"rate_limiters"`
}

// Manager 任务队列管理器
// 单个分发循环按优先级取任务，交给受并发上限约束的 worker 执行；
// 失败任务在重试次数内会被插回队首，重试优先于新任务
type Manager struct {
	logger        *logger.Logger
	db            *gorm.DB
	maxConcurrent int
	defaultRetry  int

	tasks      map[string]*Task
	pending    []string
	processing map[string]struct{}
	callbacks  map[string]ProgressFunc
	executors  map[TaskType]ExecutorFunc
	limiters   map[string]*RateLimiter
	stats      Stats

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager 创建任务队列管理器，db 可为 nil（不做持久化，供测试使用）
func NewManager(cfg config.QueueConfig, db *gorm.DB, log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	maxConcurrent := cfg.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	defaultRetry := cfg.MaxRetries
	if defaultRetry < 0 {
		defaultRetry = 0
	}

	limiters := make(map[string]*RateLimiter, len(cfg.RateLimits))
	for service, rl := range cfg.RateLimits {
		limiters[service] = NewRateLimiter(rl.MaxCalls, time.Duration(rl.TimeWindow)*time.Second)
	}

	return &Manager{
		logger:        log,
		db:            db,
		maxConcurrent: maxConcurrent,
		defaultRetry:  defaultRetry,
		tasks:         make(map[string]*Task),
		processing:    make(map[string]struct{}),
		callbacks:     make(map[string]ProgressFunc),
		executors:     make(map[TaskType]ExecutorFunc),
		limiters:      limiters,
		stopCh:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegisterExecutor 注册任务类型的执行器
func (m *Manager) RegisterExecutor(taskType TaskType, fn ExecutorFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[taskType] = fn
}

// Limiter 获取服务对应的速率限制器，未配置时创建默认限制（60次/分钟）
func (m *Manager) Limiter(service string) *RateLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rl, ok := m.limiters[service]; ok {
		return rl
	}
	rl := NewRateLimiter(60, time.Minute)
	m.limiters[service] = rl
	return rl
}

// Start 启动分发循环
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	m.wg.Add(1)
	go m.dispatchLoop()

	m.logger.Info("任务队列管理器已启动")
}

// Stop 停止分发循环并等待在途任务结束
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.cancel()
	m.wg.Wait()

	m.logger.Info("任务队列管理器已停止")
}

// AddTask 添加任务到队列，按优先级稳定排序后返回任务ID
func (m *Manager) AddTask(task *Task) string {
	// -1 表示采用队列默认值，显式的 0 保留为不重试
	if task.MaxRetries < 0 {
		task.MaxRetries = m.defaultRetry
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.pending = append(m.pending, task.ID)
	// 稳定排序：同优先级保持入队顺序
	sort.SliceStable(m.pending, func(i, j int) bool {
		return m.tasks[m.pending[i]].Priority > m.tasks[m.pending[j]].Priority
	})
	m.stats.TotalTasks++
	snap := task.snapshot()
	m.mu.Unlock()

	m.persistCreate(snap)
	m.logger.Infof("任务已入队: ID=%s, 类型=%s, 优先级=%s", snap.ID, snap.Type, snap.Priority)
	return snap.ID
}

// CancelTask 取消仍在等待中的任务
// 只有 PENDING 状态的任务可以取消，处理中或已终止的任务返回 false
func (m *Manager) CancelTask(taskID string) bool {
	var cancelled *Task

	m.mu.Lock()
	for i, id := range m.pending {
		if id == taskID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			if task, ok := m.tasks[taskID]; ok {
				task.Status = model.TaskStatusCancelled
				cancelled = task.snapshot()
				delete(m.callbacks, taskID)
			}
			break
		}
	}
	m.mu.Unlock()

	if cancelled == nil {
		return false
	}

	m.persist(cancelled)
	m.logger.Infof("任务已取消: ID=%s", taskID)
	return true
}

// GetTask 查询任务，返回的是一份快照拷贝
// worker 协程持续修改在途任务的状态和进度，调用方只能读到取锁瞬间的一致视图
func (m *Manager) GetTask(taskID string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	return task.snapshot(), true
}

// SetTaskResult 记录任务的结果字段，供执行器在运行期间写入
func (m *Manager) SetTaskResult(task *Task, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.Result == nil {
		task.Result = make(map[string]any)
	}
	task.Result[key] = value
}

// GetQueueStatus 获取队列整体状态
func (m *Manager) GetQueueStatus() Status {
	m.mu.Lock()
	status := Status{
		PendingTasks:    len(m.pending),
		ProcessingTasks: len(m.processing),
		TotalTasks:      len(m.tasks),
		Stats:           m.stats,
	}
	limiters := make(map[string]*RateLimiter, len(m.limiters))
	for name, rl := range m.limiters {
		limiters[name] = rl
	}
	m.mu.Unlock()

	status.RateLimiters = make(map[string]RateLimiterSnapshot, len(limiters))
	for name, rl := range limiters {
		status.RateLimiters[name] = rl.Snapshot()
	}
	return status
}

// RegisterProgressCallback 注册任务进度回调
func (m *Manager) RegisterProgressCallback(taskID string, cb ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[taskID] = cb
}

// UnregisterProgressCallback 移除任务进度回调
func (m *Manager) UnregisterProgressCallback(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, taskID)
}

// dispatchLoop 分发循环：轮询检查空闲 worker 槽位并派发等待中的任务
// 外部调用的阻塞都发生在 worker 协程内，绝不阻塞本循环
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.dispatchPending()
		}
	}
}

// dispatchPending 在并发上限内派发等待中的任务
func (m *Manager) dispatchPending() {
	for {
		m.mu.Lock()
		if len(m.processing) >= m.maxConcurrent || len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}

		id := m.pending[0]
		m.pending = m.pending[1:]
		task := m.tasks[id]

		now := time.Now()
		task.Status = model.TaskStatusProcessing
		task.StartedAt = &now
		m.processing[id] = struct{}{}
		snap := task.snapshot()
		m.mu.Unlock()

		m.persist(snap)

		m.wg.Add(1)
		go m.runTask(task)
	}
}

// runTask 在 worker 协程中执行任务并处理重试
func (m *Manager) runTask(task *Task) {
	defer m.wg.Done()

	m.logger.Infof("开始处理任务: ID=%s, 类型=%s", task.ID, task.Type)

	report := func(step string, progress int, message, details string) {
		// 先同步更新任务进度，再做对外通知
		m.mu.Lock()
		task.Progress = progress
		cb := m.callbacks[task.ID]
		m.mu.Unlock()

		m.persistProgress(task, progress)

		if cb != nil {
			// 通知失败不能影响流水线本身
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.logger.Warnf("进度回调异常: 任务=%s, %v", task.ID, r)
					}
				}()
				cb(step, progress, message, details)
			}()
		}
	}

	m.mu.Lock()
	executor, ok := m.executors[task.Type]
	m.mu.Unlock()

	var err error
	if !ok {
		err = fmt.Errorf("未知的任务类型: %s", task.Type)
	} else {
		err = executor(m.ctx, task, report)
	}

	m.finishTask(task, err)
}

// finishTask 记录任务终态，失败时按重试策略插回队首
// 进入终态的任务同时移除进度回调，避免回调表随失败任务累积
func (m *Manager) finishTask(task *Task, err error) {
	now := time.Now()

	m.mu.Lock()
	delete(m.processing, task.ID)

	if err == nil {
		task.Status = model.TaskStatusCompleted
		task.CompletedAt = &now
		m.stats.CompletedTasks++

		// 增量更新平均处理时长
		if task.StartedAt != nil {
			duration := now.Sub(*task.StartedAt).Seconds()
			n := float64(m.stats.CompletedTasks)
			m.stats.AverageProcessingTime = (m.stats.AverageProcessingTime*(n-1) + duration) / n
		}
		delete(m.callbacks, task.ID)
		snap := task.snapshot()
		m.mu.Unlock()

		m.persist(snap)
		m.logger.Infof("任务完成: ID=%s, 重试次数=%d", snap.ID, snap.RetryCount)
		return
	}

	task.Status = model.TaskStatusFailed
	task.ErrorMsg = err.Error()
	task.CompletedAt = &now

	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		task.Status = model.TaskStatusPending
		task.StartedAt = nil
		task.CompletedAt = nil
		// 重试任务插到队首，优先于新任务执行
		m.pending = append([]string{task.ID}, m.pending...)
		snap := task.snapshot()
		m.mu.Unlock()

		m.persist(snap)
		m.logger.Warnf("任务失败，准备重试: ID=%s, 重试=%d/%d, 错误=%v",
			snap.ID, snap.RetryCount, snap.MaxRetries, err)
		return
	}

	m.stats.FailedTasks++
	delete(m.callbacks, task.ID)
	snap := task.snapshot()
	m.mu.Unlock()

	m.persist(snap)
	m.logger.Errorf("任务失败(超过重试次数): ID=%s, 总重试=%d, 最终错误=%v",
		snap.ID, snap.RetryCount, err)
}

// persistCreate 新建任务的持久化记录
func (m *Manager) persistCreate(task *Task) {
	if m.db == nil {
		return
	}

	record := &model.VideoTask{
		TaskID:     task.ID,
		TaskType:   string(task.Type),
		Topic:      task.PayloadString("topic"),
		VoiceKey:   task.PayloadString("voice_key"),
		Status:     task.Status,
		Priority:   int(task.Priority),
		MaxRetries: task.MaxRetries,
		UserID:     task.UserID,
		ChannelID:  task.ChannelID,
		ScheduleID: task.ScheduleID,
	}
	if err := m.db.Create(record).Error; err != nil {
		m.logger.Errorf("保存任务记录失败: ID=%s, 错误=%v", task.ID, err)
	}
}

// persist 将任务状态同步到持久化记录
func (m *Manager) persist(task *Task) {
	if m.db == nil {
		return
	}

	updates := map[string]any{
		"status":       task.Status,
		"progress":     task.Progress,
		"retry_count":  task.RetryCount,
		"error_msg":    task.ErrorMsg,
		"started_at":   task.StartedAt,
		"completed_at": task.CompletedAt,
	}
	if title, ok := task.Result["title"].(string); ok {
		updates["title"] = title
	}
	if output, ok := task.Result["output_path"].(string); ok {
		updates["output_path"] = output
	}

	if err := m.db.Model(&model.VideoTask{}).Where("task_id = ?", task.ID).Updates(updates).Error; err != nil {
		m.logger.Errorf("更新任务记录失败: ID=%s, 错误=%v", task.ID, err)
	}
}

// persistProgress 只更新进度字段
func (m *Manager) persistProgress(task *Task, progress int) {
	if m.db == nil {
		return
	}
	if err := m.db.Model(&model.VideoTask{}).Where("task_id = ?", task.ID).
		Update("progress", progress).Error; err != nil {
		m.logger.Debugf("更新任务进度失败: ID=%s, 错误=%v", task.ID, err)
	}
}
