package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"vidzyme/app/config"
	"vidzyme/app/logger"
	"vidzyme/app/model"
)

func newTestLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

func newTestManager(maxConcurrent int) *Manager {
	return NewManager(config.QueueConfig{
		MaxConcurrentTasks: maxConcurrent,
		MaxRetries:         3,
	}, nil, newTestLogger())
}

// waitFor 轮询等待条件成立
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManagerPriorityOrder(t *testing.T) {
	m := newTestManager(1)

	var mu sync.Mutex
	var order []string
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		mu.Lock()
		order = append(order, task.Priority.String())
		mu.Unlock()
		return nil
	})

	low := NewTask(TaskTypeVideoGeneration, nil)
	low.Priority = PriorityLow
	urgent := NewTask(TaskTypeVideoGeneration, nil)
	urgent.Priority = PriorityUrgent
	normal := NewTask(TaskTypeVideoGeneration, nil)
	normal.Priority = PriorityNormal

	m.AddTask(low)
	m.AddTask(urgent)
	m.AddTask(normal)

	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "任务没有全部执行完")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"urgent", "normal", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("执行顺序不符: 期望 %v，实际 %v", want, order)
		}
	}
}

func TestManagerRetryExhaustion(t *testing.T) {
	m := newTestManager(1)

	var attempts atomic.Int32
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		attempts.Add(1)
		return errors.New("持续失败")
	})

	task := NewTask(TaskTypeVideoGeneration, nil)
	task.MaxRetries = 3
	m.AddTask(task)

	m.Start()
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool {
		got, _ := m.GetTask(task.ID)
		return got.Status == model.TaskStatusFailed
	}, "任务没有进入失败终态")

	// 首次执行加 3 次重试
	if n := attempts.Load(); n != 4 {
		t.Fatalf("期望执行 4 次，实际 %d 次", n)
	}
	got, _ := m.GetTask(task.ID)
	if got.RetryCount != 3 {
		t.Fatalf("期望重试计数 3，实际 %d", got.RetryCount)
	}
	if got.ErrorMsg == "" {
		t.Fatal("失败任务应记录错误信息")
	}
}

func TestManagerRetrySucceedsSecondAttempt(t *testing.T) {
	m := newTestManager(1)

	var attempts atomic.Int32
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		if attempts.Add(1) == 1 {
			return errors.New("首次失败")
		}
		return nil
	})

	task := NewTask(TaskTypeVideoGeneration, nil)
	m.AddTask(task)

	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(task.ID)
		return got.Status == model.TaskStatusCompleted
	}, "任务没有完成")

	got, _ := m.GetTask(task.ID)
	if got.RetryCount != 1 {
		t.Fatalf("期望重试计数 1，实际 %d", got.RetryCount)
	}
}

func TestManagerRetryGoesToFront(t *testing.T) {
	m := newTestManager(1)

	var mu sync.Mutex
	var order []string
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		mu.Lock()
		order = append(order, task.PayloadString("name"))
		mu.Unlock()
		if task.PayloadString("name") == "first" && task.RetryCount == 0 {
			return errors.New("首次失败")
		}
		return nil
	})

	first := NewTask(TaskTypeVideoGeneration, map[string]any{"name": "first"})
	second := NewTask(TaskTypeVideoGeneration, map[string]any{"name": "second"})
	m.AddTask(first)
	m.AddTask(second)

	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "任务没有全部执行完")

	// 失败任务插回队首，重试先于 second 执行
	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "first", "second"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("执行顺序不符: 期望 %v，实际 %v", want, order)
		}
	}
}

func TestManagerCancelPendingOnly(t *testing.T) {
	m := newTestManager(1)

	block := make(chan struct{})
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		<-block
		return nil
	})

	running := NewTask(TaskTypeVideoGeneration, nil)
	waiting := NewTask(TaskTypeVideoGeneration, nil)
	m.AddTask(running)
	m.AddTask(waiting)

	m.Start()

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(running.ID)
		return got.Status == model.TaskStatusProcessing
	}, "首个任务没有进入处理中")

	if m.CancelTask(running.ID) {
		t.Fatal("处理中的任务不应能取消")
	}
	if !m.CancelTask(waiting.ID) {
		t.Fatal("等待中的任务应能取消")
	}
	if m.CancelTask("不存在") {
		t.Fatal("不存在的任务不应能取消")
	}

	got, _ := m.GetTask(waiting.ID)
	if got.Status != model.TaskStatusCancelled {
		t.Fatalf("取消后状态应为 cancelled，实际 %s", got.Status)
	}

	close(block)
	m.Stop()
}

func TestManagerConcurrencyCap(t *testing.T) {
	m := newTestManager(2)

	var current, peak atomic.Int32
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(150 * time.Millisecond)
		current.Add(-1)
		return nil
	})

	for i := 0; i < 5; i++ {
		m.AddTask(NewTask(TaskTypeVideoGeneration, nil))
	}

	m.Start()
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return m.GetQueueStatus().Stats.CompletedTasks == 5
	}, "任务没有全部完成")

	if p := peak.Load(); p > 2 {
		t.Fatalf("并发峰值超过上限: %d", p)
	}
}

func TestManagerStats(t *testing.T) {
	m := newTestManager(1)

	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	m.AddTask(NewTask(TaskTypeVideoGeneration, nil))
	m.AddTask(NewTask(TaskTypeVideoGeneration, nil))

	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		return m.GetQueueStatus().Stats.CompletedTasks == 2
	}, "任务没有全部完成")

	stats := m.GetQueueStatus().Stats
	if stats.TotalTasks != 2 {
		t.Fatalf("总任务数不符: %d", stats.TotalTasks)
	}
	if stats.AverageProcessingTime <= 0 {
		t.Fatalf("平均处理时长应大于 0，实际 %v", stats.AverageProcessingTime)
	}
}

func TestManagerProgressCallback(t *testing.T) {
	m := newTestManager(1)

	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		report("title", 15, "标题已生成", "")
		report("completed", 100, "完成", "")
		return nil
	})

	task := NewTask(TaskTypeVideoGeneration, nil)

	var mu sync.Mutex
	var progresses []int
	m.RegisterProgressCallback(task.ID, func(step string, progress int, message, details string) {
		mu.Lock()
		progresses = append(progresses, progress)
		mu.Unlock()
	})

	m.AddTask(task)
	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(task.ID)
		return got.Status == model.TaskStatusCompleted
	}, "任务没有完成")

	mu.Lock()
	defer mu.Unlock()
	if len(progresses) != 2 || progresses[0] != 15 || progresses[1] != 100 {
		t.Fatalf("进度回调不符: %v", progresses)
	}

	got, _ := m.GetTask(task.ID)
	if got.Progress != 100 {
		t.Fatalf("任务进度字段应为 100，实际 %d", got.Progress)
	}
}

func TestManagerGetTaskReturnsCopy(t *testing.T) {
	m := newTestManager(1)

	task := NewTask(TaskTypeVideoGeneration, map[string]any{"topic": "围棋入门"})
	m.AddTask(task)

	got, ok := m.GetTask(task.ID)
	if !ok {
		t.Fatal("任务应存在")
	}

	// 修改返回的快照不应影响队列中的任务
	got.Status = model.TaskStatusFailed
	got.Payload["topic"] = "改写"

	again, _ := m.GetTask(task.ID)
	if again.Status != model.TaskStatusPending {
		t.Fatalf("队列中的任务状态被快照污染: %s", again.Status)
	}
	if again.PayloadString("topic") != "围棋入门" {
		t.Fatalf("队列中的任务参数被快照污染: %s", again.PayloadString("topic"))
	}
}

func TestManagerGetTaskDuringExecution(t *testing.T) {
	m := newTestManager(1)

	release := make(chan struct{})
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		for i := 1; i <= 50; i++ {
			report("voice", i*2, "", "")
		}
		m.SetTaskResult(task, "title", "生成的标题")
		<-release
		return nil
	})

	task := NewTask(TaskTypeVideoGeneration, nil)
	m.AddTask(task)

	m.Start()
	defer m.Stop()

	// worker 持续更新状态、进度和结果字段时，并发查询读到的必须是一致的快照
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if got, ok := m.GetTask(task.ID); ok {
				_ = got.Status
				_ = got.Progress
				_ = got.Result["title"]
			}
		}
	}()
	<-done
	close(release)

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(task.ID)
		return got.Status == model.TaskStatusCompleted
	}, "任务没有完成")

	got, _ := m.GetTask(task.ID)
	if got.Progress != 100 {
		t.Fatalf("任务进度应为 100，实际 %d", got.Progress)
	}
	if got.Result["title"] != "生成的标题" {
		t.Fatalf("结果字段不符: %v", got.Result["title"])
	}
}

func TestManagerZeroRetryTask(t *testing.T) {
	m := newTestManager(1)

	var attempts atomic.Int32
	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		attempts.Add(1)
		return errors.New("失败")
	})

	// 未指定时采用队列默认重试次数
	byDefault := NewTask(TaskTypeVideoGeneration, nil)
	m.AddTask(byDefault)
	if got, _ := m.GetTask(byDefault.ID); got.MaxRetries != 3 {
		t.Fatalf("默认重试次数不符: %d", got.MaxRetries)
	}
	m.CancelTask(byDefault.ID)

	// 显式设为 0 表示不重试，不应被默认值覆盖
	noRetry := NewTask(TaskTypeVideoGeneration, nil)
	noRetry.MaxRetries = 0
	m.AddTask(noRetry)

	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(noRetry.ID)
		return got.Status == model.TaskStatusFailed
	}, "任务没有进入失败终态")

	if n := attempts.Load(); n != 1 {
		t.Fatalf("不重试的任务应只执行 1 次，实际 %d 次", n)
	}
	got, _ := m.GetTask(noRetry.ID)
	if got.RetryCount != 0 {
		t.Fatalf("重试计数应为 0，实际 %d", got.RetryCount)
	}
}

func TestManagerCallbackRemovedOnTerminal(t *testing.T) {
	m := newTestManager(1)

	m.RegisterExecutor(TaskTypeVideoGeneration, func(ctx context.Context, task *Task, report ProgressFunc) error {
		return errors.New("失败")
	})

	hasCallback := func(id string) bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, ok := m.callbacks[id]
		return ok
	}

	failed := NewTask(TaskTypeVideoGeneration, nil)
	failed.MaxRetries = 0
	m.RegisterProgressCallback(failed.ID, func(step string, p int, message, details string) {})

	cancelled := NewTask(TaskTypeVideoGeneration, nil)
	m.RegisterProgressCallback(cancelled.ID, func(step string, p int, message, details string) {})

	// 取消等待中的任务时一并移除回调
	m.AddTask(cancelled)
	m.CancelTask(cancelled.ID)
	if hasCallback(cancelled.ID) {
		t.Fatal("取消任务后回调应被移除")
	}

	// 失败终态同样移除，不随失败任务累积
	m.AddTask(failed)
	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(failed.ID)
		return got.Status == model.TaskStatusFailed
	}, "任务没有进入失败终态")

	waitFor(t, time.Second, func() bool {
		return !hasCallback(failed.ID)
	}, "失败终态后回调应被移除")

	// 主动注销
	m.RegisterProgressCallback("manual", func(step string, p int, message, details string) {})
	m.UnregisterProgressCallback("manual")
	if hasCallback("manual") {
		t.Fatal("注销后回调应被移除")
	}
}

func TestManagerUnknownTaskType(t *testing.T) {
	m := newTestManager(1)

	task := NewTask(TaskType("unknown"), nil)
	m.AddTask(task)

	m.Start()
	defer m.Stop()

	waitFor(t, 3*time.Second, func() bool {
		got, _ := m.GetTask(task.ID)
		return got.Status == model.TaskStatusFailed
	}, "未注册执行器的任务应直接失败")
}
