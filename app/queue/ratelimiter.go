package queue

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 针对单个外部服务的滑动窗口速率限制器
// 多个 worker 会并发调用，内部用互斥锁保护时间戳列表
type RateLimiter struct {
	maxCalls int
	window   time.Duration
	calls    []time.Time
	mu       sync.Mutex
}

// RateLimiterSnapshot 速率限制器状态快照
type RateLimiterSnapshot struct {
	CallsMade int     `json:"calls_made"`
	MaxCalls  int     `json:"max_calls"`
	WaitTime  float64 `json:"wait_time"` // 秒，-1 表示永远没有空位
}

// NewRateLimiter 创建速率限制器，窗口内最多允许 maxCalls 次调用
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxCalls: maxCalls,
		window:   window,
	}
}

// CanProceed 原子地检查并占用一个调用配额
// 窗口内调用数未满时记录当前时间并返回 true，否则返回 false 且无副作用
func (r *RateLimiter) CanProceed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.evict(now)

	if len(r.calls) < r.maxCalls {
		r.calls = append(r.calls, now)
		return true
	}
	return false
}

// WaitTime 距离下一个空位的等待时长
// maxCalls 为 0 时返回 -1，表示永远不会有空位
func (r *RateLimiter) WaitTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxCalls <= 0 {
		return -1
	}

	now := time.Now()
	r.evict(now)

	if len(r.calls) < r.maxCalls {
		return 0
	}

	oldest := r.calls[0]
	return r.window - now.Sub(oldest)
}

// Wait 阻塞等待直到占用到一个配额或 ctx 被取消
// 限流等待不是错误路径，只有 ctx 取消才返回 error
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.CanProceed() {
			return nil
		}

		wait := r.WaitTime()
		if wait < 0 {
			// 配额为 0，只能等 ctx 结束
			<-ctx.Done()
			return ctx.Err()
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Snapshot 返回当前状态快照
func (r *RateLimiter) Snapshot() RateLimiterSnapshot {
	r.mu.Lock()
	now := time.Now()
	r.evict(now)
	made := len(r.calls)
	r.mu.Unlock()

	wait := r.WaitTime()
	snap := RateLimiterSnapshot{
		CallsMade: made,
		MaxCalls:  r.maxCalls,
	}
	if wait < 0 {
		snap.WaitTime = -1
	} else {
		snap.WaitTime = wait.Seconds()
	}
	return snap
}

// evict 移除窗口外的时间戳，调用方必须持有锁
func (r *RateLimiter) evict(now time.Time) {
	kept := r.calls[:0]
	for _, t := range r.calls {
		if now.Sub(t) < r.window {
			kept = append(kept, t)
		}
	}
	r.calls = kept
}
