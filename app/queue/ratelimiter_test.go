package queue

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !rl.CanProceed() {
			t.Fatalf("第 %d 次调用应该放行", i+1)
		}
	}
	if rl.CanProceed() {
		t.Fatal("窗口已满，第 4 次调用应该被拒绝")
	}

	if wait := rl.WaitTime(); wait <= 0 {
		t.Fatalf("窗口已满时等待时间应大于 0，实际 %v", wait)
	}

	// 等窗口滑过后配额应该恢复
	time.Sleep(250 * time.Millisecond)
	if !rl.CanProceed() {
		t.Fatal("窗口滑过后调用应该放行")
	}
}

func TestRateLimiterZeroQuota(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)

	if rl.CanProceed() {
		t.Fatal("配额为 0 时不应放行")
	}
	if wait := rl.WaitTime(); wait >= 0 {
		t.Fatalf("配额为 0 时等待时间应为负值，实际 %v", wait)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("配额为 0 时 Wait 应随 ctx 取消返回错误")
	}
}

func TestRateLimiterWaitUnblocks(t *testing.T) {
	rl := NewRateLimiter(1, 100*time.Millisecond)

	if !rl.CanProceed() {
		t.Fatal("首次调用应该放行")
	}

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait 不应返回错误: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("Wait 应阻塞到窗口滑过，实际只等了 %v", elapsed)
	}
}

func TestRateLimiterSnapshot(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	rl.CanProceed()

	snap := rl.Snapshot()
	if snap.CallsMade != 1 || snap.MaxCalls != 2 {
		t.Fatalf("快照不符: %+v", snap)
	}
	if snap.WaitTime != 0 {
		t.Fatalf("还有空位时等待时间应为 0，实际 %v", snap.WaitTime)
	}
}
