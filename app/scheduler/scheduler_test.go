package scheduler

import (
	"testing"
	"time"
	"vidzyme/app/config"
	"vidzyme/app/logger"
	"vidzyme/app/model"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	s, err := New(config.SchedulerConfig{Timezone: "UTC"}, nil, nil, log)
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}
	return s
}

func TestScheduleReplacesExisting(t *testing.T) {
	s := newTestScheduler(t)

	sv := &model.ScheduledVideo{
		IsActive:     true,
		ScheduleType: model.ScheduleTypeDaily,
		ScheduleTime: "09:30",
	}
	sv.ID = 1

	if err := s.Schedule(sv); err != nil {
		t.Fatalf("挂载失败: %v", err)
	}
	first := s.entries[sv.ID]

	// 同一定义再次挂载应替换旧触发器，而不是叠加
	sv.ScheduleTime = "10:00"
	if err := s.Schedule(sv); err != nil {
		t.Fatalf("重新挂载失败: %v", err)
	}
	if len(s.entries) != 1 {
		t.Fatalf("同一定义不应有多个触发器: %d", len(s.entries))
	}
	if s.entries[sv.ID] == first {
		t.Fatal("触发器应已被替换")
	}
	if s.cron.Entry(first).Valid() {
		t.Fatal("旧触发器应已从 cron 中移除")
	}

	s.Unschedule(sv.ID)
	if len(s.entries) != 0 {
		t.Fatal("摘除后不应残留触发器")
	}
}

func TestScheduleInactiveOnlyRemoves(t *testing.T) {
	s := newTestScheduler(t)

	sv := &model.ScheduledVideo{
		IsActive:     true,
		ScheduleType: model.ScheduleTypeDaily,
		ScheduleTime: "09:30",
	}
	sv.ID = 2

	if err := s.Schedule(sv); err != nil {
		t.Fatalf("挂载失败: %v", err)
	}

	sv.IsActive = false
	if err := s.Schedule(sv); err != nil {
		t.Fatalf("停用定义不应返回错误: %v", err)
	}
	if len(s.entries) != 0 {
		t.Fatal("停用的定义不应保留触发器")
	}
}

func TestScheduleCustomOneShot(t *testing.T) {
	s := newTestScheduler(t)

	next := time.Now().Add(time.Hour)
	sv := &model.ScheduledVideo{
		IsActive:      true,
		ScheduleType:  model.ScheduleTypeCustom,
		NextExecution: &next,
	}
	sv.ID = 3

	if err := s.Schedule(sv); err != nil {
		t.Fatalf("挂载失败: %v", err)
	}
	if _, ok := s.timers[sv.ID]; !ok {
		t.Fatal("custom 类型应使用一次性定时器")
	}

	// 缺少执行时间的 custom 定义应拒绝
	sv2 := &model.ScheduledVideo{IsActive: true, ScheduleType: model.ScheduleTypeCustom}
	sv2.ID = 4
	if err := s.Schedule(sv2); err == nil {
		t.Fatal("缺少执行时间应返回错误")
	}

	s.Unschedule(sv.ID)
	if len(s.timers) != 0 {
		t.Fatal("摘除后不应残留定时器")
	}
}

func TestCronSpecDaily(t *testing.T) {
	sv := &model.ScheduledVideo{
		ScheduleType: model.ScheduleTypeDaily,
		ScheduleTime: "09:30",
	}

	spec, err := cronSpec(sv)
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if spec != "30 9 * * *" {
		t.Fatalf("表达式不符: %q", spec)
	}
}

func TestCronSpecWeekly(t *testing.T) {
	sv := &model.ScheduledVideo{
		ScheduleType: model.ScheduleTypeWeekly,
		ScheduleTime: "18:00",
		ScheduleDays: "1,3,7",
	}

	spec, err := cronSpec(sv)
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	// 内部 7=周日 对应 cron 的 0
	if spec != "0 18 * * 1,3,0" {
		t.Fatalf("表达式不符: %q", spec)
	}
}

func TestCronSpecWeeklyDefaultDays(t *testing.T) {
	sv := &model.ScheduledVideo{
		ScheduleType: model.ScheduleTypeWeekly,
		ScheduleTime: "08:15",
	}

	spec, err := cronSpec(sv)
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if spec != "15 8 * * 1,2,3,4,5" {
		t.Fatalf("未指定星期时应默认工作日: %q", spec)
	}
}

func TestCronSpecMonthly(t *testing.T) {
	sv := &model.ScheduledVideo{
		ScheduleType: model.ScheduleTypeMonthly,
		ScheduleTime: "00:05",
	}

	spec, err := cronSpec(sv)
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if spec != "5 0 1 * *" {
		t.Fatalf("表达式不符: %q", spec)
	}
}

func TestCronSpecInvalidType(t *testing.T) {
	sv := &model.ScheduledVideo{
		ScheduleType: "hourly",
		ScheduleTime: "09:00",
	}

	if _, err := cronSpec(sv); err == nil {
		t.Fatal("不支持的调度类型应返回错误")
	}
}

func TestParseScheduleTime(t *testing.T) {
	cases := []struct {
		in           string
		hour, minute int
		wantErr      bool
	}{
		{"09:30", 9, 30, false},
		{"23:59:00", 23, 59, false},
		{"0:05", 0, 5, false},
		{"24:00", 0, 0, true},
		{"09:60", 0, 0, true},
		{"0930", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tc := range cases {
		hour, minute, err := parseScheduleTime(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q 应解析失败", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q 不应解析失败: %v", tc.in, err)
		}
		if hour != tc.hour || minute != tc.minute {
			t.Fatalf("%q 解析结果不符: %d:%d", tc.in, hour, minute)
		}
	}
}
