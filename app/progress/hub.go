package progress

import (
	"sync"
	"time"
	"vidzyme/app/logger"
)

// Event 进度事件，推送给所有订阅者
type Event struct {
	TaskID    string `json:"task_id,omitempty"`
	Step      string `json:"step"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub 进度事件广播器
// 发布是尽力而为的：订阅者缓冲区满时丢弃事件，绝不阻塞发布方
type Hub struct {
	logger      *logger.Logger
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	bufferSize  int
}

// NewHub 创建进度广播器
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:      log,
		subscribers: make(map[chan Event]struct{}),
		bufferSize:  64,
	}
}

// Subscribe 订阅进度事件，返回事件通道和取消函数
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.bufferSize)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish 向所有订阅者广播进度事件
func (h *Hub) Publish(taskID, step string, progress int, message, details string) {
	event := Event{
		TaskID:    taskID,
		Step:      step,
		Progress:  progress,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// 订阅者处理过慢，丢弃该事件
		}
	}
}

// SubscriberCount 当前订阅者数量
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
