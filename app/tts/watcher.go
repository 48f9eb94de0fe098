package tts

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"vidzyme/app/logger"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher 监控 TTS 配置文件变更并触发工厂重载
// 监控父目录而不是文件本身，编辑器保存时常用改名替换，直接监控文件会丢事件
type SettingsWatcher struct {
	factory  *Factory
	path     string
	watcher  *fsnotify.Watcher
	logger   *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
	mu       sync.Mutex
}

// NewSettingsWatcher 创建配置文件监控器
func NewSettingsWatcher(factory *Factory, configPath string, log *logger.Logger) (*SettingsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &SettingsWatcher{
		factory: factory,
		path:    filepath.Clean(configPath),
		watcher: watcher,
		logger:  log,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start 启动监控
func (w *SettingsWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("TTS 配置监控器已经在运行")
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Infof("TTS 配置监控已启动: %s", w.path)
	return nil
}

// Stop 停止监控
func (w *SettingsWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}

	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.watching = false

	w.logger.Info("TTS 配置监控已停止")
	return nil
}

// watchLoop 监控事件循环，写入事件防抖后触发重载
func (w *SettingsWatcher) watchLoop() {
	defer w.wg.Done()

	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			// 编辑器保存会触发多个连续事件，500ms 内合并为一次重载
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("TTS 配置监控错误: %v", err)

		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// reload 执行重载，失败时保留旧配置继续运行
func (w *SettingsWatcher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w.logger.Infof("检测到 TTS 配置变更: %s", w.path)
	if err := w.factory.Reload(ctx); err != nil {
		w.logger.Errorf("重载 TTS 配置失败，继续使用旧配置: %v", err)
	}
}
