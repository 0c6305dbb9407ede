package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchCooldown 两次重载之间的最小间隔。
const DefaultWatchCooldown = 2 * time.Second

// Watcher 监听配置文件变化并重新加载。
// 监听的是所在目录，这样编辑器"写临时文件再 rename"的保存方式也能被捕获。
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher

	mu         sync.Mutex
	lastReload time.Time
	onError    func(error)

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewWatcher 创建配置监听器；cooldown 内的重复事件会被忽略。
func NewWatcher(path string, cooldown time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Watcher{
		path:     abs,
		cooldown: cooldown,
		watcher:  fw,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// SetErrorHandler 设置加载失败或 fsnotify 报错时的回调。
func (w *Watcher) SetErrorHandler(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Start 启动监听；onUpdate 在每次成功重载后以新配置调用。
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	go w.watch(ctx, onUpdate)
	return nil
}

// Stop 停止监听并释放 fsnotify 资源。
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		select {
		case <-w.doneChan:
		case <-time.After(1 * time.Second):
			// watch goroutine 可能没有启动
		}
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watch(ctx context.Context, onUpdate func(AppConfig)) {
	defer close(w.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleChange(onUpdate)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handleChange(onUpdate func(AppConfig)) {
	w.mu.Lock()
	if w.cooldown > 0 && time.Since(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.reportError(fmt.Errorf("reload %s: %w", w.path, err))
		return
	}

	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()

	if onUpdate != nil {
		onUpdate(cfg)
	}
}

func (w *Watcher) reportError(err error) {
	w.mu.Lock()
	fn := w.onError
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// RestartRequired 列出新旧配置中无法热更新的差异项。
func RestartRequired(old, next AppConfig) []string {
	var changed []string
	if !old.SymbolSet().Equal(next.SymbolSet()) {
		changed = append(changed, "alpaca.symbols")
	}
	if old.Alpaca.Feed != next.Alpaca.Feed {
		changed = append(changed, "alpaca.feed")
	}
	if old.Alpaca.APIKey != next.Alpaca.APIKey || old.Alpaca.APISecret != next.Alpaca.APISecret {
		changed = append(changed, "alpaca.credentials")
	}
	if old.Alpaca.BaseURL != next.Alpaca.BaseURL {
		changed = append(changed, "alpaca.base_url")
	}
	if old.Stream != next.Stream {
		changed = append(changed, "stream")
	}
	if old.HTTP != next.HTTP {
		changed = append(changed, "http")
	}
	if old.Alert != next.Alert {
		changed = append(changed, "alert")
	}
	return changed
}
