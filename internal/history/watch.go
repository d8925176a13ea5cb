package history

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 在状态文件被重写后重新加载快照
// 监听所在目录而不是文件本身：原子写入会用 rename 替换 inode
type Watcher struct {
	store   *Store
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	stopOnce sync.Once
	done     chan struct{}
}

func NewWatcher(store *Store, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{store: store, logger: logger, done: make(chan struct{})}
}

// Start 开始监听，返回的通道在 Stop 后关闭
func (w *Watcher) Start() (<-chan *Snapshot, error) {
	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return nil, err
	}
	target := filepath.Clean(w.store.Path())

	out := make(chan *Snapshot)
	go func() {
		defer close(out)
		defer w.watcher.Close()

		for {
			select {
			case <-w.done:
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				// 只关心内容可能变化的事件
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				snap, err := w.store.Load()
				if err != nil {
					w.logger.Warn("reload state file failed", zap.String("path", target), zap.Error(err))
					continue
				}
				select {
				case out <- snap:
				case <-w.done:
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("state file watcher error", zap.Error(err))
			}
		}
	}()
	return out, nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}
