package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// PersistenceError 表示状态文件读写失败，对一次运行是致命的
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store 读写单个状态文件
// 同一时间只允许一个运行实例，本身不加锁
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string { return s.path }

// Load 读取快照；文件不存在时返回空快照
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("state file not found, starting empty", zap.String("path", s.path))
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, &PersistenceError{Op: "decode", Path: s.path, Err: err}
	}
	return snap, nil
}

// Save 原子写入：先写同目录临时文件再 rename，中途崩溃不会留下半个文件
func (s *Store) Save(snap *Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}
	if err := writeAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	s.logger.Debug("state file saved",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)))
	return nil
}

// MarkFailed 重新读取磁盘上的快照，只改写 status 和 last_run_time
// 运行中途的内存修改全部丢弃
func (s *Store) MarkFailed(at string) error {
	snap, err := s.Load()
	if err != nil {
		return err
	}
	snap.Metadata.Status = StatusFail
	snap.Metadata.LastRunTime = at
	return s.Save(snap)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	// 沿用已有文件的权限
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.Chmod(name, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
