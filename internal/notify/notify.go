// Package notify 把变更、错误和心跳分发到各个通知通道
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Hara602/regmon/pkg/event"
)

// Kind 是通知类型
type Kind string

const (
	KindUpdates   Kind = "updates"
	KindError     Kind = "error"
	KindHeartbeat Kind = "heartbeat"
)

// TruncationMarker 接在被截断的错误文本后面
const TruncationMarker = "...\n(message truncated)"

// Notification 是一次通知的内容，各通道自行渲染
type Notification struct {
	Kind Kind
	At   string // 配置时区下的 "2006-01-02 15:04:05"

	// KindUpdates
	Updates []event.ChangeEvent

	// KindError：错误文本和调用栈
	Error string

	// KindHeartbeat
	StandardsChecked int
	Status           string
	Host             *HostInfo
}

// Channel 是一个投递通道
// 凭据缺失时返回 (false, nil)，表示降级运行而不是故障
type Channel interface {
	Name() string
	Notify(ctx context.Context, n Notification) (sent bool, err error)
}

// NotificationError 是单个通道的投递失败，只记录日志，不向调用方传播
type NotificationError struct {
	Channel string
	Kind    Kind
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s via %s: %v", e.Kind, e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Result 汇总一次分发
type Result struct {
	Sent    []string
	Skipped []string
	Err     error // 各通道失败的合并，已记录日志
}

// Dispatcher 并行尝试所有通道，通道之间互不影响
type Dispatcher struct {
	channels []Channel
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

// Dispatch 投递 n；从不返回错误，失败放在 Result.Err 中供调用方观察
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) Result {
	var (
		g   errgroup.Group
		mu  sync.Mutex
		res Result
	)
	for _, ch := range d.channels {
		ch := ch
		g.Go(func() error {
			sent, err := safeNotify(ctx, ch, n)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				nerr := &NotificationError{Channel: ch.Name(), Kind: n.Kind, Err: err}
				res.Err = multierr.Append(res.Err, nerr)
				d.logger.Error("notification failed",
					zap.String("channel", ch.Name()),
					zap.String("kind", string(n.Kind)),
					zap.Error(err))
			case sent:
				res.Sent = append(res.Sent, ch.Name())
				d.logger.Info("notification sent",
					zap.String("channel", ch.Name()),
					zap.String("kind", string(n.Kind)))
			default:
				res.Skipped = append(res.Skipped, ch.Name())
				d.logger.Warn("notification channel not configured, skipping",
					zap.String("channel", ch.Name()),
					zap.String("kind", string(n.Kind)))
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func safeNotify(ctx context.Context, ch Channel, n Notification) (sent bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sent, err = false, fmt.Errorf("panic: %v", rec)
		}
	}()
	return ch.Notify(ctx, n)
}

// Truncate 把 s 截断到 limit 个字符并追加 TruncationMarker；limit <= 0 表示不截断
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + TruncationMarker
}
