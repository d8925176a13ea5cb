package core

import (
	"fmt"
	"time"

	"github.com/Hara602/regmon/internal/history"
	"github.com/Hara602/regmon/internal/metrics"
	"github.com/Hara602/regmon/pkg/event"
	"github.com/Hara602/regmon/pkg/standard"
)

// Outcome 是一个标准在一次运行中的终态
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeFirstRecord
	OutcomeUnchanged
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFirstRecord:
		return "first_record"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	default:
		return "failed"
	}
}

// Succeeded 表示本次拿到了版本串（计入 standards_checked）
func (o Outcome) Succeeded() bool { return o != OutcomeFailed }

// CheckResult 是单个标准的检查结果
type CheckResult struct {
	StandardID string
	Category   string
	Type       standard.SourceType
	Outcome    Outcome
	OldVersion string
	NewVersion string
	Rung       string
	Target     string
	Err        error
	Event      *event.ChangeEvent
}

// Report 汇总一次运行
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Status   history.Status
	Checked  int
	Errors   int
	Results  []CheckResult
	Events   []event.ChangeEvent // 按检测顺序
	Snapshot *history.Snapshot

	metrics *metrics.Metrics
}

// PanicError 是逃出单标准处理的 panic，携带调用栈
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }
