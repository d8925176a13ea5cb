// Package core 是监测引擎：逐个检查标准、与基线比较、更新状态文件并分发通知
package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Hara602/regmon/internal/config"
	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/internal/history"
	"github.com/Hara602/regmon/internal/metrics"
	"github.com/Hara602/regmon/internal/monitor"
	"github.com/Hara602/regmon/internal/monitor/sources"
	"github.com/Hara602/regmon/internal/notify"
	"github.com/Hara602/regmon/pkg/event"
	"github.com/Hara602/regmon/pkg/standard"
)

// Fetcher 是引擎需要的抓取能力
type Fetcher interface {
	fetch.Getter
	PoliteDelay(ctx context.Context) error
}

// StrategyResolver 按来源变体选择抽取策略
type StrategyResolver interface {
	For(src standard.Source) (monitor.Strategy, error)
}

// Notifier 分发通知，失败只体现在 Result 中
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Result
}

type Engine struct {
	cfg        *config.Config
	store      *history.Store
	fetcher    Fetcher
	strategies StrategyResolver
	notifier   Notifier
	logger     *zap.Logger

	now   func() time.Time
	runID func() string
	host  func(ctx context.Context) *notify.HostInfo
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithRunID(fn func() string) Option { return func(e *Engine) { e.runID = fn } }

func WithHostInfo(fn func(ctx context.Context) *notify.HostInfo) Option {
	return func(e *Engine) { e.host = fn }
}

func NewEngine(cfg *config.Config, store *history.Store, f Fetcher, strategies StrategyResolver, n Notifier, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		store:      store,
		fetcher:    f,
		strategies: strategies,
		notifier:   n,
		logger:     zap.NewNop(),
		now:        time.Now,
		runID:      func() string { return uuid.NewString() },
		host:       notify.CollectHost,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 执行一次完整的运行：检查、持久化、通知
// 顶层失败时把 status=fail 写回状态文件并发送错误通知，然后返回错误
func (e *Engine) Execute(ctx context.Context) error {
	rep, err := e.runSafely(ctx)
	if err != nil {
		return e.fail(ctx, err)
	}
	log := e.logger.With(zap.String("run_id", rep.RunID))

	updatesSent := false
	if len(rep.Events) > 0 {
		res := e.notifier.Dispatch(ctx, notify.Notification{
			Kind:    notify.KindUpdates,
			At:      e.timestamp(),
			Updates: rep.Events,
		})
		e.countDelivery(rep, notify.KindUpdates, res)
		updatesSent = true
	}

	now := e.now().In(e.cfg.Location())
	if ShouldSendHeartbeat(now, e.cfg.Weekday(), updatesSent) {
		log.Info("heartbeat day, sending health report", zap.Stringer("weekday", now.Weekday()))
		res := e.notifier.Dispatch(ctx, notify.Notification{
			Kind:             notify.KindHeartbeat,
			At:               e.timestamp(),
			StandardsChecked: rep.Checked,
			Status:           string(rep.Status),
			Host:             e.host(ctx),
		})
		e.countDelivery(rep, notify.KindHeartbeat, res)
	} else if now.Weekday() == e.cfg.Weekday() {
		log.Info("heartbeat day but updates were sent, skipping health report")
	}

	e.writeMetrics(rep)
	return nil
}

// ShouldSendHeartbeat 仅在心跳日且本次没有发送变更通知时返回 true
func ShouldSendHeartbeat(now time.Time, day time.Weekday, updatesSent bool) bool {
	return now.Weekday() == day && !updatesSent
}

func (e *Engine) runSafely(ctx context.Context) (rep *Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rep, err = nil, &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return e.Run(ctx)
}

func (e *Engine) fail(ctx context.Context, cause error) error {
	at := e.timestamp()
	e.logger.Error("monitor run failed", zap.Error(cause))

	if err := e.store.MarkFailed(at); err != nil {
		e.logger.Error("could not record failed status", zap.Error(err))
	}

	text := cause.Error()
	var perr *PanicError
	if errors.As(cause, &perr) {
		text += "\n\n" + string(perr.Stack)
	}
	e.notifier.Dispatch(ctx, notify.Notification{
		Kind:  notify.KindError,
		At:    at,
		Error: text,
	})

	now := e.now()
	e.writeMetrics(&Report{Status: history.StatusFail, Started: now, Finished: now, metrics: metrics.New()})
	return fmt.Errorf("monitor run failed: %w", cause)
}

// Run 逐个检查状态文件中的标准，最后只写一次状态文件
// 单个标准的失败不会中断运行；读写状态文件失败是致命的
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:   e.runID(),
		Started: e.now(),
		metrics: metrics.New(),
	}
	log := e.logger.With(zap.String("run_id", rep.RunID))
	log.Info("monitor run starting", zap.String("state_file", e.store.Path()))

	snap, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	rep.Snapshot = snap
	rep.metrics.StandardsTotal.Set(float64(snap.Standards.Len()))

	snap.Standards.Each(func(category string, s *standard.Standard) bool {
		start := time.Now()
		res := e.check(ctx, s)
		res.Category = category
		rep.metrics.ObserveCheck(string(s.Type), res.Outcome.String(), start)

		fields := []zap.Field{
			zap.String("standard_id", s.ID),
			zap.String("category", category),
			zap.String("source_type", string(s.Type)),
			zap.Stringer("outcome", res.Outcome),
		}
		switch res.Outcome {
		case OutcomeFailed:
			rep.Errors++
			log.Warn("standard check failed", append(fields, zap.Error(res.Err))...)
		case OutcomeUpdated:
			rep.Events = append(rep.Events, *res.Event)
			rep.metrics.Updates.Inc()
			log.Info("version changed", append(fields,
				zap.String("old_version", res.OldVersion),
				zap.String("new_version", res.NewVersion),
				zap.String("rung", res.Rung))...)
		default:
			log.Info("standard checked", append(fields,
				zap.String("version", res.NewVersion),
				zap.String("rung", res.Rung))...)
		}
		if res.Outcome.Succeeded() {
			rep.Checked++
			rep.metrics.ObserveExtraction(string(s.Type), res.Rung)
		}
		rep.Results = append(rep.Results, res)
		return true
	})

	rep.Status = history.StatusSuccess
	if rep.Errors > 0 {
		rep.Status = history.StatusPartial
	}
	snap.Metadata = history.Metadata{
		LastRunTime:      e.timestamp(),
		StandardsChecked: rep.Checked,
		Status:           rep.Status,
		Errors:           rep.Errors,
		UpdatesDetected:  len(rep.Events),
		RunID:            rep.RunID,
	}
	snap.Record(rep.Events, e.cfg.HistoryCapacity)

	if err := e.store.Save(snap); err != nil {
		return nil, err
	}
	rep.Finished = e.now()

	log.Info("monitor run finished",
		zap.Int("checked", rep.Checked),
		zap.Int("updates", len(rep.Events)),
		zap.Int("errors", rep.Errors),
		zap.String("status", string(rep.Status)),
		zap.Duration("took", rep.Finished.Sub(rep.Started)))
	return rep, nil
}

// Check 只抓取和抽取单个标准，不写状态文件
func (e *Engine) Check(ctx context.Context, id string) (*CheckResult, error) {
	snap, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	s, category, ok := snap.Standards.Find(id)
	if !ok {
		return nil, fmt.Errorf("standard %q not found in %s", id, e.store.Path())
	}
	res := e.check(ctx, s.Clone())
	res.Category = category
	return &res, nil
}

// check 处理一个标准；失败时不修改 s
func (e *Engine) check(ctx context.Context, s *standard.Standard) (res CheckResult) {
	res = CheckResult{StandardID: s.ID, Type: s.Type, OldVersion: s.Version()}
	defer func() {
		if rec := recover(); rec != nil {
			res.Outcome = OutcomeFailed
			res.Event = nil
			res.Err = fmt.Errorf("panic while checking %s: %v", s.ID, rec)
		}
	}()

	ex, target, err := e.observe(ctx, s)
	res.Target = target
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	res.Rung = ex.Rung
	res.NewVersion = ex.Version
	res.Outcome, res.Event = e.apply(s, ex.Version)
	if res.Outcome == OutcomeUnchanged {
		res.NewVersion = s.Version()
	}
	return res
}

func (e *Engine) observe(ctx context.Context, s *standard.Standard) (monitor.Extraction, string, error) {
	src, err := s.Source()
	if err != nil {
		return monitor.Extraction{}, "", err
	}
	strategy, err := e.strategies.For(src)
	if err != nil {
		return monitor.Extraction{}, "", err
	}
	target, err := strategy.Target(src)
	if err != nil {
		return monitor.Extraction{}, "", err
	}
	if err := e.fetcher.PoliteDelay(ctx); err != nil {
		return monitor.Extraction{}, target, err
	}
	doc, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		return monitor.Extraction{}, target, err
	}
	ex, err := strategy.Extract(doc)
	if err != nil {
		return monitor.Extraction{}, target, fmt.Errorf("extract %s: %w", s.ID, err)
	}
	return ex, target, nil
}

// apply 把新版本与基线比较并更新 s
func (e *Engine) apply(s *standard.Standard, version string) (Outcome, *event.ChangeEvent) {
	at := e.timestamp()
	s.LastChecked = &at

	if s.CurrentVersion == nil {
		v := version
		s.CurrentVersion = &v
		return OutcomeFirstRecord, nil
	}
	old := *s.CurrentVersion

	if e.cfg.ReconcileIssueTokens && s.Type.Kind() == standard.KindCountryAgencyIssue {
		if kept, same := reconcileIssue(old, version); same {
			s.CurrentVersion = &kept
			return OutcomeUnchanged, nil
		}
	}
	if old == version {
		return OutcomeUnchanged, nil
	}

	v := version
	s.CurrentVersion = &v
	return OutcomeUpdated, &event.ChangeEvent{
		StandardID: s.ID,
		Name:       s.Name,
		Type:       s.Type,
		OldVersion: old,
		NewVersion: version,
		DetectedAt: at,
	}
}

// reconcileIssue 判断两个 Issue 版本串是否只差日期有无
// 同号时：partial→composite 升级为带日期的形式，composite→partial 保留原值
func reconcileIssue(old, next string) (string, bool) {
	oldIssue, oldDated, ok := sources.IssueNumber(old)
	if !ok {
		return "", false
	}
	nextIssue, nextDated, ok := sources.IssueNumber(next)
	if !ok || oldIssue != nextIssue || oldDated == nextDated {
		return "", false
	}
	if oldDated {
		return old, true
	}
	return next, true
}

func (e *Engine) timestamp() string {
	return e.now().In(e.cfg.Location()).Format(config.TimeLayout)
}

func (e *Engine) countDelivery(rep *Report, kind notify.Kind, res notify.Result) {
	rep.metrics.ObserveNotification(string(kind), "sent", len(res.Sent))
	rep.metrics.ObserveNotification(string(kind), "skipped", len(res.Skipped))
	rep.metrics.ObserveNotification(string(kind), "failed", len(multierr.Errors(res.Err)))
}

func (e *Engine) writeMetrics(rep *Report) {
	if e.cfg.MetricsFile == "" {
		return
	}
	statuses := []string{string(history.StatusSuccess), string(history.StatusPartial), string(history.StatusFail)}
	rep.metrics.SetRun(string(rep.Status), statuses, rep.Finished, rep.Finished.Sub(rep.Started))
	if err := rep.metrics.WriteTextfile(e.cfg.MetricsFile); err != nil {
		e.logger.Warn("write metrics textfile failed", zap.String("path", e.cfg.MetricsFile), zap.Error(err))
	}
}
