// Package fetch 为抽取策略提供带重试的文档抓取
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Hara602/regmon/internal/config"
)

// 单个文档的读取上限
const maxBodyBytes = 32 << 20

// Document 是一次成功抓取的原始文档
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// FetchError 表示重试耗尽，携带最后一次失败原因
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: giving up after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusError 表示非 2xx 响应
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Doer 是 http.Client 的最小接口，便于测试替换
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Getter 是引擎依赖的抓取能力
type Getter interface {
	Fetch(ctx context.Context, rawURL string) (*Document, error)
}

// Fetcher 在原始抓取能力外包一层有限重试、随机间隔和随机身份
// 除了每主机限速器外不持有共享状态，可在各标准间复用
type Fetcher struct {
	client     Doer
	cfg        config.FetchConfig
	identities *Identities
	logger     *zap.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Fetcher)

func WithClient(c Doer) Option { return func(f *Fetcher) { f.client = c } }

func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.logger = l } }

func WithIdentities(i *Identities) Option { return func(f *Fetcher) { f.identities = i } }

func WithClock(now func() time.Time) Option { return func(f *Fetcher) { f.now = now } }

func WithSleep(s func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = s }
}

func WithJitter(j func(lo, hi time.Duration) time.Duration) Option {
	return func(f *Fetcher) { f.jitter = j }
}

// New 创建 Fetcher
func New(cfg config.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		identities: &Identities{pool: builtinIdentities, pick: rand.Intn},
		logger:     zap.NewNop(),
		sleep:      Sleep,
		jitter:     Jitter,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cfg.MaxAttempts < 1 {
		f.cfg.MaxAttempts = 1
	}
	return f
}

// Fetch 抓取 rawURL；非 2xx 和传输错误都会重试，重试间隔在 [RetryDelayMin, RetryDelayMax) 内随机
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		doc, err := f.attempt(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: ctx.Err()}
		}

		f.logger.Warn("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.cfg.MaxAttempts),
			zap.Error(err))

		if attempt < f.cfg.MaxAttempts {
			if err := f.sleep(ctx, f.jitter(f.cfg.RetryDelayMin, f.cfg.RetryDelayMax)); err != nil {
				return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: err}
			}
		}
	}
	return nil, &FetchError{URL: rawURL, Attempts: f.cfg.MaxAttempts, Err: lastErr}
}

// PoliteDelay 在某个标准的第一次请求前等待 [PoliteDelayMin, PoliteDelayMax)
func (f *Fetcher) PoliteDelay(ctx context.Context) error {
	return f.sleep(ctx, f.jitter(f.cfg.PoliteDelayMin, f.cfg.PoliteDelayMax))
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	identity := f.identities.Pick()
	req.Header.Set("User-Agent", identity)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	f.logger.Debug("fetching",
		zap.String("url", rawURL),
		zap.String("identity", Describe(identity)))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Document{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   f.now(),
	}, nil
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		limit := rate.Inf
		if f.cfg.RequestsPerSecond > 0 {
			limit = rate.Limit(f.cfg.RequestsPerSecond)
		}
		l = rate.NewLimiter(limit, 1)
		f.limiters[host] = l
	}
	return l
}

// Sleep 可被 ctx 取消的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Jitter 返回 [lo, hi) 内的随机时长；hi <= lo 时返回 lo
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// IsStatus 判断错误链中是否为指定 HTTP 状态
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
