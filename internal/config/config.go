// Package config 构建进程级配置：默认值 → 可选 YAML 文件 → 环境变量
// 只有本包读取环境变量，其他组件通过 *Config 注入
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStateFile       = "history.json"
	DefaultTimezone        = "Asia/Taipei"
	DefaultHistoryCapacity = 100
	// TimeLayout 是状态文件和通知里使用的时间格式
	TimeLayout = "2006-01-02 15:04:05"
)

// FetchConfig 控制抓取重试与节奏
type FetchConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryDelayMin     time.Duration `yaml:"retry_delay_min"`
	RetryDelayMax     time.Duration `yaml:"retry_delay_max"`
	PoliteDelayMin    time.Duration `yaml:"polite_delay_min"`
	PoliteDelayMax    time.Duration `yaml:"polite_delay_max"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 每个主机；<= 0 表示不限速
	UserAgents        []string      `yaml:"user_agents"`         // 为空时使用内置身份池
}

// SourcesConfig 定义各来源的接口地址
type SourcesConfig struct {
	ECFRVersionsURL string `yaml:"ecfr_versions_url"` // 包含一个 %s 占位符（title 号）
}

// EmailConfig SMTP 通道；User/Password/Recipients 任一为空则通道停用
type EmailConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	User           string   `yaml:"-"`
	Password       string   `yaml:"-"`
	Recipients     []string `yaml:"recipients"`
	MaxErrorLength int      `yaml:"max_error_length"`
}

// Enabled 凭据齐全时返回 true
func (e EmailConfig) Enabled() bool {
	return e.User != "" && e.Password != "" && len(e.Recipients) > 0
}

// TelegramConfig 机器人通道；Token/ChatID 任一为空则通道停用
type TelegramConfig struct {
	Token          string        `yaml:"-"`
	ChatID         string        `yaml:"-"`
	APIBase        string        `yaml:"api_base"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxErrorLength int           `yaml:"max_error_length"`
}

// Enabled 凭据齐全时返回 true
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

type NotifyConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// Config 是整个进程的配置
type Config struct {
	StateFile       string        `yaml:"state_file"`
	Timezone        string        `yaml:"timezone"`
	HeartbeatDay    string        `yaml:"heartbeat_day"`
	HistoryCapacity int           `yaml:"history_capacity"`
	MetricsFile     string        `yaml:"metrics_file"`
	// 同一 Issue 号仅因日期有无而不同的版本串不视为变化
	ReconcileIssueTokens bool `yaml:"reconcile_issue_tokens"`

	Fetch   FetchConfig   `yaml:"fetch"`
	Sources SourcesConfig `yaml:"sources"`
	Notify  NotifyConfig  `yaml:"notify"`
	Log     LogConfig     `yaml:"log"`

	location *time.Location
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		StateFile:       DefaultStateFile,
		Timezone:        DefaultTimezone,
		HeartbeatDay:    "monday",
		HistoryCapacity: DefaultHistoryCapacity,
		Fetch: FetchConfig{
			MaxAttempts:       3,
			Timeout:           30 * time.Second,
			RetryDelayMin:     2 * time.Second,
			RetryDelayMax:     5 * time.Second,
			PoliteDelayMin:    1 * time.Second,
			PoliteDelayMax:    2 * time.Second,
			RequestsPerSecond: 1,
		},
		Sources: SourcesConfig{
			ECFRVersionsURL: "https://www.ecfr.gov/api/versioner/v1/versions/title-%s.json",
		},
		Notify: NotifyConfig{
			Email: EmailConfig{
				Host:           "smtp.gmail.com",
				Port:           587,
				MaxErrorLength: 20000,
			},
			Telegram: TelegramConfig{
				APIBase:        "https://api.telegram.org",
				Timeout:        10 * time.Second,
				MaxErrorLength: 1500,
			},
		},
		Log: LogConfig{Mode: "development", Level: "info"},
	}
}

// Load 读取配置；path 为空或文件不存在时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("REGMON_STATE_FILE", &c.StateFile)
	str("REGMON_TIMEZONE", &c.Timezone)
	str("REGMON_HEARTBEAT_DAY", &c.HeartbeatDay)
	str("REGMON_METRICS_FILE", &c.MetricsFile)
	str("REGMON_LOG_MODE", &c.Log.Mode)
	str("REGMON_LOG_LEVEL", &c.Log.Level)

	str("EMAIL_HOST", &c.Notify.Email.Host)
	str("EMAIL_HOST_USER", &c.Notify.Email.User)
	str("EMAIL_HOST_PASSWORD", &c.Notify.Email.Password)
	if v, ok := lookup("EMAIL_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: EMAIL_PORT %q: %w", v, err)
		}
		c.Notify.Email.Port = port
	}
	if v, ok := lookup("EMAIL_RECIPIENTS"); ok {
		c.Notify.Email.Recipients = splitList(v)
	}

	str("TELEGRAM_BOT_TOKEN", &c.Notify.Telegram.Token)
	str("TELEGRAM_CHAT_ID", &c.Notify.Telegram.ChatID)
	return nil
}

// Validate 校验配置并解析时区
func (c *Config) Validate() error {
	f := c.Fetch
	switch {
	case c.StateFile == "":
		return errors.New("config: state_file required")
	case f.MaxAttempts < 1:
		return fmt.Errorf("config: fetch.max_attempts must be >= 1, got %d", f.MaxAttempts)
	case f.Timeout <= 0:
		return fmt.Errorf("config: fetch.timeout must be positive, got %s", f.Timeout)
	case f.RetryDelayMin < 0 || f.RetryDelayMax < f.RetryDelayMin:
		return fmt.Errorf("config: invalid retry delay range [%s,%s)", f.RetryDelayMin, f.RetryDelayMax)
	case f.PoliteDelayMin < 0 || f.PoliteDelayMax < f.PoliteDelayMin:
		return fmt.Errorf("config: invalid polite delay range [%s,%s)", f.PoliteDelayMin, f.PoliteDelayMax)
	case c.HistoryCapacity < 1:
		return fmt.Errorf("config: history_capacity must be >= 1, got %d", c.HistoryCapacity)
	case !strings.Contains(c.Sources.ECFRVersionsURL, "%s"):
		return fmt.Errorf("config: sources.ecfr_versions_url must contain %%s")
	}
	if _, err := ParseWeekday(c.HeartbeatDay); err != nil {
		return err
	}
	c.location = loadLocation(c.Timezone)
	return nil
}

// Location 返回配置时区
func (c *Config) Location() *time.Location {
	if c.location == nil {
		c.location = loadLocation(c.Timezone)
	}
	return c.location
}

// Weekday 返回心跳发送日
func (c *Config) Weekday() time.Weekday {
	d, err := ParseWeekday(c.HeartbeatDay)
	if err != nil {
		return time.Monday
	}
	return d
}

// ParseWeekday 接受英文星期名（不区分大小写，可用三字母缩写）或 0-6（0 = 周日）
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("config: invalid heartbeat day %q", s)
}

// loadLocation 缺少 tzdata 时回退到固定偏移（UTC+8 与原部署一致）
func loadLocation(name string) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("UTC+8", 8*60*60)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
