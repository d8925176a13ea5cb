// Package standard 定义被监测的法规标准记录及其来源类型
package standard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// SourceType 是持久化文件中 "type" 字段的原始值，写回时保持不变
type SourceType string

const (
	TypeFCCCFR SourceType = "FCC_CFR" // eCFR title 版本接口
	TypeISED   SourceType = "ISED"    // ISED RSS 详情页
	TypeETSI   SourceType = "ETSI"    // ETSI 目录列表
)

// Kind 是来源类型的封闭枚举，未知的 type 字符串统一归入 KindUnclassified
type Kind int

const (
	KindUnclassified Kind = iota
	KindRegulatoryTitleCode
	KindCountryAgencyIssue
	KindEuropeanTechnicalSpec
)

func (k Kind) String() string {
	switch k {
	case KindRegulatoryTitleCode:
		return "RegulatoryTitleCode"
	case KindCountryAgencyIssue:
		return "CountryAgencyIssue"
	case KindEuropeanTechnicalSpec:
		return "EuropeanTechnicalSpec"
	default:
		return "Unclassified"
	}
}

// Kind 将原始 type 字符串映射到枚举
func (t SourceType) Kind() Kind {
	switch t {
	case TypeFCCCFR:
		return KindRegulatoryTitleCode
	case TypeISED:
		return KindCountryAgencyIssue
	case TypeETSI:
		return KindEuropeanTechnicalSpec
	default:
		return KindUnclassified
	}
}

// ErrMissingLocator 表示记录缺少其来源类型要求的定位字段
var ErrMissingLocator = errors.New("standard: missing source locator")

// Source 是按来源类型区分的定位信息，只有本包内的变体实现它
type Source interface {
	Kind() Kind
	sealed()
}

// TitleCode 对应 RegulatoryTitleCode，按 title 号查询版本接口
type TitleCode struct {
	Title string
}

// AgencyIssue 对应 CountryAgencyIssue，抓取详情页
type AgencyIssue struct {
	URL   string
	RSSID string
}

// TechnicalSpec 对应 EuropeanTechnicalSpec，抓取目录列表页
type TechnicalSpec struct {
	URL   string
	RSSID string
}

// Unclassified 没有结构化信号，只做内容指纹
type Unclassified struct {
	URL string
}

func (TitleCode) Kind() Kind     { return KindRegulatoryTitleCode }
func (AgencyIssue) Kind() Kind   { return KindCountryAgencyIssue }
func (TechnicalSpec) Kind() Kind { return KindEuropeanTechnicalSpec }
func (Unclassified) Kind() Kind  { return KindUnclassified }

func (TitleCode) sealed()     {}
func (AgencyIssue) sealed()   {}
func (TechnicalSpec) sealed() {}
func (Unclassified) sealed()  {}

// Standard 是一条被监测的标准
// CurrentVersion / LastChecked 为 nil 表示从未成功检查过，只能由监测引擎写入
type Standard struct {
	ID             string
	Name           string
	Type           SourceType
	Title          string
	SourceURL      string
	RSSID          string
	CurrentVersion *string
	LastChecked    *string

	// 原始 JSON 字段，保留前端等其他使用者写入的未知字段
	raw map[string]json.RawMessage
}

// Source 根据来源类型返回对应的定位变体
func (s *Standard) Source() (Source, error) {
	switch s.Type.Kind() {
	case KindRegulatoryTitleCode:
		if s.Title == "" {
			return nil, fmt.Errorf("%w: %s has no title", ErrMissingLocator, s.ID)
		}
		return TitleCode{Title: s.Title}, nil
	case KindCountryAgencyIssue:
		if s.SourceURL == "" {
			return nil, fmt.Errorf("%w: %s has no source_url", ErrMissingLocator, s.ID)
		}
		return AgencyIssue{URL: s.SourceURL, RSSID: s.RSSID}, nil
	case KindEuropeanTechnicalSpec:
		if s.SourceURL == "" {
			return nil, fmt.Errorf("%w: %s has no source_url", ErrMissingLocator, s.ID)
		}
		return TechnicalSpec{URL: s.SourceURL, RSSID: s.RSSID}, nil
	default:
		if s.SourceURL == "" {
			return nil, fmt.Errorf("%w: %s has no source_url", ErrMissingLocator, s.ID)
		}
		return Unclassified{URL: s.SourceURL}, nil
	}
}

// Version 返回当前版本，未记录时返回空串
func (s *Standard) Version() string {
	if s.CurrentVersion == nil {
		return ""
	}
	return *s.CurrentVersion
}

// Clone 深拷贝，供只读使用者（如 check 子命令）修改而不影响快照
func (s *Standard) Clone() *Standard {
	c := *s
	if s.CurrentVersion != nil {
		v := *s.CurrentVersion
		c.CurrentVersion = &v
	}
	if s.LastChecked != nil {
		v := *s.LastChecked
		c.LastChecked = &v
	}
	if s.raw != nil {
		c.raw = make(map[string]json.RawMessage, len(s.raw))
		for k, v := range s.raw {
			c.raw[k] = v
		}
	}
	return &c
}

func (s *Standard) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if s.ID, err = decodeText(raw["id"]); err != nil {
		return fmt.Errorf("standard: id: %w", err)
	}
	if s.Name, err = decodeText(raw["name"]); err != nil {
		return fmt.Errorf("standard %s: name: %w", s.ID, err)
	}
	typ, err := decodeText(raw["type"])
	if err != nil {
		return fmt.Errorf("standard %s: type: %w", s.ID, err)
	}
	s.Type = SourceType(typ)
	if s.Title, err = decodeText(raw["title"]); err != nil {
		return fmt.Errorf("standard %s: title: %w", s.ID, err)
	}
	if s.SourceURL, err = decodeText(raw["source_url"]); err != nil {
		return fmt.Errorf("standard %s: source_url: %w", s.ID, err)
	}
	if s.RSSID, err = decodeText(raw["rss_id"]); err != nil {
		return fmt.Errorf("standard %s: rss_id: %w", s.ID, err)
	}
	if s.CurrentVersion, err = decodeNullable(raw["current_version"]); err != nil {
		return fmt.Errorf("standard %s: current_version: %w", s.ID, err)
	}
	if s.LastChecked, err = decodeNullable(raw["last_checked"]); err != nil {
		return fmt.Errorf("standard %s: last_checked: %w", s.ID, err)
	}
	s.raw = raw
	return nil
}

func (s Standard) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.raw)+8)
	for k, v := range s.raw {
		out[k] = v
	}

	set := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}
	// 值未变时保留原始字节（例如数字形式的 title）
	keep := func(key, value string) error {
		if prev, ok := s.raw[key]; ok {
			if decoded, err := decodeText(prev); err == nil && decoded == value {
				return nil
			}
		} else if value == "" {
			return nil
		}
		return set(key, value)
	}

	for _, f := range []struct{ key, value string }{
		{"id", s.ID},
		{"name", s.Name},
		{"type", string(s.Type)},
		{"title", s.Title},
		{"source_url", s.SourceURL},
		{"rss_id", s.RSSID},
	} {
		if err := keep(f.key, f.value); err != nil {
			return nil, err
		}
	}
	if err := set("current_version", s.CurrentVersion); err != nil {
		return nil, err
	}
	if err := set("last_checked", s.LastChecked); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// decodeText 接受字符串或数字，缺失与 null 视为空串
func decodeText(b json.RawMessage) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if b[0] == '"' {
		var s string
		err := json.Unmarshal(b, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

func decodeNullable(b json.RawMessage) (*string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	s, err := decodeText(b)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}
