// Package history 负责状态文件：每个标准的当前版本基线和有容量上限的变更记录
package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Hara602/regmon/pkg/event"
	"github.com/Hara602/regmon/pkg/standard"
)

// Status 是一次运行的结果
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFail    Status = "fail"
)

// Metadata 每次运行整体覆盖，仪表盘只读
type Metadata struct {
	LastRunTime      string `json:"last_run_time,omitempty"`
	StandardsChecked int    `json:"standards_checked"`
	Status           Status `json:"status,omitempty"`
	Errors           int    `json:"errors"`
	UpdatesDetected  int    `json:"updates_detected"`
	RunID            string `json:"run_id,omitempty"`
}

// Category 是状态文件 standards 中的一个分类
type Category struct {
	Name      string
	Standards []*standard.Standard
}

// Catalog 是按文件中出现顺序排列的分类列表，序列化为 JSON 对象
type Catalog []Category

func (c Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(cat.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		list := cat.Standards
		if list == nil {
			list = []*standard.Standard{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Catalog) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("standards: expected object, got %v", tok)
	}
	var out Catalog
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var list []*standard.Standard
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("standards %s: %w", name, err)
		}
		out = append(out, Category{Name: name, Standards: list})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// Len 返回标准总数
func (c Catalog) Len() int {
	n := 0
	for _, cat := range c {
		n += len(cat.Standards)
	}
	return n
}

// Each 按文件顺序遍历所有标准，fn 返回 false 时停止
func (c Catalog) Each(fn func(category string, s *standard.Standard) bool) {
	for _, cat := range c {
		for _, s := range cat.Standards {
			if s == nil {
				continue
			}
			if !fn(cat.Name, s) {
				return
			}
		}
	}
}

// Find 按 id 查找标准
func (c Catalog) Find(id string) (*standard.Standard, string, bool) {
	var (
		found    *standard.Standard
		category string
	)
	c.Each(func(cat string, s *standard.Standard) bool {
		if s.ID == id {
			found, category = s, cat
			return false
		}
		return true
	})
	return found, category, found != nil
}

// Snapshot 是状态文件的完整内容
type Snapshot struct {
	Metadata      Metadata            `json:"metadata"`
	Standards     Catalog             `json:"standards"`
	UpdateHistory []event.ChangeEvent `json:"update_history"`
}

// Record 把本次运行的变更按检测顺序逐条插入到最前面，再截断到 capacity
// 与原状态文件一致：同一次运行中最后检测到的变更排在最前
func (s *Snapshot) Record(events []event.ChangeEvent, capacity int) {
	if len(events) == 0 {
		return
	}
	merged := make([]event.ChangeEvent, 0, len(events)+len(s.UpdateHistory))
	for i := len(events) - 1; i >= 0; i-- {
		merged = append(merged, events[i])
	}
	merged = append(merged, s.UpdateHistory...)
	if capacity > 0 && len(merged) > capacity {
		merged = merged[:capacity]
	}
	s.UpdateHistory = merged
}

// Encode 以两空格缩进输出，不转义 HTML 字符，末尾无换行
func (s *Snapshot) Encode() ([]byte, error) {
	out := *s
	if out.Standards == nil {
		out.Standards = Catalog{}
	}
	if out.UpdateHistory == nil {
		out.UpdateHistory = []event.ChangeEvent{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode 解析状态文件内容
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if len(bytes.TrimSpace(data)) == 0 {
		return &s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
