package event

import (
	"github.com/Hara602/regmon/pkg/standard"
)

// ChangeEvent 定义一次版本变化，写入 update_history 后不再修改
// 首次记录（无旧版本）只写基线，不产生 ChangeEvent，因此 OldVersion 总是非空
type ChangeEvent struct {
	StandardID string              `json:"id"`
	Name       string              `json:"name"`
	Type       standard.SourceType `json:"type"`
	OldVersion string              `json:"old_version"`
	NewVersion string              `json:"new_version"`
	DetectedAt string              `json:"detected_at"` // 配置时区下的 "2006-01-02 15:04:05"
}

// Kind 返回事件来源的枚举类型
func (e ChangeEvent) Kind() standard.Kind {
	return e.Type.Kind()
}
