package monitor

import (
	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/pkg/standard"
)

// Extraction 是一次抽取的结果：版本串以及命中的回退层级
type Extraction struct {
	Version string
	Rung    string
}

// Strategy 是所有来源抽取策略必须实现的接口
// 引擎只负责抓取 Target 给出的地址，不需要知道页面结构
type Strategy interface {
	Kind() standard.Kind
	// Target 返回需要抓取的地址
	Target(src standard.Source) (string, error)
	// Extract 把抓到的文档转成版本串；文档可达时总能得到结果（最终回退到内容指纹）
	Extract(doc *fetch.Document) (Extraction, error)
}
