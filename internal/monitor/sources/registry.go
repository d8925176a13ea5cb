package sources

import (
	"fmt"

	"github.com/Hara602/regmon/internal/config"
	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/internal/monitor"
	"github.com/Hara602/regmon/pkg/standard"
)

// UnclassifiedStrategy 没有结构化信号，只做内容指纹
type UnclassifiedStrategy struct{}

func NewUnclassifiedStrategy() *UnclassifiedStrategy { return &UnclassifiedStrategy{} }

func (s *UnclassifiedStrategy) Kind() standard.Kind { return standard.KindUnclassified }

func (s *UnclassifiedStrategy) Target(src standard.Source) (string, error) {
	u, ok := src.(standard.Unclassified)
	if !ok {
		return "", fmt.Errorf("sources: unclassified strategy cannot handle %s", src.Kind())
	}
	return u.URL, nil
}

func (s *UnclassifiedStrategy) Extract(doc *fetch.Document) (monitor.Extraction, error) {
	if doc == nil {
		return monitor.Extraction{}, fmt.Errorf("sources: nil document")
	}
	return Chain{FingerprintRung}.Run(NewPage(doc.Body))
}

// Registry 按来源类型选择策略
type Registry struct {
	titleCode     monitor.Strategy
	agencyIssue   monitor.Strategy
	technicalSpec monitor.Strategy
	unclassified  monitor.Strategy
}

// NewRegistry 创建包含全部内置策略的注册表
func NewRegistry(cfg config.SourcesConfig) *Registry {
	return &Registry{
		titleCode:     NewTitleCodeStrategy(cfg.ECFRVersionsURL),
		agencyIssue:   NewAgencyIssueStrategy(),
		technicalSpec: NewTechnicalSpecStrategy(),
		unclassified:  NewUnclassifiedStrategy(),
	}
}

// For 返回处理 src 的策略
func (r *Registry) For(src standard.Source) (monitor.Strategy, error) {
	switch src.(type) {
	case standard.TitleCode:
		return r.titleCode, nil
	case standard.AgencyIssue:
		return r.agencyIssue, nil
	case standard.TechnicalSpec:
		return r.technicalSpec, nil
	case standard.Unclassified:
		return r.unclassified, nil
	default:
		return nil, fmt.Errorf("sources: no strategy for %T", src)
	}
}
