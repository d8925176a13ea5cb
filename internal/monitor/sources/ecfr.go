package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/internal/monitor"
	"github.com/Hara602/regmon/pkg/standard"
)

// ecfrVersions 是 eCFR versioner 接口 /versions/title-N.json 的响应中用到的部分
type ecfrVersions struct {
	ContentVersions []struct {
		Date string `json:"date"`
	} `json:"content_versions"`
	Meta struct {
		LatestIssueDate     string `json:"latest_issue_date"`
		LatestAmendmentDate string `json:"latest_amendment_date"`
	} `json:"meta"`
}

// TitleCodeStrategy 处理 RegulatoryTitleCode：按 title 号查询 eCFR 版本列表
type TitleCodeStrategy struct {
	versionsURL string // 含一个 %s
}

func NewTitleCodeStrategy(versionsURL string) *TitleCodeStrategy {
	return &TitleCodeStrategy{versionsURL: versionsURL}
}

func (s *TitleCodeStrategy) Kind() standard.Kind { return standard.KindRegulatoryTitleCode }

func (s *TitleCodeStrategy) Target(src standard.Source) (string, error) {
	tc, ok := src.(standard.TitleCode)
	if !ok {
		return "", fmt.Errorf("sources: title code strategy cannot handle %s", src.Kind())
	}
	return fmt.Sprintf(s.versionsURL, url.PathEscape(strings.TrimSpace(tc.Title))), nil
}

// Extract 优先取第一条（视为最新）版本的日期，其次 meta 中的发布/修订日期，最后用内容指纹
func (s *TitleCodeStrategy) Extract(doc *fetch.Document) (monitor.Extraction, error) {
	if doc == nil {
		return monitor.Extraction{}, fmt.Errorf("sources: nil document")
	}

	var (
		parsed   *ecfrVersions
		parseErr error
	)
	decode := func(p *Page) (*ecfrVersions, error) {
		if parsed == nil && parseErr == nil {
			var v ecfrVersions
			if err := json.Unmarshal(p.Raw(), &v); err != nil {
				parseErr = fmt.Errorf("%w: decode versions: %v", ErrNoMatch, err)
			} else {
				parsed = &v
			}
		}
		return parsed, parseErr
	}

	chain := Chain{
		{Name: "content_versions", Fn: func(p *Page) (string, error) {
			v, err := decode(p)
			if err != nil {
				return "", err
			}
			if len(v.ContentVersions) == 0 {
				return "", ErrNoMatch
			}
			return strings.TrimSpace(v.ContentVersions[0].Date), nil
		}},
		{Name: "latest_issue_date", Fn: func(p *Page) (string, error) {
			v, err := decode(p)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(v.Meta.LatestIssueDate), nil
		}},
		{Name: "latest_amendment_date", Fn: func(p *Page) (string, error) {
			v, err := decode(p)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(v.Meta.LatestAmendmentDate), nil
		}},
		FingerprintRung,
	}
	return chain.Run(NewPage(doc.Body))
}
