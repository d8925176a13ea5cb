package sources

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/internal/monitor"
	"github.com/Hara602/regmon/pkg/standard"
)

// ETSI 目录名格式为 MM.mm.pp_SS，SS 是状态码：
// 60 已发布，40 投票中，30 草稿，20 早期草稿。只认 _60。
var (
	publishedDirRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2})_60(?:\D|$)`)
	// 附件文件名，例如 en_300328v020301p.pdf
	attachmentRe = regexp.MustCompile(`v(\d{2})(\d{2})(\d{2})`)
	textVersionRe = []*regexp.Regexp{
		regexp.MustCompile(`[Vv]ersion\s*(\d+(?:\.\d+)+)`),
		regexp.MustCompile(`\bV(\d+(?:\.\d+)+)`),
	}
)

// TechnicalSpecStrategy 处理 EuropeanTechnicalSpec：扫描目录列表中已发布的版本目录
type TechnicalSpecStrategy struct{}

func NewTechnicalSpecStrategy() *TechnicalSpecStrategy { return &TechnicalSpecStrategy{} }

func (s *TechnicalSpecStrategy) Kind() standard.Kind { return standard.KindEuropeanTechnicalSpec }

func (s *TechnicalSpecStrategy) Target(src standard.Source) (string, error) {
	ts, ok := src.(standard.TechnicalSpec)
	if !ok {
		return "", fmt.Errorf("sources: technical spec strategy cannot handle %s", src.Kind())
	}
	return ts.URL, nil
}

func (s *TechnicalSpecStrategy) Extract(doc *fetch.Document) (monitor.Extraction, error) {
	if doc == nil {
		return monitor.Extraction{}, fmt.Errorf("sources: nil document")
	}
	return technicalSpecChain.Run(NewPage(doc.Body))
}

var technicalSpecChain = Chain{
	{Name: "published_directory", Fn: latestPublished},
	{Name: "attachment_name", Fn: func(p *Page) (string, error) {
		for _, l := range p.Links() {
			href := strings.ToLower(l.Href)
			if !strings.Contains(href, ".pdf") {
				continue
			}
			if m := attachmentRe.FindStringSubmatch(href); m != nil {
				return render(atoi(m[1]), atoi(m[2]), atoi(m[3])), nil
			}
		}
		return "", ErrNoMatch
	}},
	{Name: "version_text", Fn: func(p *Page) (string, error) {
		text := p.Text()
		for _, re := range textVersionRe {
			if m := re.FindStringSubmatch(text); m != nil {
				return "V" + m[1], nil
			}
		}
		return "", ErrNoMatch
	}},
	FingerprintRung,
}

// latestPublished 收集链接目标和链接文字中所有 _60 目录，按 (major, minor, patch) 取最高
func latestPublished(p *Page) (string, error) {
	var versions semver.Collection
	for _, l := range p.Links() {
		m := publishedDirRe.FindStringSubmatch(l.Href)
		if m == nil {
			m = publishedDirRe.FindStringSubmatch(l.Label)
		}
		if m == nil {
			continue
		}
		v, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", atoi(m[1]), atoi(m[2]), atoi(m[3])))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return "", ErrNoMatch
	}
	sort.Sort(sort.Reverse(versions))
	top := versions[0]
	return render(top.Major(), top.Minor(), top.Patch()), nil
}

func render[T ~int | ~uint64](major, minor, patch T) string {
	return fmt.Sprintf("V%d.%d.%d", major, minor, patch)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
