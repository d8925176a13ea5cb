package sources

import (
	"fmt"
	"regexp"

	"github.com/Hara602/regmon/internal/fetch"
	"github.com/Hara602/regmon/internal/monitor"
	"github.com/Hara602/regmon/pkg/standard"
)

const months = `(?:January|February|March|April|May|June|July|August|September|October|November|December)`

var (
	issueRe = regexp.MustCompile(`Issue\s+(\d+)`)
	// "July 24, 2025" 或 "July 24 2025"
	dayDateRe = regexp.MustCompile(months + `\s+\d{1,2},?\s+\d{4}`)
	// "February 2019"
	monthDateRe = regexp.MustCompile(months + `\s+\d{4}`)
	// 组合版本串 "Issue N (date)"
	compositeRe = regexp.MustCompile(`^Issue (\d+) \((.+)\)$`)
	partialRe   = regexp.MustCompile(`^Issue (\d+)$`)
)

// AgencyIssueStrategy 处理 CountryAgencyIssue：从详情页文本中读取 Issue 号和日期
type AgencyIssueStrategy struct{}

func NewAgencyIssueStrategy() *AgencyIssueStrategy { return &AgencyIssueStrategy{} }

func (s *AgencyIssueStrategy) Kind() standard.Kind { return standard.KindCountryAgencyIssue }

func (s *AgencyIssueStrategy) Target(src standard.Source) (string, error) {
	ai, ok := src.(standard.AgencyIssue)
	if !ok {
		return "", fmt.Errorf("sources: agency issue strategy cannot handle %s", src.Kind())
	}
	return ai.URL, nil
}

func (s *AgencyIssueStrategy) Extract(doc *fetch.Document) (monitor.Extraction, error) {
	if doc == nil {
		return monitor.Extraction{}, fmt.Errorf("sources: nil document")
	}
	return agencyIssueChain.Run(NewPage(doc.Body))
}

var agencyIssueChain = Chain{
	{Name: "issue_and_date", Fn: func(p *Page) (string, error) {
		issue, ok := findIssue(p.Text())
		if !ok {
			return "", ErrNoMatch
		}
		date, ok := findDate(p.Text())
		if !ok {
			return "", ErrNoMatch
		}
		return composite(issue, date), nil
	}},
	{Name: "issue_only", Fn: func(p *Page) (string, error) {
		issue, ok := findIssue(p.Text())
		if !ok {
			return "", ErrNoMatch
		}
		return partial(issue), nil
	}},
	// Issue 号只出现在标签属性等未渲染部分
	{Name: "raw_issue", Fn: func(p *Page) (string, error) {
		issue, ok := findIssue(string(p.Raw()))
		if !ok {
			return "", ErrNoMatch
		}
		if date, ok := findDate(p.Text()); ok {
			return composite(issue, date), nil
		}
		return partial(issue), nil
	}},
	FingerprintRung,
}

func findIssue(text string) (string, bool) {
	m := issueRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func findDate(text string) (string, bool) {
	if m := dayDateRe.FindString(text); m != "" {
		return m, true
	}
	if m := monthDateRe.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

func composite(issue, date string) string { return fmt.Sprintf("Issue %s (%s)", issue, date) }

func partial(issue string) string { return "Issue " + issue }

// IssueNumber 从 "Issue N" 或 "Issue N (date)" 中取出 N，并报告是否带日期
func IssueNumber(version string) (issue string, dated bool, ok bool) {
	if m := compositeRe.FindStringSubmatch(version); m != nil {
		return m[1], true, true
	}
	if m := partialRe.FindStringSubmatch(version); m != nil {
		return m[1], false, true
	}
	return "", false, false
}
