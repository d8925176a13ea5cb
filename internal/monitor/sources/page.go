// Package sources 实现各来源的版本抽取策略
package sources

import (
	"bytes"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Link 是页面中的一个 <a href> 元素
type Link struct {
	Href  string
	Label string
}

// Page 对原始文档做惰性解析，供各个回退层级共用
type Page struct {
	raw []byte

	once  sync.Once
	text  string
	links []Link
}

func NewPage(raw []byte) *Page {
	return &Page{raw: raw}
}

// Raw 返回未渲染的原始文档
func (p *Page) Raw() []byte { return p.raw }

// Text 返回渲染后的文本：各文本节点去空白后以单个空格连接，不含 script/style
func (p *Page) Text() string {
	p.parse()
	return p.text
}

// Links 返回所有带 href 的链接
func (p *Page) Links() []Link {
	p.parse()
	return p.links
}

func (p *Page) parse() {
	p.once.Do(func() {
		var (
			parts   []string
			skip    int
			inLink  bool
			current Link
			label   []string
		)
		z := html.NewTokenizer(bytes.NewReader(p.raw))
		for {
			tt := z.Next()
			switch tt {
			case html.ErrorToken:
				if inLink {
					current.Label = strings.Join(label, " ")
					p.links = append(p.links, current)
				}
				p.text = strings.Join(parts, " ")
				return
			case html.StartTagToken, html.SelfClosingTagToken:
				tok := z.Token()
				switch tok.DataAtom {
				case atom.Script, atom.Style, atom.Noscript, atom.Template:
					if tt == html.StartTagToken {
						skip++
					}
				case atom.A:
					href, ok := attr(tok, "href")
					if !ok {
						continue
					}
					if inLink {
						current.Label = strings.Join(label, " ")
						p.links = append(p.links, current)
					}
					inLink, current, label = true, Link{Href: href}, nil
					if tt == html.SelfClosingTagToken {
						p.links = append(p.links, current)
						inLink = false
					}
				}
			case html.EndTagToken:
				tok := z.Token()
				switch tok.DataAtom {
				case atom.Script, atom.Style, atom.Noscript, atom.Template:
					if skip > 0 {
						skip--
					}
				case atom.A:
					if inLink {
						current.Label = strings.Join(label, " ")
						p.links = append(p.links, current)
						inLink = false
					}
				}
			case html.TextToken:
				if skip > 0 {
					continue
				}
				s := strings.Join(strings.Fields(string(z.Text())), " ")
				if s == "" {
					continue
				}
				parts = append(parts, s)
				if inLink {
					label = append(label, s)
				}
			}
		}
	})
}

func attr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
