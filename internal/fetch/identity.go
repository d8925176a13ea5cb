package fetch

import (
	"fmt"
	"math/rand"

	"github.com/mssola/useragent"
)

// DefaultIdentity 在身份池不可用时使用
const DefaultIdentity = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// 内置身份池：常见桌面浏览器
var builtinIdentities = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

// Identities 每次请求独立随机选择客户端标识（User-Agent）
type Identities struct {
	pool []string
	pick func(n int) int
}

// NewIdentities 校验自定义身份；custom 为空时使用内置池
func NewIdentities(custom []string) (*Identities, error) {
	pool := builtinIdentities
	if len(custom) > 0 {
		pool = make([]string, 0, len(custom))
		for _, s := range custom {
			ua := useragent.New(s)
			if name, _ := ua.Browser(); name == "" || ua.Bot() {
				return nil, fmt.Errorf("fetch: user agent %q is not a browser identity", s)
			}
			pool = append(pool, s)
		}
	}
	return &Identities{pool: pool, pick: rand.Intn}, nil
}

// Pick 返回一个随机身份；池为空时回退到 DefaultIdentity
func (i *Identities) Pick() string {
	if i == nil || len(i.pool) == 0 {
		return DefaultIdentity
	}
	return i.pool[i.pick(len(i.pool))]
}

// Describe 返回浏览器族和版本，仅用于日志
func Describe(identity string) string {
	name, version := useragent.New(identity).Browser()
	if name == "" {
		return "unknown"
	}
	return name + "/" + version
}
