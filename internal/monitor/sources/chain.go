package sources

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Hara602/regmon/internal/monitor"
)

// FingerprintLength 是内容指纹保留的十六进制字符数
const FingerprintLength = 12

// ErrNoMatch 表示某个层级在文档中找不到预期结构，交给下一层处理
var ErrNoMatch = errors.New("sources: no match")

// Rung 是回退链中的一层
type Rung struct {
	Name string
	Fn   func(p *Page) (string, error)
}

// Chain 按顺序尝试各层，第一个成功的结果胜出
type Chain []Rung

// Run 执行回退链；单层 panic 视为未命中
func (c Chain) Run(p *Page) (monitor.Extraction, error) {
	var errs []error
	for _, r := range c {
		v, err := r.try(p)
		if err == nil && v != "" {
			return monitor.Extraction{Version: v, Rung: r.Name}, nil
		}
		if err == nil {
			err = ErrNoMatch
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
	}
	return monitor.Extraction{}, errors.Join(errs...)
}

func (r Rung) try(p *Page) (v string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrNoMatch, rec)
		}
	}()
	return r.Fn(p)
}

// Fingerprint 对原始文档做哈希并截断，作为最后的版本替身
// 使用 md5 与已有历史文件中的指纹保持一致
func Fingerprint(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// FingerprintRung 永远成功
var FingerprintRung = Rung{
	Name: "fingerprint",
	Fn: func(p *Page) (string, error) {
		return Fingerprint(p.Raw()), nil
	},
}
