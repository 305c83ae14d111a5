// Package modeinfer 按文件名的词缀约定推断分析模式。
// 纯函数：同样的 (文件名, 配置) 永远得到同样的结果，没有隐藏状态。
package modeinfer

import (
	"path/filepath"
	"strings"

	"github.com/John-Robertt/mipscan/internal/domain"
)

// Rules 是词缀推断的只读配置。
type Rules struct {
	// Auto 为 false 时推断整体关闭（Infer 恒为未命中）。
	Auto bool
	// Affixes 按模式列出词缀；匹配基名（去扩展名）的前缀或后缀。
	Affixes map[domain.AnalysisMode][]string
}

// inferOrder 是词缀表的检查顺序（先配置者胜，顺序固定保证确定性）。
var inferOrder = []domain.AnalysisMode{
	domain.ModeLuminance,
	domain.ModeAverage,
	domain.ModePerChannel,
	domain.ModeNormalMap,
}

// Infer 从文件名推断模式。返回 (模式, 是否命中)。
// 未命中时由调用方决定回退：单文件分析用配置的默认模式，
// 批量扫描回退为 Average。显式指定的模式永远优先，在调用方处理。
func Infer(filename string, rules Rules) (domain.AnalysisMode, bool) {
	if !rules.Auto {
		return "", false
	}

	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)

	for _, mode := range inferOrder {
		for _, affix := range rules.Affixes[mode] {
			affix = strings.ToLower(strings.TrimSpace(affix))
			if affix == "" {
				continue
			}
			if strings.HasPrefix(base, affix) || strings.HasSuffix(base, affix) {
				return mode, true
			}
		}
	}
	return "", false
}
