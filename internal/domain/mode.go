package domain

import "strings"

// AnalysisMode 决定一个 Band 的多通道像素如何归约为标量。
//
// 约束：模式集合是封闭的；未知模式一律在配置/CLI 阶段拒绝，
// 不允许流入分析管线。
type AnalysisMode string

const (
	// ModeLuminance 用感知亮度权重对 RGB 加权求和（忽略 alpha 的独立性，
	// 四通道时沿用旧工具的权重表，含 alpha 份额）。
	ModeLuminance AnalysisMode = "luminance"
	// ModeAverage 对所有通道取无权平均。
	ModeAverage AnalysisMode = "average"
	// ModePerChannel 不归约：每个通道独立分析，得到逐通道的 profile。
	ModePerChannel AnalysisMode = "per_channel"
	// ModeNormalMap 把像素解释为单位法线向量，用相邻层法线的夹角做归约。
	ModeNormalMap AnalysisMode = "normal_map"
)

// ParseMode 校验模式字符串。输入大小写不敏感。
func ParseMode(s string) (AnalysisMode, bool) {
	switch AnalysisMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLuminance:
		return ModeLuminance, true
	case ModeAverage:
		return ModeAverage, true
	case ModePerChannel:
		return ModePerChannel, true
	case ModeNormalMap:
		return ModeNormalMap, true
	default:
		return "", false
	}
}

// Modes 返回全部合法模式（固定顺序，供帮助文本与校验提示使用）。
func Modes() []AnalysisMode {
	return []AnalysisMode{ModeLuminance, ModeAverage, ModePerChannel, ModeNormalMap}
}
