package domain

// DensityProfile 是一次分析的唯一长生命周期产物：每层一个信息密度值，
// 下标 0 对应全分辨率层。
//
// 不变量：
// - len(Levels) == mip 链深度
// - 每个 Levels[i] 的长度 == Channels（标量模式恒为 1）
// - 所有值 >= 0
// 值带旧工具的 ×1000 展示倍率（"kilo luminance"）。
type DensityProfile struct {
	Mode     AnalysisMode `json:"mode"`
	Channels int          `json:"channels"`
	Levels   [][]float64  `json:"levels"`
}

// Mip0 返回第 0 层的标量密度。PerChannel 模式下取通道均值
// （排序/CSV 需要单一标量；逐通道数值仍完整保留在 Levels 里）。
func (p DensityProfile) Mip0() float64 {
	if len(p.Levels) == 0 || len(p.Levels[0]) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range p.Levels[0] {
		sum += v
	}
	return sum / float64(len(p.Levels[0]))
}

// Valid 做最小结构校验（缓存读回时防御损坏条目）。
func (p DensityProfile) Valid() bool {
	if _, ok := ParseMode(string(p.Mode)); !ok {
		return false
	}
	if p.Channels < 1 || len(p.Levels) == 0 {
		return false
	}
	for _, lv := range p.Levels {
		if len(lv) != p.Channels {
			return false
		}
		for _, v := range lv {
			if v < 0 {
				return false
			}
		}
	}
	return true
}
