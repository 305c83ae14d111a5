package pyramid

import "gonum.org/v1/gonum/floats"

// displayScale 是旧工具的 ×1000 展示倍率（"kilo luminance"），
// 纯粹为了让数值可读，属于可观测输出的一部分。
const displayScale = 1000.0

// density 把一个标量平面折算为单个非负密度值：
// 绝对值的算术平均（L1 范数 ÷ 像素数），不做动态范围归一。
func density(plane []float64) float64 {
	if len(plane) == 0 {
		return 0
	}
	return displayScale * floats.Norm(plane, 1) / float64(len(plane))
}
