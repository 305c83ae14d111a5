package pyramid

import "github.com/John-Robertt/mipscan/internal/domain"

// upsampleBilinear 把 src 双线性放大到 w×h。
//
// 直接在 float64 平面上实现而不借道 x/image/draw：Band 需要带符号、
// 超 8bit 精度的中间值，经由整型图像往返会截断。采样点对齐沿用
// draw.BiLinear 的像素中心约定：dst 像素中心映射回
// src 坐标 (d+0.5)*src/dst - 0.5，边界 clamp。
// 这是对原始 mip 生成核的一个确定性近似，不保证与任何 GPU 滤波位级一致。
func upsampleBilinear(src domain.MipLevel, w, h int) domain.MipLevel {
	dst := domain.NewMipLevel(w, h, src.C)

	sx := float64(src.W) / float64(w)
	sy := float64(src.H) / float64(h)

	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		if fy < 0 {
			fy = 0
		}
		y0 := int(fy)
		if y0 > src.H-1 {
			y0 = src.H - 1
		}
		y1 := y0 + 1
		if y1 > src.H-1 {
			y1 = src.H - 1
		}
		ty := fy - float64(y0)

		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			if fx < 0 {
				fx = 0
			}
			x0 := int(fx)
			if x0 > src.W-1 {
				x0 = src.W - 1
			}
			x1 := x0 + 1
			if x1 > src.W-1 {
				x1 = src.W - 1
			}
			tx := fx - float64(x0)

			for c := 0; c < src.C; c++ {
				top := src.At(x0, y0, c)*(1-tx) + src.At(x1, y0, c)*tx
				bot := src.At(x0, y1, c)*(1-tx) + src.At(x1, y1, c)*tx
				dst.Set(x, y, c, top*(1-ty)+bot*ty)
			}
		}
	}
	return dst
}
