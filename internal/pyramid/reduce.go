package pyramid

import (
	"fmt"
	"math"

	"github.com/John-Robertt/mipscan/internal/domain"
)

// 亮度权重表。三通道为 Rec.709 luma；四通道沿用旧工具的权重
// （含 alpha 份额，alpha 的变化同样算信息）。
var (
	lumaRGB  = []float64{0.2126, 0.7152, 0.0722}
	lumaRGBA = []float64{0.165, 0.54, 0.052, 0.243}
)

// Reduce 把每层 Band 归约为一个或多个逐像素标量平面。
// 返回 planes[level][channel] 与归约后的通道数（PerChannel 为源通道数，
// 其余模式恒为 1）。
//
// NormalMap 模式消费的是 mip 链而非差值 Band：法线编码的是方向，
// 必须用相邻层法线的夹角（arccos(dot)）比较，不能做逐通道差。
func Reduce(chain []domain.MipLevel, bands []domain.Band, mode domain.AnalysisMode) ([][][]float64, int, error) {
	if len(bands) == 0 {
		return nil, 0, fmt.Errorf("pyramid: 空金字塔")
	}
	c := bands[0].C
	if c != 1 && c != 3 && c != 4 {
		return nil, 0, fmt.Errorf("%w：%d 通道", ErrUnsupportedChannels, c)
	}

	switch mode {
	case domain.ModeLuminance:
		w, err := lumaWeights(c)
		if err != nil {
			return nil, 0, err
		}
		return weightedPlanes(bands, w), 1, nil

	case domain.ModeAverage:
		w := make([]float64, c)
		for i := range w {
			w[i] = 1 / float64(c)
		}
		return weightedPlanes(bands, w), 1, nil

	case domain.ModePerChannel:
		planes := make([][][]float64, len(bands))
		for i, b := range bands {
			planes[i] = make([][]float64, c)
			for ch := 0; ch < c; ch++ {
				planes[i][ch] = channelPlane(b, ch)
			}
		}
		return planes, c, nil

	case domain.ModeNormalMap:
		if c < 3 {
			return nil, 0, fmt.Errorf("%w：法线模式需要 3 或 4 通道，实际 %d", ErrUnsupportedChannels, c)
		}
		return normalAnglePlanes(chain), 1, nil

	default:
		return nil, 0, fmt.Errorf("pyramid: 未知模式 %q", mode)
	}
}

func lumaWeights(c int) ([]float64, error) {
	switch c {
	case 1:
		return []float64{1}, nil
	case 3:
		return lumaRGB, nil
	case 4:
		return lumaRGBA, nil
	default:
		return nil, fmt.Errorf("%w：%d 通道", ErrUnsupportedChannels, c)
	}
}

func weightedPlanes(bands []domain.Band, w []float64) [][][]float64 {
	planes := make([][][]float64, len(bands))
	for i, b := range bands {
		plane := make([]float64, b.W*b.H)
		for p := range plane {
			v := 0.0
			base := p * b.C
			for c := 0; c < b.C && c < len(w); c++ {
				v += b.Pix[base+c] * w[c]
			}
			plane[p] = v
		}
		planes[i] = [][]float64{plane}
	}
	return planes
}

func channelPlane(b domain.Band, ch int) []float64 {
	plane := make([]float64, b.W*b.H)
	for p := range plane {
		plane[p] = b.Pix[p*b.C+ch]
	}
	return plane
}

// normalAnglePlanes 计算相邻层法线的角偏差（弧度）。
// 第 i 层：当前层法线 vs 上采样后重新归一化的第 i+1 层法线。
// 末层没有更小的参照层，按约定给零平面（退化为零密度）。
func normalAnglePlanes(chain []domain.MipLevel) [][][]float64 {
	planes := make([][][]float64, len(chain))
	for i := 0; i < len(chain)-1; i++ {
		cur := chain[i]
		up := upsampleBilinear(chain[i+1], cur.W, cur.H)
		plane := make([]float64, cur.W*cur.H)
		for p := range plane {
			ax, ay, az := normalAt(cur, p)
			bx, by, bz := normalAt(up, p)
			dot := ax*bx + ay*by + az*bz
			if dot > 1 {
				dot = 1
			} else if dot < -1 {
				dot = -1
			}
			plane[p] = math.Acos(dot)
		}
		planes[i] = [][]float64{plane}
	}
	last := chain[len(chain)-1]
	planes[len(chain)-1] = [][]float64{make([]float64, last.W*last.H)}
	return planes
}

// normalAt 把第 p 个像素的前三个通道解码为单位法线：
// [0,1] → [-1,1]（×2−1），随后归一化；长度下限 clamp 到 1e-4，
// 避免接近零向量的像素放大为 NaN。
func normalAt(m domain.MipLevel, p int) (x, y, z float64) {
	base := p * m.C
	x = m.Pix[base]*2 - 1
	y = m.Pix[base+1]*2 - 1
	z = m.Pix[base+2]*2 - 1
	l := math.Sqrt(x*x + y*y + z*z)
	if l < 1e-4 {
		l = 1e-4
	}
	return x / l, y / l, z / l
}
