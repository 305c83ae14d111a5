// Package pyramid 实现分析引擎的数值核心：把 mip 链分解为 Laplacian
// 金字塔，按模式把每层 Band 归约为逐像素标量，再折算成逐层信息密度。
package pyramid

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/mipscan/internal/domain"
)

// ErrUnsupportedChannels 表示通道数/解释方式与请求的模式不匹配。
// 上层映射为 error_code=unsupported_channels，单文件跳过，不中断批量扫描。
var ErrUnsupportedChannels = errors.New("pyramid: 不支持的通道布局")

// BuildBands 由 mip 链生成 Laplacian 金字塔：
// Band[i] = Mip[i] - bilinearUpsample(Mip[i+1])（带符号，逐通道），
// 末层 Band = 末层 Mip 原样。
//
// 单层链按契约返回单个等于该层的 Band（密度反映原图而非频带）。
func BuildBands(chain []domain.MipLevel) ([]domain.Band, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("pyramid: 空 mip 链")
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].C != chain[0].C {
			return nil, fmt.Errorf("pyramid: 第 %d 层通道数不一致：%d != %d", i, chain[i].C, chain[0].C)
		}
		// 标准减半（向下取整，下限 1）。进度不符说明链本身是坏的。
		wantW, wantH := halfDim(chain[i-1].W), halfDim(chain[i-1].H)
		if chain[i].W != wantW || chain[i].H != wantH {
			return nil, fmt.Errorf("pyramid: 第 %d 层尺寸异常：%dx%d，期望 %dx%d",
				i, chain[i].W, chain[i].H, wantW, wantH)
		}
	}

	bands := make([]domain.Band, len(chain))
	for i := 0; i < len(chain)-1; i++ {
		up := upsampleBilinear(chain[i+1], chain[i].W, chain[i].H)
		b := domain.NewBand(chain[i].W, chain[i].H, chain[i].C)
		for p := range b.Pix {
			b.Pix[p] = chain[i].Pix[p] - up.Pix[p]
		}
		bands[i] = b
	}

	last := chain[len(chain)-1]
	b := domain.NewBand(last.W, last.H, last.C)
	copy(b.Pix, last.Pix)
	bands[len(chain)-1] = b
	return bands, nil
}

// Collapse 把金字塔重建回第 0 层：从末层开始逐级上采样并加回 Band。
// 主要用于测试回环律；与 BuildBands 共享同一个插值核，保证往返一致。
func Collapse(bands []domain.Band) domain.MipLevel {
	last := bands[len(bands)-1]
	acc := domain.MipLevel{W: last.W, H: last.H, C: last.C, Pix: append([]float64(nil), last.Pix...)}
	for i := len(bands) - 2; i >= 0; i-- {
		up := upsampleBilinear(acc, bands[i].W, bands[i].H)
		for p := range up.Pix {
			up.Pix[p] += bands[i].Pix[p]
		}
		acc = up
	}
	return acc
}

// Analyze 跑完整条归约管线：链 → 金字塔 → 模式归约 → 逐层密度。
func Analyze(chain []domain.MipLevel, mode domain.AnalysisMode) (domain.DensityProfile, error) {
	bands, err := BuildBands(chain)
	if err != nil {
		return domain.DensityProfile{}, err
	}
	planes, channels, err := Reduce(chain, bands, mode)
	if err != nil {
		return domain.DensityProfile{}, err
	}

	profile := domain.DensityProfile{
		Mode:     mode,
		Channels: channels,
		Levels:   make([][]float64, len(bands)),
	}
	for i, lv := range planes {
		profile.Levels[i] = make([]float64, len(lv))
		for c, plane := range lv {
			profile.Levels[i][c] = density(plane)
		}
	}
	return profile, nil
}

func halfDim(v int) int {
	v /= 2
	if v < 1 {
		return 1
	}
	return v
}
