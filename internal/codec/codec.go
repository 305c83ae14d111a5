// Package codec 把磁盘上的图像文件变成分析管线消费的浮点 mip 序列。
//
// 解码依赖标准库 image.Decode 与 golang.org/x/image 的扩展解码器；
// mip 链按旧工具的语义由 2×2 盒式减半生成（对精确 0.5× 缩放，
// INTER_AREA 就是盒式平均）。
package codec

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	_ "image/gif"  // 注册 GIF 解码器
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器

	_ "golang.org/x/image/bmp"  // 注册 BMP 解码器
	_ "golang.org/x/image/tiff" // 注册 TIFF 解码器
	_ "golang.org/x/image/webp" // 注册 WEBP 解码器

	"github.com/John-Robertt/mipscan/internal/domain"
)

// ErrNotMipMappable 表示宽高不满足分析门槛（非 2 幂或过小）。
// 上层映射为 error_code=invalid_mip_chain。
var ErrNotMipMappable = errors.New("codec: 贴图尺寸不可 mip 化（要求 2 的幂且 > 3）")

// Decode 解码一个图像文件为浮点顶层，并在同一次 stat 里取得文件身份。
//
// 通道判定：
// - 灰度源（Gray/Gray16）→ 1 通道
// - 其余 → 存在非不透明像素则 4 通道，否则 3 通道
// 像素值归一化到 [0,1]（16bit RGBA() ÷ 0xffff，与旧工具 ÷255 同义）。
func Decode(path string) (*domain.Texture, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	abs = filepath.Clean(abs)

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("解码失败：%w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("图片尺寸无效：%dx%d", w, h)
	}

	tex := &domain.Texture{
		Path: abs,
		Identity: domain.FileIdentity{
			Path:        abs,
			Size:        fi.Size(),
			ModUnixNano: fi.ModTime().UnixNano(),
		},
	}

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		tex.Top = grayPlane(img)
	default:
		tex.HasAlpha = hasTranslucent(img)
		c := 3
		if tex.HasAlpha {
			c = 4
		}
		tex.Top = colorPlanes(img, c)
	}
	return tex, nil
}

// BuildMipChain 从顶层生成完整 mip 链：逐级 2×2 盒式减半，
// 直到短边为 1。链长 = log2(短边) + 1。
//
// 前置条件：IsMipMappable(top.W, top.H) 为真；否则返回 ErrNotMipMappable。
// 单层输入（理论上不会出现，因为门槛要求 >3px）按契约返回单元素链。
func BuildMipChain(top domain.MipLevel) ([]domain.MipLevel, error) {
	if !domain.IsMipMappable(top.W, top.H) {
		return nil, ErrNotMipMappable
	}

	chain := []domain.MipLevel{top}
	cur := top
	for cur.W > 1 && cur.H > 1 {
		cur = halve(cur)
		chain = append(chain, cur)
	}
	return chain, nil
}

// halve 做精确 2×2 盒式平均减半。2 的幂尺寸下不存在半像素边界。
func halve(src domain.MipLevel) domain.MipLevel {
	w := src.W / 2
	if w < 1 {
		w = 1
	}
	h := src.H / 2
	if h < 1 {
		h = 1
	}
	dst := domain.NewMipLevel(w, h, src.C)

	for y := 0; y < h; y++ {
		sy0 := 2 * y
		sy1 := sy0 + 1
		if sy1 >= src.H {
			sy1 = sy0
		}
		for x := 0; x < w; x++ {
			sx0 := 2 * x
			sx1 := sx0 + 1
			if sx1 >= src.W {
				sx1 = sx0
			}
			for c := 0; c < src.C; c++ {
				v := src.At(sx0, sy0, c) + src.At(sx1, sy0, c) +
					src.At(sx0, sy1, c) + src.At(sx1, sy1, c)
				dst.Set(x, y, c, v*0.25)
			}
		}
	}
	return dst
}

func grayPlane(img image.Image) domain.MipLevel {
	b := img.Bounds()
	m := domain.NewMipLevel(b.Dx(), b.Dy(), 1)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Set(x, y, 0, float64(r)/0xffff)
		}
	}
	return m
}

func colorPlanes(img image.Image, c int) domain.MipLevel {
	b := img.Bounds()
	m := domain.NewMipLevel(b.Dx(), b.Dy(), c)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			// 经 NRGBA64 取非预乘值：半透明像素的颜色通道不应被 alpha 压暗。
			px := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			m.Set(x, y, 0, float64(px.R)/0xffff)
			m.Set(x, y, 1, float64(px.G)/0xffff)
			m.Set(x, y, 2, float64(px.B)/0xffff)
			if c == 4 {
				m.Set(x, y, 3, float64(px.A)/0xffff)
			}
		}
	}
	return m
}

func hasTranslucent(img image.Image) bool {
	// 常见的 opaque 判定捷径：实现了 Opaque() 的类型直接询问。
	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
