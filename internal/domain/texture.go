package domain

// MipLevel 是一层 mip 的浮点像素网格。
//
// 不变量（实现必须遵守）：
// - Pix 按行主序 interleaved 存储，len(Pix) == W*H*C
// - C ∈ {1,3,4}
// - 像素值在解码后落在 [0,1]（÷255 语义）；Band 的派生网格可以为负
type MipLevel struct {
	W, H, C int
	Pix     []float64
}

// NewMipLevel 分配一个全零网格。
func NewMipLevel(w, h, c int) MipLevel {
	return MipLevel{W: w, H: h, C: c, Pix: make([]float64, w*h*c)}
}

// At 返回 (x,y) 像素第 c 个通道的值。越界是调用方错误，不做检查。
func (m MipLevel) At(x, y, c int) float64 {
	return m.Pix[(y*m.W+x)*m.C+c]
}

// Set 写入 (x,y) 像素第 c 个通道的值。
func (m MipLevel) Set(x, y, c int, v float64) {
	m.Pix[(y*m.W+x)*m.C+c] = v
}

// Band 是 Laplacian 金字塔中的一层带通网格：
// 非末层为 mip[i] - upsample(mip[i+1])（逐像素、逐通道、带符号），
// 末层为 mip[last] 原样。与对应 MipLevel 同尺寸、同通道数、下标对齐。
type Band struct {
	W, H, C int
	Pix     []float64
}

// NewBand 分配一个全零 Band。
func NewBand(w, h, c int) Band {
	return Band{W: w, H: h, C: c, Pix: make([]float64, w*h*c)}
}

// Texture 是解码后的顶层图像及其文件身份。
// MipLevel/Band 都是一次分析调用内的临时产物；Texture 同样不跨调用存活。
type Texture struct {
	Path     string
	Identity FileIdentity
	HasAlpha bool
	Top      MipLevel
}

// IsMipMappable 判定宽高是否都是 2 的幂且大于 3（旧工具的可分析门槛：
// 非 2 幂贴图的 mip 链减半不精确，太小的图没有有意义的链）。
func IsMipMappable(w, h int) bool {
	if w <= 3 || h <= 3 {
		return false
	}
	return w&(w-1) == 0 && h&(h-1) == 0
}
