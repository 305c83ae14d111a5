package domain

// FileIdentity 是缓存条目有效性的判定依据。
//
// 约束：三元组中任何一项变化都视为文件已改变，条目失效。
// 已知局限：size 与 mtime 都未变的内容替换无法被检测到
// （见 DESIGN.md；接受该碰撞风险，不做内容哈希）。
type FileIdentity struct {
	Path        string `json:"path"` // clean + absolute
	Size        int64  `json:"size"`
	ModUnixNano int64  `json:"mod_unix_nano"`
}

// ImageFile 描述一次扫描得到的图像文件（只做 stat，不读内容）。
//
// 不变量：AbsPath 必须是 clean + absolute；扫描阶段不解码。
type ImageFile struct {
	AbsPath     string
	RelPath     string
	Base        string // filename without ext
	Ext         string // ".png"
	Size        int64
	ModUnixNano int64
}

// Identity 从扫描结果构造缓存键。
func (f ImageFile) Identity() FileIdentity {
	return FileIdentity{Path: f.AbsPath, Size: f.Size, ModUnixNano: f.ModUnixNano}
}
