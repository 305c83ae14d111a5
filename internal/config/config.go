package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/mipscan/internal/domain"
	"github.com/John-Robertt/mipscan/internal/modeinfer"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 mipscan.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
	// ErrCodeBadRoot 表示扫描根不可达或不是目录。
	ErrCodeBadRoot = "config_bad_root"
)

const (
	// DefaultMode 是默认分析模式的内置最终默认值。
	DefaultMode = domain.ModeLuminance
	// DefaultWorkers 是并发的内置默认值（当配置未指定时）。
	DefaultWorkers = 4
)

// defaultFormats 是 allow-list 的内置默认：旧工具支持表里
// 本实现有解码器的那部分（tga/pbm 系列没有解码器，不在表内）。
var defaultFormats = []string{
	".bmp", ".dib", ".jpeg", ".jpg", ".jpe", ".png", ".webp", ".tiff", ".tif", ".gif",
}

// defaultAffixes 是常见贴图命名约定的内置词缀表；配置文件可整体覆盖。
var defaultAffixes = map[domain.AnalysisMode][]string{
	domain.ModeLuminance:  {"_albedo", "_basecolor", "_col", "_diff"},
	domain.ModeAverage:    {"_rough", "_metal", "_ao", "_height", "_disp"},
	domain.ModePerChannel: {"_mask", "_orm"},
	domain.ModeNormalMap:  {"_n", "_normal", "_nrm"},
}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --no-cache=false 必须能覆盖配置中的 no_cache=true。
type CLIArgs struct {
	Path string
	// FileMode 为 true 时 Path 指向单个文件而非扫描根。
	FileMode bool

	Mode    string
	ModeSet bool

	Workers    int
	WorkersSet bool

	NoCache    bool
	NoCacheSet bool
}

// FileConfig 对应 mipscan.json 的解析结构。
type FileConfig struct {
	Path        string              `json:"path"`
	DefaultMode string              `json:"default_mode"`
	AutoMode    *bool               `json:"auto_mode"`
	Affixes     map[string][]string `json:"affixes"`
	Formats     []string            `json:"formats"`
	Workers     int                 `json:"workers"`
	NoCache     *bool               `json:"no_cache"`
	ExcludeDirs []string            `json:"exclude_dirs"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Path 是扫描根（scan）或目标文件（file），clean + absolute。
	Path     string
	FileMode bool

	// ModeOverride 非空表示 CLI 显式指定的模式，压过一切推断。
	ModeOverride domain.AnalysisMode
	DefaultMode  domain.AnalysisMode
	Rules        modeinfer.Rules

	// Formats 是小写扩展名（带点）的 allow-list。
	Formats map[string]bool

	Workers     int
	NoCache     bool
	ExcludeDirs []string
}

// FormatList 返回排序后的 allow-list（帮助文本/进度输出用）。
func (e EffectiveConfig) FormatList() []string {
	out := make([]string, 0, len(e.Formats))
	for ext := range e.Formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeBadRoot:
		if e.Err != nil {
			return fmt.Sprintf("%s：扫描根 %q 不可用：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：扫描根 %q 不可用", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/mipscan.json（file 模式为 <dir(path)>/mipscan.json，均可选）
// 2) CLI 未提供 path：必须读取 <cwd>/mipscan.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - mode：CLI --mode 是显式覆盖（ModeOverride）；config 的 default_mode 只决定推断落空时的回退
// - workers / no-cache：CLI > config > 默认
// - affixes / formats / exclude_dirs：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)

		cfgDir := absPath
		if cli.FileMode {
			cfgDir = filepath.Dir(absPath)
		}
		cfgPath := filepath.Join(cfgDir, "mipscan.json")

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		// 配置文件不存在也不报错（CLI 已给出 path）。
		return merge(absPath, cli, fc, cfgPath)
	}

	if cli.FileMode {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwdAbs,
			Err: fmt.Errorf("file 模式必须显式给出文件路径")}
	}

	// CLI 没给 path：必须读取 <cwd>/mipscan.json，且其中必须包含 path。
	cfgPath := filepath.Join(cwdAbs, "mipscan.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// path 可达性：scan 要求目录，file 要求常规文件。
	fi, err := os.Stat(absPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadRoot, Path: absPath, Err: err}
	}
	if cli.FileMode && fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadRoot, Path: absPath,
			Err: fmt.Errorf("file 模式需要文件，实际是目录")}
	}
	if !cli.FileMode && !fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadRoot, Path: absPath,
			Err: fmt.Errorf("scan 模式需要目录，实际是文件")}
	}

	// mode 覆盖：CLI 显式指定必须是合法模式。
	var override domain.AnalysisMode
	if cli.ModeSet {
		m, ok := domain.ParseMode(cli.Mode)
		if !ok {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
				Err: fmt.Errorf("--mode 只能是 %v，实际是 %q", domain.Modes(), cli.Mode)}
		}
		override = m
	}

	// default_mode：config > 内置默认。
	defMode := DefaultMode
	if strings.TrimSpace(fc.DefaultMode) != "" {
		m, ok := domain.ParseMode(fc.DefaultMode)
		if !ok {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
				Err: fmt.Errorf("default_mode 只能是 %v，实际是 %q", domain.Modes(), fc.DefaultMode)}
		}
		defMode = m
	}

	// 词缀表：config 覆盖整表；键必须是合法模式。
	affixes := defaultAffixes
	if fc.Affixes != nil {
		affixes = make(map[domain.AnalysisMode][]string, len(fc.Affixes))
		for k, v := range fc.Affixes {
			m, ok := domain.ParseMode(k)
			if !ok {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
					Err: fmt.Errorf("affixes 的键 %q 不是合法模式", k)}
			}
			affixes[m] = append([]string(nil), v...)
		}
	}

	auto := true
	if fc.AutoMode != nil {
		auto = *fc.AutoMode
	}

	formats, err := normalizeFormats(fc.Formats)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// workers：CLI > config > 默认；范围约定 [1,32]，超出截断。
	workers := fc.Workers
	if cli.WorkersSet {
		workers = cli.Workers
	}
	if workers == 0 {
		workers = DefaultWorkers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > 32 {
		workers = 32
	}

	noCache := false
	if fc.NoCache != nil {
		noCache = *fc.NoCache
	}
	if cli.NoCacheSet {
		noCache = cli.NoCache
	}

	return EffectiveConfig{
		Path:         absPath,
		FileMode:     cli.FileMode,
		ModeOverride: override,
		DefaultMode:  defMode,
		Rules:        modeinfer.Rules{Auto: auto, Affixes: affixes},
		Formats:      formats,
		Workers:      workers,
		NoCache:      noCache,
		ExcludeDirs:  append([]string(nil), fc.ExcludeDirs...),
	}, nil
}

// normalizeFormats 把配置/默认的扩展名表规范为小写、带点的集合。
// 空表示未配置，落回内置默认；显式的坏条目（无点、空串）是致命配置错误。
func normalizeFormats(in []string) (map[string]bool, error) {
	src := in
	if len(src) == 0 {
		src = defaultFormats
	}
	out := make(map[string]bool, len(src))
	for _, e := range src {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") || len(e) < 2 {
			return nil, fmt.Errorf("formats 条目无效：%q（需要形如 \".png\"）", e)
		}
		out[e] = true
	}
	return out, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
