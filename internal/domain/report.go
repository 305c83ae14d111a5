package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// error_code 的完整词表（对外 JSON 契约的一部分；config_* 由 config 包产出）。
const (
	ErrCodeDecodeFailed        = "decode_failed"
	ErrCodeUnsupportedChannels = "unsupported_channels"
	ErrCodeInvalidMipChain     = "invalid_mip_chain"
	ErrCodeCacheUnavailable    = "cache_unavailable"
	ErrCodeIOFailed            = "io_failed"
	ErrCodeConfigNotFound      = "config_not_found"
	ErrCodeConfigInvalid       = "config_invalid"
	ErrCodeConfigMissingPath   = "config_missing_path"
	ErrCodeConfigBadRoot       = "config_bad_root"
)

// ScanReport 是对外稳定输出（report.json / stdout JSON）的结构。
type ScanReport struct {
	Root string `json:"root"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	CacheDegraded bool `json:"cache_degraded"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ItemResult 是单个文件的分析结论。单文件失败不影响其他条目。
type ItemResult struct {
	Path string `json:"path"` // 相对扫描根；单文件模式下为绝对路径

	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Mode     AnalysisMode `json:"mode,omitempty"`
	Width    int          `json:"width,omitempty"`
	Height   int          `json:"height,omitempty"`
	HasAlpha bool         `json:"has_alpha,omitempty"`
	CacheHit bool         `json:"cache_hit,omitempty"`

	// Mip0Density 只对 processed 条目有意义（扫描排序键）。
	Mip0Density float64 `json:"mip0_density"`

	// Profile 在单文件模式下携带完整逐层结果；扫描模式下省略以控制体积。
	Profile *DensityProfile `json:"profile,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：processed 按 (密度升序, 路径)，低信息文件排最前；
//    skipped/failed 排在其后，按路径字典序
// 3) summary 由 items 计算得出
func (r *ScanReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	rank := func(st string) int {
		switch st {
		case StatusProcessed:
			return 0
		case StatusSkipped:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if ra, rb := rank(a.Status), rank(b.Status); ra != rb {
			return ra < rb
		}
		if a.Status == StatusProcessed && b.Status == StatusProcessed {
			if a.Mip0Density != b.Mip0Density {
				return a.Mip0Density < b.Mip0Density
			}
		}
		return a.Path < b.Path
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r ScanReport) MarshalJSON() ([]byte, error) {
	type Alias ScanReport
	return json.Marshal(Alias(r))
}
