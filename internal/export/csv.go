package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"time"

	"github.com/John-Robertt/mipscan/internal/domain"
	"github.com/John-Robertt/mipscan/internal/infra/fsx"
)

// timestampLayout 生成 MipStats_2026_08_29_14_05_01.csv 这类文件名。
const timestampLayout = "2006_01_02_15_04_05"

// FileName 返回带时间戳的导出文件名。
func FileName(now time.Time) string {
	return "MipStats_" + now.Format(timestampLayout) + ".csv"
}

// EncodeCSV 把报表里的 processed 条目编成 CSV（密度升序，与报表顺序一致）。
//
// 规则：
// - 只导出 processed：skipped/failed 没有密度，进榜没有意义
// - 密度三位小数；尺寸格式 WxH；布尔用 true/false
func EncodeCSV(rr domain.ScanReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Mip0 Information", "Filepath", "Dimensions", "has Alpha", "Mode"}); err != nil {
		return nil, err
	}
	for _, it := range rr.Items {
		if it.Status != domain.StatusProcessed {
			continue
		}
		rec := []string{
			fmt.Sprintf("%.3f", it.Mip0Density),
			it.Path,
			fmt.Sprintf("%dx%d", it.Width, it.Height),
			fmt.Sprintf("%t", it.HasAlpha),
			string(it.Mode),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV 把报表导出到 dir 下的 MipStats_<时间戳>.csv，原子落盘，
// 返回写入的完整路径。
func WriteCSV(dir string, rr domain.ScanReport, now time.Time) (string, error) {
	data, err := EncodeCSV(rr)
	if err != nil {
		return "", err
	}
	name := FileName(now)
	if err := fsx.WriteFileAtomicReplace(dir, name, data); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
