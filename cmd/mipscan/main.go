package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/mipscan/internal/app/run"
	"github.com/John-Robertt/mipscan/internal/config"
	"github.com/John-Robertt/mipscan/internal/domain"
	"github.com/John-Robertt/mipscan/internal/export"
	"github.com/John-Robertt/mipscan/internal/infra/fsx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "scan":
		if code := scanCmd(args[1:], false); code != 0 {
			os.Exit(code)
		}
	case "file":
		if code := scanCmd(args[1:], true); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func scanCmd(args []string, fileMode bool) int {
	for _, a := range args {
		if isHelp(a) {
			printScanUsage()
			return 0
		}
	}

	sa, err := parseScanArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printScanUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:       sa.Path,
		FileMode:   fileMode,
		Mode:       sa.Mode,
		ModeSet:    sa.ModeSet,
		Workers:    sa.Workers,
		WorkersSet: sa.WorkersSet,
		NoCache:    sa.NoCache,
		NoCacheSet: sa.NoCacheSet,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, err)
		emitReport(rr)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	var rr domain.ScanReport
	if fileMode {
		rr = run.ExecuteFile(context.Background(), eff, obs)
	} else {
		rr = run.ExecuteScan(context.Background(), eff, obs)
	}

	exitCode := 0
	if rr.Summary.Failed > 0 {
		exitCode = 1
	}

	// 批量扫描的主产物：密度榜 CSV，写在扫描根下。
	csvPath := ""
	if !fileMode {
		p, werr := export.WriteCSV(eff.Path, rr, time.Now())
		if werr != nil {
			fmt.Fprintf(os.Stderr, "写入 CSV 失败：%v\n", werr)
			exitCode = 1
		} else {
			csvPath = p
		}
	}

	// report.json 落在缓存目录；--no-cache 时整个会话不碰磁盘缓存。
	if !eff.NoCache {
		if werr := writeReportFile(eff, rr); werr != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", werr)
			exitCode = 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, csvPath)
	}
	return exitCode
}

type scanArgs struct {
	Path string

	Mode    string
	ModeSet bool

	Workers    int
	WorkersSet bool

	NoCache    bool
	NoCacheSet bool
}

func parseScanArgs(args []string) (scanArgs, error) {
	sa := scanArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--mode":
			if i+1 >= len(args) {
				return scanArgs{}, fmt.Errorf("--mode 需要一个值")
			}
			i++
			sa.Mode = args[i]
			sa.ModeSet = true
		case strings.HasPrefix(a, "--mode="):
			sa.Mode = strings.TrimPrefix(a, "--mode=")
			sa.ModeSet = true
		case a == "--workers":
			if i+1 >= len(args) {
				return scanArgs{}, fmt.Errorf("--workers 需要一个值")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return scanArgs{}, fmt.Errorf("--workers 需要整数，实际是 %q", args[i])
			}
			sa.Workers = n
			sa.WorkersSet = true
		case strings.HasPrefix(a, "--workers="):
			v := strings.TrimPrefix(a, "--workers=")
			n, err := strconv.Atoi(v)
			if err != nil {
				return scanArgs{}, fmt.Errorf("--workers 需要整数，实际是 %q", v)
			}
			sa.Workers = n
			sa.WorkersSet = true
		case a == "--no-cache":
			sa.NoCache = true
			sa.NoCacheSet = true
		case strings.HasPrefix(a, "--no-cache="):
			v := strings.TrimPrefix(a, "--no-cache=")
			switch v {
			case "true":
				sa.NoCache = true
			case "false":
				sa.NoCache = false
			default:
				return scanArgs{}, fmt.Errorf("--no-cache 只能是 true 或 false，实际是 %q", v)
			}
			sa.NoCacheSet = true
		case strings.HasPrefix(a, "-"):
			return scanArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if sa.Path != "" {
				return scanArgs{}, fmt.Errorf("重复的 path：%q 与 %q", sa.Path, a)
			}
			sa.Path = a
		}
	}

	if sa.ModeSet {
		if _, ok := domain.ParseMode(sa.Mode); !ok {
			return scanArgs{}, fmt.Errorf("--mode 只能是 %v，实际是 %q", domain.Modes(), sa.Mode)
		}
	}
	if sa.WorkersSet && sa.Workers <= 0 {
		return scanArgs{}, fmt.Errorf("--workers 必须大于 0，实际是 %d", sa.Workers)
	}

	return sa, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mipscan scan [path] [--mode <mode>] [--workers N] [--no-cache[=true|false]]
  mipscan file <path> [--mode <mode>] [--no-cache[=true|false]]

命令：
  scan   扫描目录，生成密度榜 CSV 与 report.json
  file   分析单个文件，输出完整逐层密度

使用 "mipscan scan --help" 查看详细说明。
`)
}

func printScanUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mipscan scan [path] [--mode <mode>] [--workers N] [--no-cache[=true|false]]
  mipscan file <path> [--mode <mode>] [--no-cache[=true|false]]

参数：
  --mode      固定分析模式：luminance|average|per_channel|normal_map
              （未指定则按文件名词缀推断）
  --workers   并发数（1..32；默认读配置文件，最终默认 4）
  --no-cache  本次运行不读不写磁盘缓存；支持 --no-cache=false 覆盖配置
  -h, --help  显示帮助
`)
}

func emitReport(rr domain.ScanReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 || rr.Summary.Skipped > 0 {
			for _, it := range rr.Items {
				if it.Status == domain.StatusProcessed {
					continue
				}
				key := it.Path
				if key == "" {
					key = "<unknown>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 ScanReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(cwdAbs string, err error) domain.ScanReport {
	now := time.Now().UTC()
	rr := domain.ScanReport{
		Root:       cwdAbs,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(eff config.EffectiveConfig, rr domain.ScanReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	root := eff.Path
	if eff.FileMode {
		root = filepath.Dir(eff.Path)
	}
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, csvPath string) {
	// 这几行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if csvPath != "" {
		fmt.Fprintf(w, "csv: %s\n", csvPath)
	}
	if !eff.NoCache {
		root := eff.Path
		if eff.FileMode {
			root = filepath.Dir(eff.Path)
		}
		fmt.Fprintf(w, "report: %s\n", filepath.Join(root, "cache", "report.json"))
	}
}
