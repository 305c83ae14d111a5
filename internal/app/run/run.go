package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/John-Robertt/mipscan/internal/codec"
	"github.com/John-Robertt/mipscan/internal/config"
	"github.com/John-Robertt/mipscan/internal/domain"
	"github.com/John-Robertt/mipscan/internal/infra/cache"
	"github.com/John-Robertt/mipscan/internal/modeinfer"
	"github.com/John-Robertt/mipscan/internal/pyramid"
	"github.com/John-Robertt/mipscan/internal/scan"
)

// ExecuteScan 对扫描根跑一次批量分析，返回对外稳定的 ScanReport。
// 该函数尽量把错误“降级”为 item 级失败（单个文件失败不影响其他）。
func ExecuteScan(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.ScanReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.ScanReport{
		Root:      eff.Path,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	store := openStore(eff)
	rr.CacheDegraded = store.Degraded

	scanStarted := time.Now()
	files, err := scan.ScanImages(eff.Path, eff.Formats, eff.ExcludeDirs)
	if err != nil {
		rr.Items = append(rr.Items, domain.ItemResult{
			Status:    domain.StatusFailed,
			ErrorCode: domain.ErrCodeIOFailed,
			ErrorMsg:  fmt.Sprintf("扫描失败：%v", err),
		})
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	scanDur := time.Since(scanStarted)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, scanDur)
		if store.Degraded {
			// 缓存目录不可用：只警告一次，整个会话退化为仅内存缓存。
			obs.OnPhaseDone("cache_degraded", map[string]any{"files": len(files)}, 0)
		}
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     eff.Workers,
			"total_items": len(files),
		}, 0)
	}

	// 执行阶段：按文件并发（worker pool），单文件内串行。
	// 取消只在文件边界生效：已入队的文件会收尾，未入队的不再投喂，
	// 缓存条目要么完整写入要么没有。
	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.ImageFile)
	results := make(chan execResult, len(files))

	var cacheWriteErrs atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < eff.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				oneStarted := time.Now()
				r := execOne(eff, store, f, &cacheWriteErrs)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
	feed:
		for _, f := range files {
			// 先查一次取消：select 在两个分支都就绪时是随机的，
			// 已取消的上下文不该再投喂任何文件。
			if ctx.Err() != nil {
				break
			}
			select {
			case jobs <- f:
			case <-ctx.Done():
				break feed
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnItemDone(done, len(files), it.res, it.dur)
		}
	}

	if obs != nil && cacheWriteErrs.Load() > 0 {
		obs.OnPhaseDone("cache_write_errors", map[string]any{
			"errors": int(cacheWriteErrs.Load()),
		}, 0)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// ExecuteFile 分析单个文件，报表只有一条 item，携带完整逐层 profile。
func ExecuteFile(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.ScanReport {
	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.ScanReport{
		Root:      filepath.Dir(eff.Path),
		StartedAt: started,
	}

	store := openStore(eff)
	rr.CacheDegraded = store.Degraded

	it := domain.ItemResult{Path: eff.Path, Status: domain.StatusFailed}
	if ctx.Err() != nil {
		it.ErrorCode = domain.ErrCodeIOFailed
		it.ErrorMsg = "已取消"
	} else if fi, err := os.Stat(eff.Path); err != nil {
		it.ErrorCode = domain.ErrCodeIOFailed
		it.ErrorMsg = err.Error()
	} else {
		f := domain.ImageFile{
			AbsPath:     eff.Path,
			RelPath:     eff.Path,
			Base:        trimExt(filepath.Base(eff.Path)),
			Ext:         filepath.Ext(eff.Path),
			Size:        fi.Size(),
			ModUnixNano: fi.ModTime().UnixNano(),
		}
		var cacheWriteErrs atomic.Int64
		oneStarted := time.Now()
		it = execOne(eff, store, f, &cacheWriteErrs)
		if obs != nil {
			obs.OnItemDone(1, 1, it, time.Since(oneStarted))
		}
	}

	rr.Items = []domain.ItemResult{it}
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// openStore 按配置打开缓存：扫描根（或文件所在目录）下的 cache/；
// --no-cache 走仅内存模式。
func openStore(eff config.EffectiveConfig) *cache.Store {
	if eff.NoCache {
		return cache.Open("")
	}
	root := eff.Path
	if eff.FileMode {
		root = filepath.Dir(eff.Path)
	}
	return cache.Open(filepath.Join(root, "cache"))
}

// execOne 跑单个文件的完整管线。所有失败都收敛为 item 状态，绝不 panic/中断。
func execOne(eff config.EffectiveConfig, store *cache.Store, f domain.ImageFile, writeErrs *atomic.Int64) domain.ItemResult {
	it := domain.ItemResult{Path: f.RelPath}

	mode := resolveMode(eff, f.Base+f.Ext)
	it.Mode = mode

	if e, ok := store.Get(f.Identity(), mode); ok {
		it.Status = domain.StatusProcessed
		it.CacheHit = true
		it.Width = e.Width
		it.Height = e.Height
		it.HasAlpha = e.HasAlpha
		it.Mip0Density = e.Profile.Mip0()
		if eff.FileMode {
			p := e.Profile
			it.Profile = &p
		}
		return it
	}

	tex, err := codec.Decode(f.AbsPath)
	if err != nil {
		it.Status = domain.StatusFailed
		it.ErrorCode = domain.ErrCodeDecodeFailed
		it.ErrorMsg = err.Error()
		return it
	}
	it.Width = tex.Top.W
	it.Height = tex.Top.H
	it.HasAlpha = tex.HasAlpha

	chain, err := codec.BuildMipChain(tex.Top)
	if err != nil {
		// 尺寸不合门槛：批量扫描静默跳过，单文件模式算失败（用户点名要它）。
		it.Status = domain.StatusSkipped
		if eff.FileMode {
			it.Status = domain.StatusFailed
		}
		it.ErrorCode = domain.ErrCodeInvalidMipChain
		it.ErrorMsg = err.Error()
		return it
	}

	profile, err := pyramid.Analyze(chain, mode)
	if err != nil {
		it.Status = domain.StatusFailed
		if errors.Is(err, pyramid.ErrUnsupportedChannels) {
			it.ErrorCode = domain.ErrCodeUnsupportedChannels
		} else {
			it.ErrorCode = domain.ErrCodeInvalidMipChain
		}
		it.ErrorMsg = err.Error()
		return it
	}

	// 身份取解码时的 stat：扫描与解码之间文件若被改写，条目跟新内容走。
	if err := store.Put(cache.Entry{
		Identity: tex.Identity,
		Mode:     mode,
		Width:    tex.Top.W,
		Height:   tex.Top.H,
		HasAlpha: tex.HasAlpha,
		Profile:  profile,
	}); err != nil {
		writeErrs.Add(1)
	}

	it.Status = domain.StatusProcessed
	it.Mip0Density = profile.Mip0()
	if eff.FileMode {
		it.Profile = &profile
	}
	return it
}

// resolveMode 决定一个文件用什么模式：
// 显式覆盖 > 词缀推断 > 回退。
// 批量扫描的回退是 Average，且推断出的 PerChannel 也折到 Average
// （排行需要单一标量，旧工具的批量行为相同）；
// 单文件分析尊重推断结果，落空才用配置的默认模式。
func resolveMode(eff config.EffectiveConfig, filename string) domain.AnalysisMode {
	if eff.ModeOverride != "" {
		return eff.ModeOverride
	}
	mode, hit := modeinfer.Infer(filename, eff.Rules)
	if eff.FileMode {
		if hit {
			return mode
		}
		return eff.DefaultMode
	}
	if !hit || mode == domain.ModePerChannel {
		return domain.ModeAverage
	}
	return mode
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
