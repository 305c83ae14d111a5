// Package cache 提供跨会话的分析结果缓存：
// 磁盘上每个键一个 JSON 条目文件（原子覆盖写），前面挡一层有界 LRU。
//
// 约束：
// - 命中要求文件身份（size+mtime）与模式都精确一致，否则就是 miss
// - 同键写串行（分段锁），不同键可并发；读共享
// - 条目只做整体替换，永远不存在半写状态（fsx 原子写保证）
// - 磁盘不可用时退化为仅内存缓存，警告一次，继续运行
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/John-Robertt/mipscan/internal/domain"
	"github.com/John-Robertt/mipscan/internal/infra/fsx"
)

const (
	entriesDir = "entries"
	// memEntries 限制内存层的体量；profile 很小，数千条也只是零头。
	memEntries = 4096
	// lockStripes 是按键分段的写锁数量。
	lockStripes = 64
)

// Entry 是磁盘与内存共用的缓存条目。整条替换，不做字段级修补。
// 尺寸与 alpha 跟着 profile 一起存：命中时报表/CSV 不必重新解码。
type Entry struct {
	Identity domain.FileIdentity   `json:"identity"`
	Mode     domain.AnalysisMode   `json:"mode"`
	Width    int                   `json:"width"`
	Height   int                   `json:"height"`
	HasAlpha bool                  `json:"has_alpha"`
	Profile  domain.DensityProfile `json:"profile"`
}

// Store 是结果缓存。零值不可用，必须经 Open 构造。
type Store struct {
	dir string // 条目目录；"" 表示仅内存模式
	mem *lru.Cache[string, Entry]

	locks [lockStripes]chanLock

	// Degraded 表示磁盘层不可用（目录建不起来）。调用方据此警告一次。
	Degraded bool
}

// chanLock 是容量 1 的信号量；比 sync.Mutex 多一个好处是
// 未来需要时可以带超时/取消获取。
type chanLock chan struct{}

// Open 打开（必要时创建）root 下的缓存。
// root 为空直接进入仅内存模式（--no-cache 的实现路径）；
// 目录创建失败同样退化为仅内存并置 Degraded，绝不让缓存故障挡住分析。
func Open(root string) *Store {
	s := &Store{}
	for i := range s.locks {
		s.locks[i] = make(chanLock, 1)
	}
	// 内存层构造只会在 size<=0 时失败，这里是常量。
	s.mem, _ = lru.New[string, Entry](memEntries)

	root = strings.TrimSpace(root)
	if root == "" {
		return s
	}
	dir := filepath.Join(filepath.Clean(root), entriesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.Degraded = true
		return s
	}
	s.dir = dir
	return s
}

// Get 查询缓存。命中条件：身份精确一致且模式一致。
// 损坏/不可读的条目一律当作 miss（启动时不会因脏缓存而失败）。
func (s *Store) Get(id domain.FileIdentity, mode domain.AnalysisMode) (Entry, bool) {
	k := key(id.Path)

	if e, ok := s.mem.Get(k); ok && e.matches(id, mode) {
		return e, true
	}
	if s.dir == "" {
		return Entry{}, false
	}

	b, err := os.ReadFile(filepath.Join(s.dir, k+".json"))
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false
	}
	if !e.Profile.Valid() || !e.matches(id, mode) {
		return Entry{}, false
	}
	s.mem.Add(k, e)
	return e, true
}

// Put 整条写入（覆盖该键的旧条目）。
// 写路径只在本键的分段锁内做读-改-写，绝不在整个扫描期间锁整个缓存。
// 磁盘写失败不算致命：内存层照常更新，错误返回给调用方记一次日志。
func (s *Store) Put(e Entry) error {
	k := key(e.Identity.Path)

	l := s.locks[stripe(k)]
	l <- struct{}{}
	defer func() { <-l }()

	s.mem.Add(k, e)
	if s.dir == "" {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(s.dir, k+".json", b)
}

func (e Entry) matches(id domain.FileIdentity, mode domain.AnalysisMode) bool {
	return e.Identity == id && e.Mode == mode
}

// key 把绝对路径折叠为稳定的条目文件名。
// 已知局限：键只含路径，身份校验在条目内部完成；
// size+mtime 都未变的内容替换检测不出来（见 DESIGN.md）。
func key(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:16])
}

func stripe(k string) int {
	// 键已是均匀哈希的 hex，取前两个字符够分散。
	return (int(k[0])<<8 | int(k[1])) & (lockStripes - 1)
}
