package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/mipscan/internal/domain"
)

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_ConfigMissingPath(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "mipscan.json"), []byte(`{"workers":2}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
}

func TestLoadEffective_BadRoot(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "mipscan.json"), []byte(`{"path":"missing"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeBadRoot {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeBadRoot, err, Code(err))
	}
}

func TestLoadEffective_CLIPath_ConfigOptional(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "textures")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	eff, err := LoadEffective(cwd, CLIArgs{Path: "textures"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != root {
		t.Fatalf("期望 path=%q，实际=%q", root, eff.Path)
	}
	if eff.Workers != DefaultWorkers {
		t.Fatalf("期望默认 workers=%d，实际=%d", DefaultWorkers, eff.Workers)
	}
	if eff.DefaultMode != DefaultMode {
		t.Fatalf("期望默认模式 %q，实际=%q", DefaultMode, eff.DefaultMode)
	}
	if !eff.Formats[".png"] || eff.Formats[".tga"] {
		t.Fatalf("默认 allow-list 异常：%v", eff.FormatList())
	}
	if !eff.Rules.Auto {
		t.Fatalf("期望默认开启词缀推断")
	}
}

func TestLoadEffective_ModeOverride(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "r")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	eff, err := LoadEffective(cwd, CLIArgs{Path: "r", Mode: "normal_map", ModeSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ModeOverride != domain.ModeNormalMap {
		t.Fatalf("期望 override=normal_map，实际=%q", eff.ModeOverride)
	}

	_, err = LoadEffective(cwd, CLIArgs{Path: "r", Mode: "hdr", ModeSet: true})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("非法模式期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_WorkersMergeAndClamp(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "r")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, "mipscan.json"), []byte(`{"workers":8}`))

	// config 生效。
	eff, err := LoadEffective(cwd, CLIArgs{Path: "r"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Workers != 8 {
		t.Fatalf("期望 workers=8，实际=%d", eff.Workers)
	}

	// CLI 覆盖 config，并截断到上限。
	eff2, err := LoadEffective(cwd, CLIArgs{Path: "r", Workers: 99, WorkersSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Workers != 32 {
		t.Fatalf("期望截断到 32，实际=%d", eff2.Workers)
	}
}

func TestLoadEffective_NoCachePrecedence(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "r")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, "mipscan.json"), []byte(`{"no_cache":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{Path: "r"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.NoCache {
		t.Fatalf("期望 config 的 no_cache=true 生效")
	}

	// CLI 显式 --no-cache=false 必须能压过 config。
	eff2, err := LoadEffective(cwd, CLIArgs{Path: "r", NoCache: false, NoCacheSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.NoCache {
		t.Fatalf("期望 CLI 覆盖为 false")
	}
}

func TestLoadEffective_AffixTableOverride(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "r")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, "mipscan.json"),
		[]byte(`{"affixes":{"normal_map":["_nm"]},"auto_mode":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{Path: "r"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 覆盖是整表语义：只剩 normal_map 一项。
	if len(eff.Rules.Affixes) != 1 || len(eff.Rules.Affixes[domain.ModeNormalMap]) != 1 {
		t.Fatalf("词缀表覆盖异常：%+v", eff.Rules.Affixes)
	}

	writeFile(t, filepath.Join(root, "mipscan.json"), []byte(`{"affixes":{"hdr":["_x"]}}`))
	if _, err := LoadEffective(cwd, CLIArgs{Path: "r"}); Code(err) != ErrCodeInvalid {
		t.Fatalf("非法模式键期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_BadFormatsFatal(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "r")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, "mipscan.json"), []byte(`{"formats":["png"]}`))

	_, err := LoadEffective(cwd, CLIArgs{Path: "r"})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("无点扩展名期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_FileMode(t *testing.T) {
	cwd := t.TempDir()
	f := filepath.Join(cwd, "t.png")
	writeFile(t, f, []byte("x"))

	eff, err := LoadEffective(cwd, CLIArgs{Path: "t.png", FileMode: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.FileMode || eff.Path != f {
		t.Fatalf("file 模式解析异常：%+v", eff)
	}

	// file 模式不给路径是配置错误。
	if _, err := LoadEffective(cwd, CLIArgs{FileMode: true}); Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
	}

	// file 模式指向目录是坏根。
	if _, err := LoadEffective(cwd, CLIArgs{Path: ".", FileMode: true}); Code(err) != ErrCodeBadRoot {
		t.Fatalf("期望 %q，实际 err=%v", ErrCodeBadRoot, err)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
