package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func pngOnly() map[string]bool {
	return map[string]bool{".png": true, ".tga": true}
}

func TestScanImages_ExcludeCacheDir(t *testing.T) {
	root := t.TempDir()

	// 永久排除 cache/。
	touch(t, filepath.Join(root, "cache", "entries", "abc.json"))
	touch(t, filepath.Join(root, "cache", "x.png"))

	// 正常目录。
	touch(t, filepath.Join(root, "tex", "rock.png"))
	touch(t, filepath.Join(root, "tex", "readme.txt"))

	got, err := ScanImages(root, pngOnly(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个图像文件，实际 %d", len(got))
	}
	wantRel := filepath.Join("tex", "rock.png")
	if got[0].RelPath != wantRel {
		t.Fatalf("期望 rel=%q，实际=%q", wantRel, got[0].RelPath)
	}
}

func TestScanImages_ExcludeDirsFromConfig(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "wip", "a.png"))
	touch(t, filepath.Join(root, "final", "b.png"))

	got, err := ScanImages(root, pngOnly(), []string{"wip"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个图像文件，实际 %d", len(got))
	}
	wantRel := filepath.Join("final", "b.png")
	if got[0].RelPath != wantRel {
		t.Fatalf("期望 rel=%q，实际=%q", wantRel, got[0].RelPath)
	}
}

func TestScanImages_ExtCaseInsensitiveAndSorted(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "B.PNG"))
	touch(t, filepath.Join(root, "a.tga"))
	touch(t, filepath.Join(root, "c.jpg")) // 不在 allow-list

	got, err := ScanImages(root, pngOnly(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个图像文件，实际 %d", len(got))
	}
	if got[0].RelPath != "B.PNG" || got[1].RelPath != "a.tga" {
		t.Fatalf("期望按 RelPath 排序，实际 %q, %q", got[0].RelPath, got[1].RelPath)
	}
	if got[0].Ext != ".png" {
		t.Fatalf("期望 ext=.png，实际=%q", got[0].Ext)
	}
}

func TestScanImages_StatFieldsPopulated(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "t.png")
	if err := os.WriteFile(p, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	got, err := ScanImages(root, pngOnly(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个图像文件，实际 %d", len(got))
	}
	f := got[0]
	if f.Size != 10 || f.ModUnixNano == 0 || f.Base != "t" {
		t.Fatalf("stat 字段异常：%+v", f)
	}
	id := f.Identity()
	if id.Path != f.AbsPath || id.Size != f.Size || id.ModUnixNano != f.ModUnixNano {
		t.Fatalf("Identity 与扫描结果不一致：%+v", id)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
