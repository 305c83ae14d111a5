package domain

import (
	"testing"
	"time"
)

func TestScanReport_FinalizeOrderAndSummary(t *testing.T) {
	r := ScanReport{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Items: []ItemResult{
			{Path: "b.png", Status: StatusProcessed, Mip0Density: 2.0},
			{Path: "broken.png", Status: StatusFailed, ErrorCode: ErrCodeDecodeFailed},
			{Path: "a.png", Status: StatusProcessed, Mip0Density: 2.0},
			{Path: "c.png", Status: StatusProcessed, Mip0Density: 0.5},
			{Path: "odd.png", Status: StatusSkipped, ErrorCode: ErrCodeInvalidMipChain},
		},
	}
	r.Finalize()

	wantOrder := []string{"c.png", "a.png", "b.png", "odd.png", "broken.png"}
	for i, want := range wantOrder {
		if r.Items[i].Path != want {
			t.Fatalf("第 %d 条期望 %q，实际 %q", i, want, r.Items[i].Path)
		}
	}
	if r.Summary.Processed != 3 || r.Summary.Skipped != 1 || r.Summary.Failed != 1 {
		t.Fatalf("summary 不符：%+v", r.Summary)
	}
	if z, _ := r.StartedAt.Zone(); z != "UTC" {
		t.Fatalf("期望 UTC 时间，实际 zone=%q", z)
	}
}

func TestDensityProfile_Mip0(t *testing.T) {
	p := DensityProfile{Mode: ModePerChannel, Channels: 3, Levels: [][]float64{{3, 6, 9}, {1, 1, 1}}}
	if got := p.Mip0(); got != 6 {
		t.Fatalf("期望通道均值 6，实际 %v", got)
	}
	var empty DensityProfile
	if got := empty.Mip0(); got != 0 {
		t.Fatalf("空 profile 期望 0，实际 %v", got)
	}
}

func TestDensityProfile_Valid(t *testing.T) {
	good := DensityProfile{Mode: ModeLuminance, Channels: 1, Levels: [][]float64{{1}, {0}}}
	if !good.Valid() {
		t.Fatalf("期望合法")
	}
	bad := DensityProfile{Mode: ModeLuminance, Channels: 1, Levels: [][]float64{{-1}}}
	if bad.Valid() {
		t.Fatalf("负值应当非法")
	}
	mismatch := DensityProfile{Mode: ModePerChannel, Channels: 3, Levels: [][]float64{{1}}}
	if mismatch.Valid() {
		t.Fatalf("通道数不一致应当非法")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]AnalysisMode{
		"luminance":  ModeLuminance,
		" Average ":  ModeAverage,
		"PER_CHANNEL": ModePerChannel,
		"normal_map": ModeNormalMap,
	}
	for in, want := range cases {
		got, ok := ParseMode(in)
		if !ok || got != want {
			t.Fatalf("ParseMode(%q) = (%q,%v)，期望 %q", in, got, ok, want)
		}
	}
	if _, ok := ParseMode("hdr"); ok {
		t.Fatalf("未知模式不应通过")
	}
}

func TestIsMipMappable(t *testing.T) {
	cases := []struct {
		w, h int
		want bool
	}{
		{256, 256, true},
		{128, 64, true},
		{100, 128, false}, // 非 2 幂
		{2, 2, false},     // 过小
		{0, 64, false},
	}
	for _, c := range cases {
		if got := IsMipMappable(c.w, c.h); got != c.want {
			t.Fatalf("IsMipMappable(%d,%d)=%v，期望 %v", c.w, c.h, got, c.want)
		}
	}
}
