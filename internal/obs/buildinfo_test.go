package obs

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResolveRevision(t *testing.T) {
	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs", Value: "git"},
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		}}, true
	}
	missing := func() (*debug.BuildInfo, bool) { return nil, false }

	cases := []struct {
		name     string
		revision string
		read     func() (*debug.BuildInfo, bool)
		want     string
	}{
		{"explicit wins", "abc123", stamped, "abc123"},
		{"dev uses vcs", "dev", stamped, "0123456789ab"},
		{"empty uses vcs", "", stamped, "0123456789ab"},
		{"dev without vcs", "dev", missing, "dev"},
		{"empty without vcs", "", missing, "unknown"},
	}
	for _, tc := range cases {
		if got := resolveRevision(tc.revision, tc.read); got != tc.want {
			t.Fatalf("%s: resolveRevision(%q) = %q, want %q", tc.name, tc.revision, got, tc.want)
		}
	}
}

func TestInitBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo("1.0.0", "aaaa")
	InitBuildInfo("1.0.1", "bbbb")

	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected a single build_info series, got %d", n)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("1.0.1", "bbbb", runtime.Version())); v != 1 {
		t.Fatalf("expected build_info=1 for the latest call, got %v", v)
	}
}
