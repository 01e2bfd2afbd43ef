package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devvault_build_info",
			Help: "Constant 1, labelled with the running binary's version, VCS revision and Go version.",
		},
		[]string{"version", "revision", "goversion"},
	)
)

// InitBuildInfo publishes devvault_build_info. A revision of "" or "dev"
// falls back to the vcs.revision stamped by the Go toolchain.
func InitBuildInfo(version, revision string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, resolveRevision(revision, debug.ReadBuildInfo), runtime.Version()).Set(1)
}

func resolveRevision(revision string, read func() (*debug.BuildInfo, bool)) string {
	if revision != "" && revision != "dev" {
		return revision
	}
	if info, ok := read(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	if revision == "" {
		return "unknown"
	}
	return revision
}
