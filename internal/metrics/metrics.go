// Package metrics serves the gateway's /metrics endpoint: the default registry
// (runtime, process and the observability vectors) plus a build-info gauge.
package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

// BuildInfoFromEnv takes the VCS fields from BUILD_REVISION, BUILD_BRANCH and BUILD_DATE.
func BuildInfoFromEnv(version string) BuildInfo {
	return BuildInfo{
		Version:   version,
		Revision:  os.Getenv("BUILD_REVISION"),
		Branch:    os.Getenv("BUILD_BRANCH"),
		BuildDate: os.Getenv("BUILD_DATE"),
	}
}

// Handler returns the scrape handler. The build gauge lives in a registry of its
// own, so handlers for different builds never collide on the default registry.
func Handler(build BuildInfo) http.Handler {
	if build.Version == "" {
		build.Version = "dev"
	}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simplewcs_build_info",
		Help: "Build info for this binary (value is always 1).",
		ConstLabels: prometheus.Labels{
			"version":    build.Version,
			"revision":   build.Revision,
			"branch":     build.Branch,
			"build_date": build.BuildDate,
		},
	})
	gauge.Set(1)

	reg := prometheus.NewRegistry()
	reg.MustRegister(gauge)
	return promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, reg},
		promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError},
	)
}
