package version

import (
	"fmt"
	"runtime"
)

// Version information - using semantic versioning
const (
	Major      = 0
	Minor      = 3
	Patch      = 0
	PreRelease = "" // e.g., "alpha", "rc1"
)

// Set at build time with -ldflags "-X .../pkg/version.GitCommit=...".
var (
	GitCommit = ""
	BuildDate = ""
)

const serviceName = "teneo-tax-ledger"

// Version returns the semantic version string
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		v += "-" + PreRelease
	}
	return v
}

// BuildInfo is served by the /version endpoint.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Name:      serviceName,
		Version:   Version(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// UserAgent is sent with every upstream HTTP request.
func UserAgent() string {
	ua := serviceName + "/" + Version()
	if len(GitCommit) >= 7 {
		ua += " (" + GitCommit[:7] + ")"
	}
	return ua
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	if len(GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", Version(), GitCommit[:7])
	}
	return Version()
}
