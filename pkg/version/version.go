package version

import "runtime"

// These are set at build time with -ldflags "-X github.com/reportportal/service-api/pkg/version.gitCommit=..."
var (
	gitCommit = "unknown"
	buildDate = "unknown"
	version   = "5.x-dev"
)

// Info describes the build of the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func Get() Info {
	return Info{
		Version:   version,
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
