package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (
	// Unknown is reported for build metadata that was neither linked in nor
	// recorded by the Go toolchain.
	Unknown = "unknown"
	// DevelopmentVersion is reported by local builds.
	DevelopmentVersion = "dev"
)

// Set at link time:
//
//	go build -ldflags="-X github.com/nimburion/adapter-registry/pkg/version.AppVersion=1.2.3"
var (
	AppVersion = DevelopmentVersion
	GitCommit  = ""
	BuildTime  = ""
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary. It is served on the management
// /version endpoint and sent to AWS as the application id.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

// Current returns the metadata of the running binary. Commit and build time
// come from the linker flags when set, otherwise from the VCS stamp the Go
// toolchain records.
func Current(serviceName string) Info {
	info := Info{
		Service:   orDefault(serviceName, Unknown),
		Version:   orDefault(AppVersion, DevelopmentVersion),
		Commit:    strings.TrimSpace(GitCommit),
		BuildTime: strings.TrimSpace(BuildTime),
		GoVersion: runtime.Version(),
	}

	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	info.Commit = orDefault(info.Commit, Unknown)
	info.BuildTime = orDefault(info.BuildTime, Unknown)
	return info
}

// ShortCommit returns the first 12 characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 12 && i.Commit != Unknown {
		return i.Commit[:12]
	}
	return i.Commit
}

// AppID returns the identifier sent to AWS in the user agent, e.g.
// "adapter-registry/1.4.0". AWS rejects app ids containing spaces.
func (i Info) AppID() string {
	return strings.ReplaceAll(i.Service+"/"+i.Version, " ", "-")
}

func (i Info) String() string {
	commit := i.ShortCommit()
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s@%s (commit=%s, built=%s, %s)", i.Service, i.Version, commit, i.BuildTime, i.GoVersion)
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
