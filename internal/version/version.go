// Package version reports the ruleforge build.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is set with -ldflags "-X .../internal/version.Version=v1.2.3".
// When empty the module version from build info is used.
var Version string

var readBuildInfo = debug.ReadBuildInfo

// Info about the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
}

// BuildVersion returns the release version, or "dev".
func BuildVersion() string {
	return Get().Version
}

func Get() Info {
	info := Info{Version: Version}

	bi, ok := readBuildInfo()
	if ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
		if info.Version == "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func (i Info) String() string {
	s := "ruleforge " + i.Version
	if i.Commit != "" {
		commit := i.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		if i.Modified {
			commit += "-dirty"
		}
		s += fmt.Sprintf(" (%s)", commit)
	}
	if i.GoVersion != "" {
		s += " " + i.GoVersion
	}
	return s
}
