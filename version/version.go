package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Set by -ldflags.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const unknown = "unknown"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

var buildInfo = sync.OnceValue(func() Info {
	info := Info{Version: "development", Commit: unknown, Date: unknown}
	bi, ok := debug.ReadBuildInfo()
	if ok {
		info.GoVersion = bi.GoVersion
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.Date = s.Value
			}
		}
	}
	return info
})

// Get returns the build information, preferring values set by -ldflags.
func Get() Info {
	info := buildInfo()
	if Version != "" {
		info.Version = Version
	}
	if Commit != "" {
		info.Commit = Commit
	}
	if Date != "" {
		info.Date = Date
	}
	return info
}

// GetVersion returns just the version.
func GetVersion() string {
	return Get().Version
}

// GetFullVersion returns the version with the short commit and build date
// when they are known, e.g. "v1.2.0 (abc1234, built 2024-03-05T14:30:00Z)".
func GetFullVersion() string {
	return Get().String()
}

func (i Info) String() string {
	if i.Commit == unknown {
		return i.Version
	}
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if i.Date == unknown {
		return fmt.Sprintf("%s (%s)", i.Version, commit)
	}
	return fmt.Sprintf("%s (%s, built %s)", i.Version, commit, i.Date)
}
