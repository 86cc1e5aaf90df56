package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/dendrascience/geofs/geofs"
)

// Set with -ldflags "-X github.com/dendrascience/geofs/version.Version=..."
// and friends. Empty or placeholder values fall back to the module build
// info.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

const unknown = "unknown"

// Info describes the running binary and the volume format it writes.
type Info struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Date          string `json:"date"`
	Dirty         bool   `json:"dirty,omitempty"`
	Package       string `json:"package"`
	GoVersion     string `json:"go_version"`
	FormatVersion uint16 `json:"format_version"`
}

var buildInfo = sync.OnceValue(func() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
})

func vcsSetting(key string) string {
	info := buildInfo()
	if info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func pick(linked, placeholder, fallback, def string) string {
	switch {
	case linked != "" && linked != placeholder:
		return linked
	case fallback != "":
		return fallback
	}
	return def
}

// GetVersion returns the linked version, the module version, or
// "development".
func GetVersion() string {
	var mod string
	if info := buildInfo(); info != nil && info.Main.Version != "(devel)" {
		mod = info.Main.Version
	}
	return pick(Version, "dev", mod, "development")
}

// GetCommit returns the VCS revision the binary was built from.
func GetCommit() string {
	return pick(Commit, unknown, vcsSetting("vcs.revision"), unknown)
}

// GetBuildDate returns the commit or build time.
func GetBuildDate() string {
	return pick(Date, unknown, vcsSetting("vcs.time"), unknown)
}

// GetInfo gathers everything above into one value.
func GetInfo() Info {
	return Info{
		Version:       GetVersion(),
		Commit:        GetCommit(),
		Date:          GetBuildDate(),
		Dirty:         vcsSetting("vcs.modified") == "true",
		Package:       "geofs",
		GoVersion:     runtime.Version(),
		FormatVersion: geofs.Version,
	}
}

// GetFullVersion renders the version with a short commit and date, e.g.
// "v1.2.0 (3f2a9c1+dirty, built 2025-01-02T03:04:05Z)".
func GetFullVersion() string {
	return fullVersion(GetInfo())
}

func fullVersion(info Info) string {
	if info.Commit == unknown || len(info.Commit) <= 7 {
		return info.Version
	}
	rev := info.Commit[:7]
	if info.Dirty {
		rev += "+dirty"
	}
	if info.Date == unknown {
		return fmt.Sprintf("%s (%s)", info.Version, rev)
	}
	return fmt.Sprintf("%s (%s, built %s)", info.Version, rev, info.Date)
}

// PrintVersion writes a human readable version block for appName to w.
func PrintVersion(w io.Writer, appName string) {
	info := GetInfo()
	fmt.Fprintf(w, "%s version %s\n", appName, fullVersion(info))
	fmt.Fprintf(w, "Volume format: v%d\n", info.FormatVersion)
	fmt.Fprintf(w, "Go: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Commit: %s\n", info.Commit)
	fmt.Fprintf(w, "Build Date: %s\n", info.Date)
}
