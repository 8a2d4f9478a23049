// Package version reports which build of findash is running.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set via -ldflags "-X findash/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// numericModules are the dependencies whose versions can change computed
// figures, so they are reported alongside the build
var numericModules = []string{
	"gonum.org/v1/gonum",
	"github.com/shopspring/decimal",
}

// Info describes the running build
type Info struct {
	Version   string            `json:"version"`
	BuildTime string            `json:"build_time"`
	GoVersion string            `json:"go_version"`
	Revision  string            `json:"revision,omitempty"`
	Modified  bool              `json:"modified"`
	Libraries map[string]string `json:"libraries,omitempty"`
}

// Get returns the current build information
func Get() Info {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return Info{Version: Version, BuildTime: BuildTime}
	}
	return fromBuildInfo(bi)
}

func fromBuildInfo(bi *debug.BuildInfo) Info {
	info := Info{
		Version:   Version,
		BuildTime: BuildTime,
		GoVersion: bi.GoVersion,
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}

	for _, dep := range bi.Deps {
		for _, path := range numericModules {
			if dep.Path != path {
				continue
			}
			if info.Libraries == nil {
				info.Libraries = make(map[string]string)
			}
			info.Libraries[path] = dep.Version
		}
	}

	return info
}

// ShortRevision is the first eight characters of the commit hash
func (i Info) ShortRevision() string {
	if len(i.Revision) > 8 {
		return i.Revision[:8]
	}
	return i.Revision
}

// String formats the build as "findash 1.2.0 (01234567+dirty, go1.25)"
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "findash %s", i.Version)

	var meta []string
	if rev := i.ShortRevision(); rev != "" {
		if i.Modified {
			rev += "+dirty"
		}
		meta = append(meta, rev)
	}
	if i.BuildTime != "unknown" && i.BuildTime != "" {
		meta = append(meta, "built "+i.BuildTime)
	}
	if i.GoVersion != "" {
		meta = append(meta, i.GoVersion)
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(meta, ", "))
	}
	return b.String()
}

// UserAgent identifies findash tools in outgoing requests
func (i Info) UserAgent() string {
	if rev := i.ShortRevision(); rev != "" {
		return "findash/" + i.Version + "+" + rev
	}
	return "findash/" + i.Version
}

// Check returns a warning for builds that cannot be traced to a commit,
// or "" otherwise
func (i Info) Check() string {
	if i.Modified {
		return "binary built from a modified source tree"
	}
	if i.Revision == "" && i.Version == "dev" {
		return "development build without version control information"
	}
	return ""
}
