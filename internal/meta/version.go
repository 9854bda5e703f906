package meta

import (
	"fmt"
	"runtime"
	"strings"
)

// Info describes the build context of a respkv binary. Everything except the
// platform and Go version is injected by the linker, see the vars below.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag, e.g.
//
//	go build -ldflags "-X github.com/luma/respkv/internal/meta.Version=v1.2.0"
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   orUnknown(Version),
		Build:     orUnknown(Build),
		Branch:    orUnknown(Branch),
		BuildTime: orUnknown(BuildTimeUTC),
		GoTag:     GoTag,
		Platform:  platform,
	}
}

func (i Info) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "respkv %s\n", i.Version)
	fmt.Fprintf(&sb, "  build:    %s (%s)\n", i.Build, i.Branch)
	fmt.Fprintf(&sb, "  built at: %s\n", i.BuildTime)
	fmt.Fprintf(&sb, "  go:       %s %s", i.GoVersion, i.Platform)

	if i.GoTag != "" {
		fmt.Fprintf(&sb, "\n  tags:     %s", i.GoTag)
	}

	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
