// pkg/version/version.go
// Package version provides version metadata for the application.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of llmfinder.
	Version = "dev"
	// Commit holds the current version commit of llmfinder.
	Commit = "none"
	// BuildDate holds the build date of llmfinder.
	BuildDate = "unknown"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Release   bool   `json:"release"`
}

// Info returns a formatted version string.
func Info() string {
	v := Get()
	return fmt.Sprintf("LLMFinder %s (commit: %s, date: %s, %s)", v.Version, v.Commit, v.BuildDate, v.GoVersion)
}

// Get returns version information as a Struct. A "dev" build installed via
// go install reports the module version recorded in the binary.
func Get() Struct {
	v := Version
	if v == "dev" {
		if bi, ok := readBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return Struct{
		Version:   v,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Release:   IsRelease(v),
	}
}

// IsRelease reports whether v is a semantic version without a prerelease
// suffix.
func IsRelease(v string) bool {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	return sv.Prerelease() == ""
}
