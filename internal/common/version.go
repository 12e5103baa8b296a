package common

import (
	"os"
	"strings"
)

// Version info, set via ldflags at build time.
var (
	version   = "dev"
	build     = ""
	gitCommit = ""
)

// GetVersion returns the semantic version string.
func GetVersion() string {
	return version
}

// GetBuild returns the build identifier.
func GetBuild() string {
	return build
}

// GetGitCommit returns the git commit hash the binary was built from.
func GetGitCommit() string {
	return gitCommit
}

// LoadVersionFromFile reads .version as a fallback when ldflags were not set.
func LoadVersionFromFile() {
	if version != "dev" {
		return
	}
	data, err := os.ReadFile(".version")
	if err != nil {
		return
	}
	if v := strings.TrimSpace(string(data)); v != "" {
		version = v
	}
}
