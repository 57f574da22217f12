package version

import (
	"fmt"
	"strings"
)

// These variables are populated at build time using ldflags.
// Example: go build -ldflags "-X 'github.com/user00265/dxbridge/version.GitCommit=f80cf83' -X 'github.com/user00265/dxbridge/version.BuildVersion=1.0.0'" ./cmd/dxbridge
var (
	// ProjectName is the name of the project.
	ProjectName = "DXBridge"

	// ProjectGitHubURL is the GitHub repository URL.
	ProjectGitHubURL = "https://github.com/user00265/dxbridge"

	// BuildVersion is the semantic version of the build, "unknown" when not injected.
	BuildVersion = "unknown"

	// GitCommit is the short Git commit hash, "unknown" when not injected.
	GitCommit = "unknown"
)

// ProjectVersion is "X.Y.Z+COMMIT" when both build variables are set, otherwise "unknown".
var ProjectVersion = "unknown"

// UserAgent identifies the bridge in its /stats output and startup banner.
var UserAgent string

func init() {
	ProjectVersion = buildProjectVersion(BuildVersion, GitCommit)
	UserAgent = fmt.Sprintf("%s/%s (+%s)", ProjectName, ProjectVersion, ProjectGitHubURL)
}

func buildProjectVersion(build, commit string) string {
	if build == "unknown" || commit == "unknown" {
		return "unknown"
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s+%s", strings.TrimPrefix(build, "v"), commit)
}
