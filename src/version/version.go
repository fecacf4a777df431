package version

// Flag contains extra info about the version, such as "rc1" or "develop". It
// must be empty on release builds.
const Flag = ""

var (
	// Version is the full version string
	Version = build("0.1.0", Flag, GitCommit)

	// GitCommit is set with --ldflags "-X github.com/mosaicnetworks/iterum/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func build(base, flag, commit string) string {
	v := base
	if flag != "" {
		v += "-" + flag
	}
	if len(commit) >= 8 {
		v += "-" + commit[:8]
	}
	return v
}
