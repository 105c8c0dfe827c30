// Package version holds the build stamp of the isg binary.
package version

// Release builds stamp these through the linker, for example
//
//	-ldflags "-X isg/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.9.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the one-line form logged when the watcher starts. A full commit
// hash is cut to seven characters.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full is what isg --version prints.
func Full() string {
	return "isg version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
