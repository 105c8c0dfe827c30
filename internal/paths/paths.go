// Package paths resolves repository-relative paths and the locations of
// isg's on-disk state.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirName is the per-repository state directory.
	StateDirName = ".isg"
	// DatabaseFileName is the SQLite database inside the state directory.
	DatabaseFileName = "isg.db"
	// ConfigFileName is the config file inside the state directory.
	ConfigFileName = "config.toml"
)

// FolderAt truncates the directory of a repo-relative file path to its
// first depth components. Files at the root, and any depth below 1, map to
// ".".
func FolderAt(relPath string, depth int) string {
	if depth < 1 {
		return "."
	}
	dir := strings.Trim(filepath.ToSlash(filepath.Dir(filepath.FromSlash(relPath))), "/")
	if dir == "." || dir == "" {
		return "."
	}
	parts := strings.Split(dir, "/")
	if len(parts) > depth {
		parts = parts[:depth]
	}
	return strings.Join(parts, "/")
}

// CanonicalizePath converts an absolute path to a repo-relative path with
// forward slashes. Symlinks are resolved when the target exists.
func CanonicalizePath(absolutePath string, repoRoot string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		resolved = absolutePath
	}

	rootResolved, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		rootResolved = repoRoot
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinRepo checks if a path is within the repository root
func IsWithinRepo(path string, repoRoot string) bool {
	canonical, err := CanonicalizePath(path, repoRoot)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// JoinRepoPath joins a repo root with a canonical (slash separated) path.
func JoinRepoPath(repoRoot string, canonicalPath string) string {
	parts := strings.Split(strings.ReplaceAll(canonicalPath, "\\", "/"), "/")
	return filepath.Join(append([]string{repoRoot}, parts...)...)
}

// StateDir returns <repoRoot>/.isg
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, StateDirName)
}

// DatabasePath returns <repoRoot>/.isg/isg.db
func DatabasePath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), DatabaseFileName)
}

// ConfigPath returns <repoRoot>/.isg/config.toml
func ConfigPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), ConfigFileName)
}

// LogPath returns <repoRoot>/.isg/logs/isg.log
func LogPath(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "logs", "isg.log")
}

// EnsureStateDir creates the state directory (and logs/) if needed.
func EnsureStateDir(repoRoot string) (string, error) {
	dir := StateDir(repoRoot)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// FindRepoRoot walks up from start until it finds a directory holding
// .isg or .git. It returns start itself when neither is found.
func FindRepoRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	dir := abs
	for {
		for _, marker := range []string{StateDirName, ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}
