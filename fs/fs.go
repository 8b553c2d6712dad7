package fs

import (
	"os"
	"path/filepath"
	"time"
)

// PathExists check
func PathExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return true
}

// DirExists check
func DirExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

// Realpath dereferences all symlinks in path and returns the absolute
// canonical path. If the path cannot be resolved (dangling link,
// missing file) the absolute form of the input is returned instead, so
// callers always get a usable map key.
func Realpath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return resolved
	}
	return abs
}

// MTime returns the modification time of path, zero value on error
func MTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// Rooted joins an absolute path from a config file with an alternate
// filesystem root.
func Rooted(root, path string) string {
	if root == "" || root == "/" {
		return path
	}
	if !filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
