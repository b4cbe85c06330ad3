package session

import (
	"runtime"
	"strings"
)

// Normalize canonicalizes a source path so that breakpoint and launch requests
// naming the same file resolve to the same store key.
func Normalize(path string) string {
	return NormalizeFor(runtime.GOOS, path)
}

// NormalizeFor is Normalize for the given GOOS. Windows paths are
// case-folded; every platform gets forward slashes.
func NormalizeFor(goos, path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	if goos == "windows" {
		path = strings.ToLower(path)
	}
	return path
}
