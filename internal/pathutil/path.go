// Package pathutil handles member paths as printed in archive listings.
// Listings created on Windows use backslash separators; both forms are
// accepted.
package pathutil

import "strings"

// Normalize converts backslash separators to slashes.
func Normalize(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// Base returns the last element of a member path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	path = Normalize(path)
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Ext returns the text after the last dot of the base name, without the
// dot. A base name without a dot is its own extension, so "README" and
// "LICENSE" stay distinct types.
func Ext(path string) string {
	base := Base(path)
	return base[strings.LastIndexByte(base, '.')+1:]
}
