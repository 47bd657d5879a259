package internal

import (
	"strings"
)

// RootFinder finds the top-level directory shared by every entry of an archive.
//
// Both `/` and `\` are accepted as separators since some ZIP writers on Windows use the latter. The zero value is ready
// to use.
type RootFinder struct {
	root   string
	noRoot bool
}

// Add adds the next entry name and reports whether there is still a common root.
//
// As soon as Add returns false, subsequent calls will also return false.
func (f *RootFinder) Add(name string) bool {
	if f.noRoot {
		return false
	}

	first, _, found := strings.Cut(strings.ReplaceAll(name, "\\", "/"), "/")
	switch {
	case !found:
		// this is a file at top level so there is no root for sure.
		f.noRoot, f.root = true, ""
	case f.root == "":
		f.root = first
	case f.root != first:
		f.noRoot, f.root = true, ""
	}

	return !f.noRoot
}

// Root returns the common root directory with a trailing slash, or an empty string if there is none.
func (f *RootFinder) Root() string {
	if f.noRoot || f.root == "" {
		return ""
	}

	return f.root + "/"
}
