// Package strings holds the few string helpers module wiring needs
package strings

import std "strings"

// MustString panics with "<name> is required" when s is blank
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// MustPrefix turns " sessions/ " into "/sessions". The bare root is rejected since
// module prefixes always name a subtree
func MustPrefix(s string) string {
	s = "/" + std.Trim(std.TrimSpace(s), " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}
