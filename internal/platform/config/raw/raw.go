// Package raw reads environment variables without logging, so the logger can configure
// itself from the environment before anything else exists
package raw

import (
	"os"
	"strconv"
	"strings"
)

// Conf is a prefixed view of the environment
type Conf struct{ prefix string }

// New is the unprefixed view
func New() Conf { return Conf{} }

// Prefix narrows the view: New().Prefix("TURNSTILE_LOG_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) lookup(key string) string { return strings.TrimSpace(os.Getenv(c.prefix + key)) }

// Get returns the value, or def when unset or blank
func (c Conf) Get(key, def string) string {
	if v := c.lookup(key); v != "" {
		return v
	}
	return def
}

// GetBool accepts anything strconv.ParseBool does; junk yields def
func (c Conf) GetBool(key string, def bool) bool {
	v, err := strconv.ParseBool(c.lookup(key))
	if err != nil {
		return def
	}
	return v
}

// GetInt accepts non-negative integers; junk yields def
func (c Conf) GetInt(key string, def int) int {
	v, err := strconv.Atoi(c.lookup(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
