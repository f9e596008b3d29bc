// Package debug is a tag-gated logger modeled on restic's
// internal/debug: silent unless enabled via environment variables, so
// that normal operation pays no logging cost.
package debug

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

var (
	once    sync.Once
	logger  *log.Logger
	enabled bool
	tags    map[string]bool
)

func init() {
	once.Do(initDebug)
}

func initDebug() {
	if file := os.Getenv("DEDUPFS_DEBUG_LOG"); file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dedupfs: unable to open debug log %q: %v\n", file, err)
		} else {
			logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
		}
	}

	tags = make(map[string]bool)
	if raw := os.Getenv("DEDUPFS_DEBUG_TAGS"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags[t] = true
			}
		}
	}

	enabled = logger != nil || len(tags) > 0
	if enabled && logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	}
}

// Enabled reports whether any debug output is configured.
func Enabled() bool { return enabled }

// Log writes a tagged debug line when tag is enabled, or unconditionally
// when no tags were configured (i.e. DEDUPFS_DEBUG_LOG alone was set).
func Log(tag, format string, args ...interface{}) {
	if !enabled {
		return
	}
	if len(tags) > 0 && !tags[tag] && !tags["all"] {
		return
	}
	logger.Printf("["+tag+"] "+format, args...)
}
