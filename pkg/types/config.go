// Package types defines the Value variant, record descriptors, model limits,
// standard errors, and configuration for the Larder storage system.
// See docs/ARCHITECTURE.md § System Components.
package types

import "errors"

// Config holds parameters for opening a store.
type Config struct {
	// DataDir is the directory holding the database file. Created if
	// missing. Empty means the current directory.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DatabaseFile is the database file name inside DataDir.
	DatabaseFile string `json:"database_file" yaml:"database_file"`

	// BusyTimeoutMS bounds the wait on a locked database before a statement
	// fails. Zero selects the default.
	BusyTimeoutMS int `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// AccessTTLSeconds bounds how long per-row access timestamps are kept
	// for LRU/MRU eviction. Zero selects the default.
	AccessTTLSeconds int `json:"access_ttl_seconds" yaml:"access_ttl_seconds"`
}

// Defaults applied by Normalize.
const (
	DefaultDatabaseFile  = "larder.db"
	DefaultBusyTimeoutMS = 5000
	DefaultAccessTTL     = 3600
)

// Config validation errors.
var (
	ErrBusyTimeoutInvalid = errors.New("busy timeout must not be negative")
	ErrAccessTTLInvalid   = errors.New("access TTL must not be negative")
)

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.BusyTimeoutMS < 0 {
		return ErrBusyTimeoutInvalid
	}
	if c.AccessTTLSeconds < 0 {
		return ErrAccessTTLInvalid
	}
	return nil
}

// Normalize returns a copy with defaults filled in.
func (c Config) Normalize() Config {
	if c.DatabaseFile == "" {
		c.DatabaseFile = DefaultDatabaseFile
	}
	if c.BusyTimeoutMS == 0 {
		c.BusyTimeoutMS = DefaultBusyTimeoutMS
	}
	if c.AccessTTLSeconds == 0 {
		c.AccessTTLSeconds = DefaultAccessTTL
	}
	return c
}
