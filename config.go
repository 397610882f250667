package pdfxref

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/coregx/pdfxref/logging"
)

// Config tunes the thresholds the resolver pipeline uses when a
// document's declared cross-reference data can't be trusted outright.
type Config struct {
	// EOFLookupRange bounds how many trailing bytes are scanned for
	// the last "startxref" keyword before giving up.
	EOFLookupRange int `yaml:"eof_lookup_range"`
	// MaxBruteForceMB is a size threshold in megabytes for brute-force
	// scanning. It is loaded and carried with the rest of the Config,
	// but Open does not consult it: brute-force recovery scans the
	// whole file whatever its size.
	MaxBruteForceMB int `yaml:"max_brute_force_mb"`
	// HeaderSearchSize bounds how many leading bytes are scanned for
	// the %PDF-/%FDF- header marker.
	HeaderSearchSize int `yaml:"header_search_size"`
}

// DefaultConfig returns the built-in thresholds, with no environment or
// file overrides applied.
func DefaultConfig() Config {
	return Config{
		EOFLookupRange:   2048,
		MaxBruteForceMB:  512,
		HeaderSearchSize: 1024,
	}
}

// envEOFLookupRange is checked by ApplyEnv and lets operators widen the
// trailer search window for PDFs with unusually large trailing
// metadata, without a config file.
const envEOFLookupRange = "EOF_LOOKUP_RANGE"

// ApplyEnv overlays environment-variable overrides onto c, returning the
// result. An invalid (non-numeric or non-positive) value is logged as a warning and
// ignored rather than treated as fatal, since a malformed environment
// should not prevent opening a document with otherwise-sane defaults.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv(envEOFLookupRange); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EOFLookupRange = n
		} else {
			logging.Logger().Warn("ignoring invalid EOF_LOOKUP_RANGE", "value", v)
		}
	}
	return c
}

// LoadConfigFile reads a YAML config file and overlays it onto
// DefaultConfig, then applies environment overrides (which always take
// precedence over the file, matching the usual operator expectation
// that an env var set for one run wins over a checked-in file).
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("pdfxref: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("pdfxref: parsing config %s: %w", path, err)
	}
	return cfg.ApplyEnv(), nil
}
