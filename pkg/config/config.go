// Package config holds the hybrid storage engine's dynamic configuration:
// the tunable index parameters spec §9 enumerates plus the ambient
// logging knobs every component shares.
//
// Adapted from the teacher's pkg/config/config.go Config/DefaultConfig/
// validateConfig/LoadConfig shape (JSON-tagged struct, a package-level
// default constructor, file-or-default loading, and a validation pass
// before the config is handed to the rest of the system), trimmed to the
// parameter set this engine actually has: the MySQL wire-protocol server,
// connection pool, and query cache sections are gone along with the
// teacher's network front end.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the full set of parameters governing one engine instance.
type Config struct {
	Index IndexConfig `json:"index"`
	Log   LogConfig   `json:"log"`
}

// IndexConfig holds the dynamic configuration options spec §9
// enumerates for the learned index and the vector index it sits beside.
type IndexConfig struct {
	// M is the number of neighbors an NSW node keeps per layer.
	M int `json:"m"`
	// EFConstruction is the candidate breadth used while inserting into
	// the NSW graph.
	EFConstruction int `json:"ef_construction"`
	// EFSearch is the configured candidate breadth for querying the NSW
	// graph. Validate checks it; the engine's query paths do not read it
	// (they use the per-table nsw.Params and the query's limit).
	EFSearch int `json:"ef_search"`
	// LMIFanout is the fixed fanout of the learned index's inner nodes.
	LMIFanout int `json:"lmi_fanout"`
	// LeafCapacity is the number of gapped slots in a learned-index leaf.
	LeafCapacity int `json:"leaf_capacity"`
	// DensityLow and DensityHigh bound the occupied/capacity ratio a leaf
	// is allowed to idle at and the ratio that triggers a split.
	DensityLow  float64 `json:"density_low"`
	DensityHigh float64 `json:"density_high"`
	// Quantize enables the 1-bit quantized shadow for vector columns that
	// opt into it.
	Quantize bool `json:"quantize"`
	// ExpansionFactor is the multiple of k that a quantized search gathers
	// as Hamming-distance candidates before reranking them on the dense
	// vectors.
	ExpansionFactor int `json:"expansion_factor"`
	// MaxDim is the largest vector dimension a vector column may declare.
	MaxDim int `json:"max_dim"`
}

// LogConfig controls the engine's structured logging output.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or text
}

// DefaultConfig returns a Config populated with the defaults spec §4.5
// and §9 name (M=48, ef_construction=200, ef_search=100).
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			M:               48,
			EFConstruction:  200,
			EFSearch:        100,
			LMIFanout:       32,
			LeafCapacity:    256,
			DensityLow:      0.30,
			DensityHigh:     0.90,
			Quantize:        false,
			ExpansionFactor: 3,
			MaxDim:          2048,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a JSON config file, falling back to DefaultConfig when
// path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault tries a handful of conventional locations (and the
// HYBRIDPG_CONFIG environment variable) before giving up and returning
// DefaultConfig.
func LoadConfigOrDefault() *Config {
	if envPath := os.Getenv("HYBRIDPG_CONFIG"); envPath != "" {
		if cfg, err := LoadConfig(envPath); err == nil {
			return cfg
		}
	}
	possiblePaths := []string{
		"config.json",
		"./config/config.json",
		"/etc/hybridpg/config.json",
	}
	for _, p := range possiblePaths {
		if abs, err := filepath.Abs(p); err == nil {
			if cfg, err := LoadConfig(abs); err == nil {
				return cfg
			}
		}
	}
	return DefaultConfig()
}

// Validate checks every field against the bounds spec §9 enumerates,
// returning the first violation found.
func (c Config) Validate() error {
	idx := c.Index
	if idx.M < 4 || idx.M > 256 {
		return fmt.Errorf("index.m must be in [4, 256], got %d", idx.M)
	}
	if idx.EFConstruction < idx.M {
		return fmt.Errorf("index.ef_construction (%d) must be >= index.m (%d)", idx.EFConstruction, idx.M)
	}
	if idx.EFSearch < 1 {
		return fmt.Errorf("index.ef_search must be >= 1, got %d", idx.EFSearch)
	}
	switch idx.LMIFanout {
	case 16, 32, 64, 128:
	default:
		return fmt.Errorf("index.lmi_fanout must be one of {16, 32, 64, 128}, got %d", idx.LMIFanout)
	}
	if idx.LeafCapacity < 32 || idx.LeafCapacity > 4096 {
		return fmt.Errorf("index.leaf_capacity must be in [32, 4096], got %d", idx.LeafCapacity)
	}
	if idx.DensityLow > 0.5 || idx.DensityHigh < 0.5 || idx.DensityHigh >= 1 {
		return fmt.Errorf("index density band must satisfy density_low <= 0.5 <= density_high < 1, got [%v, %v]", idx.DensityLow, idx.DensityHigh)
	}
	if idx.DensityLow < 0 {
		return fmt.Errorf("index.density_low must be >= 0, got %v", idx.DensityLow)
	}
	if idx.ExpansionFactor < 1 {
		return fmt.Errorf("index.expansion_factor must be >= 1, got %d", idx.ExpansionFactor)
	}
	if idx.MaxDim < 1 || idx.MaxDim > 65536 {
		return fmt.Errorf("index.max_dim must be in (0, 65536], got %d", idx.MaxDim)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	return nil
}
