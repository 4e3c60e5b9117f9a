// Package config holds the explicit configuration value for a vektor database.
//
// A Config is built once at process start (Default, Load, ApplyEnv) and passed
// by value into every component constructor. Nothing in the engine reads
// configuration from globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Fixed layout sizes shared by every store.
const (
	// ExternalIDSize is the NUL-padded width of an external id on disk.
	ExternalIDSize = 36
	// GraphHeaderSize is entryPoint:i32 + totalNodes:i32.
	GraphHeaderSize = 8
	// IndexRowSize is key(36) + value(4) + payloadOffset(8) + payloadLength(4) + left(4) + right(4).
	IndexRowSize = ExternalIDSize + 4 + 8 + 4 + 4 + 4
)

// File names inside DataDir.
const (
	VectorFileName  = "vector.bin"
	GraphFileName   = "graph.bin"
	IndexFileName   = "meta.bin"
	PayloadFileName = "payload.bin"
	LockFileName    = "db.lock"

	TempSuffix   = ".tmp"
	BackupSuffix = ".bak"
)

// Config configures storage layout, graph parameters and the process surface.
type Config struct {
	// DataDir is the directory holding all store files and the lock file.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	// Dimension is the fixed number of float32 components per vector.
	Dimension int `yaml:"dimension" envconfig:"DIMENSION"`

	// M is the maximum number of neighbors on levels 1..Levels-1.
	M int `yaml:"m" envconfig:"HNSW_M"`
	// M0 is the maximum number of neighbors on level 0.
	M0 int `yaml:"m0" envconfig:"HNSW_M0"`
	// Levels is the number of graph levels (levels are numbered 0..Levels-1).
	Levels int `yaml:"levels" envconfig:"HNSW_LEVELS"`
	// EfConstruction is the beam width used while searching for the
	// neighbors of a node being inserted. It is independent of M.
	EfConstruction int `yaml:"ef_construction" envconfig:"HNSW_EF_CONSTRUCTION"`

	// SearchOversample is added to k when asking the graph for candidates,
	// so tombstoned hits can be dropped without starving the result.
	SearchOversample int `yaml:"search_oversample" envconfig:"SEARCH_OVERSAMPLE"`
	// MinSearchEf is the lower bound of the query-time beam width.
	MinSearchEf int `yaml:"min_search_ef" envconfig:"MIN_SEARCH_EF"`

	HTTPAddr  string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	APIToken  string `yaml:"api_token" envconfig:"API_TOKEN"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// Default returns the reference configuration: 1536-dimensional vectors,
// M=16, M0=32, four levels and a construction beam of 100.
func Default() Config {
	return Config{
		DataDir:          "data",
		Dimension:        1536,
		M:                16,
		M0:               32,
		Levels:           4,
		EfConstruction:   100,
		SearchOversample: 20,
		MinSearchEf:      50,
		HTTPAddr:         ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads a YAML configuration file on top of the defaults.
// Environment references (${VAR}) are expanded before decoding and unknown
// fields are rejected. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays VEKTOR_* environment variables onto cfg.
// Unset variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process("VEKTOR", cfg); err != nil {
		return fmt.Errorf("invalid VEKTOR_* environment: %w", err)
	}
	return nil
}

// Validate checks that the configuration describes a usable layout.
func (c Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("data_dir cannot be empty")
	case c.Dimension <= 0:
		return fmt.Errorf("dimension must be positive (got %d)", c.Dimension)
	case c.M <= 0:
		return fmt.Errorf("m must be positive (got %d)", c.M)
	case c.M0 <= 0:
		return fmt.Errorf("m0 must be positive (got %d)", c.M0)
	case c.Levels < 1 || c.Levels > 255:
		return fmt.Errorf("levels must be between 1 and 255 (got %d)", c.Levels)
	case c.EfConstruction <= 0:
		return fmt.Errorf("ef_construction must be positive (got %d)", c.EfConstruction)
	case c.SearchOversample < 0:
		return fmt.Errorf("search_oversample cannot be negative (got %d)", c.SearchOversample)
	case c.MinSearchEf < 0:
		return fmt.Errorf("min_search_ef cannot be negative (got %d)", c.MinSearchEf)
	}
	return nil
}

// VectorRowSize is flag(1) + externalId(36) + Dimension float32 values.
func (c Config) VectorRowSize() int {
	return 1 + ExternalIDSize + 4*c.Dimension
}

// GraphNodeSize is maxLevel(1) + M0 level-0 slots + M slots for each upper level.
func (c Config) GraphNodeSize() int {
	return 1 + 4*c.M0 + 4*c.M*(c.Levels-1)
}

// Paths names the four store files of one database generation.
type Paths struct {
	Vectors  string
	Graph    string
	Index    string
	Payloads string
}

// All returns the paths in a fixed order.
func (p Paths) All() []string {
	return []string{p.Vectors, p.Graph, p.Index, p.Payloads}
}

// WithSuffix returns the same paths with suffix appended to each.
func (p Paths) WithSuffix(suffix string) Paths {
	return Paths{
		Vectors:  p.Vectors + suffix,
		Graph:    p.Graph + suffix,
		Index:    p.Index + suffix,
		Payloads: p.Payloads + suffix,
	}
}

// Paths returns the active store paths inside DataDir.
func (c Config) Paths() Paths {
	return Paths{
		Vectors:  filepath.Join(c.DataDir, VectorFileName),
		Graph:    filepath.Join(c.DataDir, GraphFileName),
		Index:    filepath.Join(c.DataDir, IndexFileName),
		Payloads: filepath.Join(c.DataDir, PayloadFileName),
	}
}

// LockPath returns the advisory lock file path.
func (c Config) LockPath() string {
	return filepath.Join(c.DataDir, LockFileName)
}
