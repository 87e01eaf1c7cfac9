// Package config loads runtime settings from defaults, an optional YAML file
// and ENKFCORE_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. The rest of the name is
// the key with dots replaced by underscores:
// ENKFCORE_BLOB_DRIVER -> blob.driver,
// ENKFCORE_CATALOG_SQLITE_PATH -> catalog.sqlite_path.
const EnvPrefix = "ENKFCORE_"

type Config struct {
	Log      Log      `koanf:"log"`
	Blob     Blob     `koanf:"blob"`
	Catalog  Catalog  `koanf:"catalog"`
	Ensemble Ensemble `koanf:"ensemble"`
	Metrics  Metrics  `koanf:"metrics"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, console
}

type Blob struct {
	Driver     string `koanf:"driver"` // fs, memory, s3, badger
	FSRoot     string `koanf:"fs_root"`
	BadgerPath string `koanf:"badger_path"`
	S3         S3     `koanf:"s3"`
}

type S3 struct {
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	PathStyle bool   `koanf:"path_style"`
}

type Catalog struct {
	Driver      string `koanf:"driver"` // memory, sqlite, postgres
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

type Ensemble struct {
	Size    int   `koanf:"size"`
	Workers int   `koanf:"workers"`
	Seed    int64 `koanf:"seed"`
}

type Metrics struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

var defaults = map[string]any{
	"log.level":           "info",
	"log.format":          "json",
	"blob.driver":         "fs",
	"blob.fs_root":        "./enkfdata",
	"blob.badger_path":    "./enkfdata.badger",
	"blob.s3.region":      "us-east-1",
	"catalog.driver":      "sqlite",
	"catalog.sqlite_path": "./enkfcore.db",
	"ensemble.size":       10,
	"ensemble.workers":    0,
	"ensemble.seed":       1,
	"metrics.enabled":     false,
	"metrics.namespace":   "enkfcore",
}

// keys lists every setting; envKeys resolves environment names against it
// since underscores appear both as separators and inside keys.
var keys = []string{
	"log.level", "log.format",
	"blob.driver", "blob.fs_root", "blob.badger_path",
	"blob.s3.bucket", "blob.s3.region", "blob.s3.endpoint", "blob.s3.path_style",
	"catalog.driver", "catalog.sqlite_path", "catalog.postgres_dsn",
	"ensemble.size", "ensemble.workers", "ensemble.seed",
	"metrics.enabled", "metrics.namespace",
}

var envKeys = func() map[string]string {
	m := make(map[string]string, len(keys))
	for _, key := range keys {
		m[EnvPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	return m
}()

// envKey maps an environment variable name to its setting. Unknown names
// map to "" and are skipped by the provider.
func envKey(name string) string {
	return envKeys[strings.ToUpper(name)]
}

// Load reads the configuration. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("default %s: %w", key, err)
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks driver names and numeric ranges.
func (c *Config) Validate() error {
	switch c.Blob.Driver {
	case "fs", "memory", "s3", "badger":
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket required for s3 driver")
	}
	switch c.Catalog.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown catalog driver %q", c.Catalog.Driver)
	}
	if c.Ensemble.Size <= 0 {
		return fmt.Errorf("ensemble.size must be positive, got %d", c.Ensemble.Size)
	}
	if c.Ensemble.Workers < 0 {
		return fmt.Errorf("ensemble.workers must not be negative, got %d", c.Ensemble.Workers)
	}
	return nil
}
