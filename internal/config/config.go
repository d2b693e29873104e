// Package config loads trailkeep settings from a YAML file, an optional
// .env file and TRAILKEEP_* environment variables, in increasing order of
// precedence, and validates the result against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRAILKEEP_"

// DefaultEnvFile is read when no env file is named and it exists.
const DefaultEnvFile = ".env"

// Config is the merged configuration.
type Config struct {
	Database        string `yaml:"database" json:"database"`
	Workers         int    `yaml:"workers" json:"workers"`
	CacheResetEvery int    `yaml:"cache_reset_every" json:"cache_reset_every"`
	SkipUntil       string `yaml:"skip_until" json:"skip_until"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
	LogFormat       string `yaml:"log_format" json:"log_format"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Database:        "trailkeep.db",
		Workers:         4,
		CacheResetEvery: 50,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load merges defaults, the YAML file at path (skipped when path is ""),
// the env file and the process environment, then validates the result.
// An empty envFile means DefaultEnvFile if present.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	fileEnv, err := readEnvFile(envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readEnvFile(name string) (map[string]string, error) {
	explicit := name != ""
	if !explicit {
		name = DefaultEnvFile
	}
	values, err := godotenv.Read(name)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return values, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATABASE":   &cfg.Database,
		"SKIP_UNTIL": &cfg.SkipUntil,
		"LOG_LEVEL":  &cfg.LogLevel,
		"LOG_FORMAT": &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"WORKERS":           &cfg.Workers,
		"CACHE_RESET_EVERY": &cfg.CacheResetEvery,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; unknown values are info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
