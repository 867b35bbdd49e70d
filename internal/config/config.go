// Package config loads and edits the repository configuration in
// .embr/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the repository directory.
const FileName = "config.yaml"

// Config is the in-memory representation of .embr/config.yaml.
type Config struct {
	Core       CoreConfig              `mapstructure:"core" yaml:"core"`
	Diff       DiffConfig              `mapstructure:"diff" yaml:"diff"`
	Embeddings EmbeddingsConfig        `mapstructure:"embeddings" yaml:"embeddings"`
	Remotes    map[string]RemoteConfig `mapstructure:"remotes" yaml:"remotes,omitempty"`
}

// CoreConfig holds storage behaviour.
type CoreConfig struct {
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
	Compression  string `mapstructure:"compression" yaml:"compression"`
	LockTimeout  string `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

// DiffConfig holds comparison defaults.
type DiffConfig struct {
	Neighbors int    `mapstructure:"neighbors" yaml:"neighbors"`
	Method    string `mapstructure:"method" yaml:"method"`
}

// EmbeddingsConfig selects the provider used by store --generate.
type EmbeddingsConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
}

// RemoteConfig is one push/pull target.
type RemoteConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region   string `mapstructure:"region" yaml:"region,omitempty"`
	Secure   bool   `mapstructure:"secure" yaml:"secure"`
}

// DefaultConfig returns the config written by embr init.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			Compression: "none",
			LockTimeout: "10s",
		},
		Diff: DiffConfig{
			Neighbors: 10,
			Method:    "projection",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
	}
}

// Load reads path with defaults underneath and EMBR_* environment variables
// on top. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("core.default_model", def.Core.DefaultModel)
	v.SetDefault("core.compression", def.Core.Compression)
	v.SetDefault("core.lock_timeout", def.Core.LockTimeout)
	v.SetDefault("diff.neighbors", def.Diff.Neighbors)
	v.SetDefault("diff.method", def.Diff.Method)
	v.SetDefault("embeddings.provider", def.Embeddings.Provider)
	v.SetDefault("embeddings.model", def.Embeddings.Model)
	v.SetDefault("embeddings.base_url", def.Embeddings.BaseURL)
	v.SetDefault("embeddings.dimensions", def.Embeddings.Dimensions)

	v.SetEnvPrefix("EMBR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, errs.Errorf(errs.CodeConfigReadFailure, "reading config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Errorf(errs.CodeConfigReadFailure, "cannot stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Errorf(errs.CodeConfigReadFailure, "unmarshalling config: %w", err)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, errs.Errorf(errs.CodeConfigInvalidValue, "validating config: %w", errors.Join(problems...))
	}
	return &cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.Errorf(errs.CodeConfigWriteFailure, "cannot marshal config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return errs.Wrap(err, errs.CodeConfigWriteFailure, "cannot write config", errs.FieldPath(path))
	}
	return nil
}

// Validate returns every problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var problems []error
	switch c.Core.Compression {
	case "", "none", "zstd", "lz4":
	default:
		problems = append(problems, fmt.Errorf("core.compression: unsupported value %q (want none, zstd or lz4)", c.Core.Compression))
	}
	if c.Core.LockTimeout != "" {
		if d, err := time.ParseDuration(c.Core.LockTimeout); err != nil || d <= 0 {
			problems = append(problems, fmt.Errorf("core.lock_timeout: %q is not a positive duration", c.Core.LockTimeout))
		}
	}
	if c.Diff.Neighbors <= 0 {
		problems = append(problems, fmt.Errorf("diff.neighbors: must be positive, got %d", c.Diff.Neighbors))
	}
	switch c.Diff.Method {
	case "cosine", "projection", "semantic":
	default:
		problems = append(problems, fmt.Errorf("diff.method: unsupported value %q (want cosine, projection or semantic)", c.Diff.Method))
	}
	if c.Embeddings.Dimensions < 0 {
		problems = append(problems, fmt.Errorf("embeddings.dimensions: must not be negative, got %d", c.Embeddings.Dimensions))
	}
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(c.Remotes[name].URL) == "" {
			problems = append(problems, fmt.Errorf("remotes.%s.url: must not be empty", name))
		}
	}
	return problems
}

// LockTimeout returns core.lock_timeout as a duration.
func (c *Config) LockTimeout() time.Duration {
	d, err := time.ParseDuration(c.Core.LockTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// KeyValue is one flattened setting.
type KeyValue struct {
	Key   string
	Value string
}

// List flattens the config into sorted dotted keys.
func (c *Config) List() []KeyValue {
	keys := []string{
		"core.compression", "core.default_model", "core.lock_timeout",
		"diff.method", "diff.neighbors",
		"embeddings.base_url", "embeddings.dimensions", "embeddings.model", "embeddings.provider",
	}
	for name := range c.Remotes {
		for _, field := range []string{"endpoint", "region", "secure", "url"} {
			keys = append(keys, "remotes."+name+"."+field)
		}
	}
	sort.Strings(keys)
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		v, _ := c.Get(k)
		out = append(out, KeyValue{Key: k, Value: v})
	}
	return out
}

// Get returns the value at a dotted key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "core.default_model":
		return c.Core.DefaultModel, nil
	case "core.compression":
		return c.Core.Compression, nil
	case "core.lock_timeout":
		return c.Core.LockTimeout, nil
	case "diff.neighbors":
		return strconv.Itoa(c.Diff.Neighbors), nil
	case "diff.method":
		return c.Diff.Method, nil
	case "embeddings.provider":
		return c.Embeddings.Provider, nil
	case "embeddings.model":
		return c.Embeddings.Model, nil
	case "embeddings.base_url":
		return c.Embeddings.BaseURL, nil
	case "embeddings.dimensions":
		return strconv.Itoa(c.Embeddings.Dimensions), nil
	}
	name, field, ok := remoteKey(key)
	if !ok {
		return "", errs.New(errs.CodeConfigKeyNotFound, "unknown config key "+key)
	}
	r, ok := c.Remotes[name]
	if !ok {
		return "", errs.New(errs.CodeConfigKeyNotFound, "no remote named "+name)
	}
	switch field {
	case "url":
		return r.URL, nil
	case "endpoint":
		return r.Endpoint, nil
	case "region":
		return r.Region, nil
	default:
		return strconv.FormatBool(r.Secure), nil
	}
}

// Set assigns value at a dotted key and re-validates.
func (c *Config) Set(key, value string) error {
	next := *c
	next.Remotes = make(map[string]RemoteConfig, len(c.Remotes))
	for k, v := range c.Remotes {
		next.Remotes[k] = v
	}
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, errs.Errorf(errs.CodeConfigInvalidValue, "%s: %q is not an integer", key, value)
		}
		return n, nil
	}
	switch key {
	case "core.default_model":
		next.Core.DefaultModel = value
	case "core.compression":
		next.Core.Compression = value
	case "core.lock_timeout":
		next.Core.LockTimeout = value
	case "diff.neighbors":
		n, err := atoi()
		if err != nil {
			return err
		}
		next.Diff.Neighbors = n
	case "diff.method":
		next.Diff.Method = value
	case "embeddings.provider":
		next.Embeddings.Provider = value
	case "embeddings.model":
		next.Embeddings.Model = value
	case "embeddings.base_url":
		next.Embeddings.BaseURL = value
	case "embeddings.dimensions":
		n, err := atoi()
		if err != nil {
			return err
		}
		next.Embeddings.Dimensions = n
	default:
		name, field, ok := remoteKey(key)
		if !ok {
			return errs.New(errs.CodeConfigKeyNotFound, "unknown config key "+key)
		}
		r := next.Remotes[name]
		switch field {
		case "url":
			r.URL = value
		case "endpoint":
			r.Endpoint = value
		case "region":
			r.Region = value
		case "secure":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return errs.Errorf(errs.CodeConfigInvalidValue, "%s: %q is not a boolean", key, value)
			}
			r.Secure = b
		}
		next.Remotes[name] = r
	}
	if problems := next.Validate(); len(problems) > 0 {
		return errs.Errorf(errs.CodeConfigInvalidValue, "invalid config: %w", errors.Join(problems...))
	}
	*c = next
	return nil
}

func remoteKey(key string) (name, field string, ok bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "remotes" || parts[1] == "" {
		return "", "", false
	}
	switch parts[2] {
	case "url", "endpoint", "region", "secure":
		return parts[1], parts[2], true
	}
	return "", "", false
}
