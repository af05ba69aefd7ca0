// Package config loads the teammesh runtime configuration and team rosters.
//
// The runtime configuration is a TOML file. Every value can be overridden by
// a TEAMMESH_* environment variable, which wins over the file. Teams are YAML
// files in a directory, one team per file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hupe1980/teammesh/core"
)

// Duration is a time.Duration written as "2s" or "1m30s".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Server is the HTTP API section.
type Server struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Log is the logging section.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json, text or console
}

// Telemetry is the tracing section.
type Telemetry struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// Store selects the record store.
type Store struct {
	Driver string `toml:"driver"` // memory, sqlite or postgres
	DSN    string `toml:"dsn"`
}

// Vector selects the similarity index.
type Vector struct {
	Driver         string `toml:"driver"` // memory or pgvector
	DSN            string `toml:"dsn"`
	EmbeddingModel string `toml:"embedding_model"`
	Dimensions     int    `toml:"dimensions"`
}

// Provider holds the connection settings of one model provider.
type Provider struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Orchestration tunes turns, delegation and analysis.
type Orchestration struct {
	MaxSteps          int                `toml:"max_steps"`
	MaxPromptChars    int                `toml:"max_prompt_chars"`
	MaxDepth          int                `toml:"max_depth"`
	MaxIterations     int                `toml:"max_iterations"`
	Throttle          Duration           `toml:"throttle"`
	Retries           uint64             `toml:"retries"`
	RetryInterval     Duration           `toml:"retry_interval"`
	ContextPolicy     core.ContextPolicy `toml:"context_policy"`
	AnalysisModel     core.ModelConfig   `toml:"analysis_model"`
	DisablePreRewrite bool               `toml:"disable_pre_rewrite"`
}

// Credentials configures the encrypted vault.
type Credentials struct {
	Passphrase string `toml:"passphrase"`
}

// Config is the root of the runtime configuration.
type Config struct {
	TeamsDir      string              `toml:"teams_dir"`
	Server        Server              `toml:"server"`
	Log           Log                 `toml:"log"`
	Telemetry     Telemetry           `toml:"telemetry"`
	Store         Store               `toml:"store"`
	Vector        Vector              `toml:"vector"`
	Providers     map[string]Provider `toml:"providers"`
	Orchestration Orchestration       `toml:"orchestration"`
	Credentials   Credentials         `toml:"credentials"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		TeamsDir: "teams",
		Server: Server{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Log: Log{Level: "info", Format: "json"},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "teammesh",
		},
		Store:     Store{Driver: "memory"},
		Vector:    Vector{Driver: "memory", Dimensions: 1536},
		Providers: map[string]Provider{},
		Orchestration: Orchestration{
			MaxSteps:       6,
			MaxPromptChars: 12000,
			MaxDepth:       core.DefaultMaxDepth,
			MaxIterations:  5,
			Throttle:       Duration{2 * time.Second},
			Retries:        3,
			RetryInterval:  Duration{time.Second},
		},
	}
}

// Load reads path on top of Default and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides values from TEAMMESH_* variables resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup("TEAMMESH_" + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup("TEAMMESH_" + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("TEAMMESH_%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup("TEAMMESH_" + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("TEAMMESH_%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	text := func(key string, dst interface{ UnmarshalText([]byte) error }) {
		if v, ok := lookup("TEAMMESH_" + key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("TEAMMESH_%s: %w", key, err))
			}
		}
	}

	str("TEAMS_DIR", &c.TeamsDir)
	str("SERVER_ADDR", &c.Server.Addr)
	if v, ok := lookup("TEAMMESH_SERVER_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	flag("TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	str("TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	flag("TELEMETRY_INSECURE", &c.Telemetry.Insecure)
	str("TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("VECTOR_DRIVER", &c.Vector.Driver)
	str("VECTOR_DSN", &c.Vector.DSN)
	str("VECTOR_EMBEDDING_MODEL", &c.Vector.EmbeddingModel)
	num("VECTOR_DIMENSIONS", &c.Vector.Dimensions)
	num("MAX_STEPS", &c.Orchestration.MaxSteps)
	num("MAX_PROMPT_CHARS", &c.Orchestration.MaxPromptChars)
	num("MAX_DEPTH", &c.Orchestration.MaxDepth)
	num("MAX_ITERATIONS", &c.Orchestration.MaxIterations)
	text("THROTTLE", &c.Orchestration.Throttle)
	text("RETRY_INTERVAL", &c.Orchestration.RetryInterval)
	text("CONTEXT_POLICY", &c.Orchestration.ContextPolicy)
	if v, ok := lookup("TEAMMESH_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TEAMMESH_RETRIES: %w", err))
		} else {
			c.Orchestration.Retries = n
		}
	}
	str("CREDENTIALS_PASSPHRASE", &c.Credentials.Passphrase)

	if c.Providers == nil {
		c.Providers = map[string]Provider{}
	}
	for _, name := range []string{"openai", "anthropic", "gemini", "perplexity"} {
		p := c.Providers[name]
		upper := strings.ToUpper(name)
		str(upper+"_API_KEY", &p.APIKey)
		str(upper+"_BASE_URL", &p.BaseURL)
		if p != (Provider{}) {
			c.Providers[name] = p
		}
	}

	return errors.Join(errs...)
}

// Validate checks driver names and numeric bounds.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store: driver %s requires a dsn", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown driver %q", c.Store.Driver))
	}

	switch c.Vector.Driver {
	case "memory":
	case "pgvector":
		if c.Vector.DSN == "" {
			errs = append(errs, errors.New("vector: pgvector requires a dsn"))
		}
		if c.Vector.Dimensions <= 0 {
			errs = append(errs, errors.New("vector: dimensions must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector: unknown driver %q", c.Vector.Driver))
	}

	switch c.Log.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}

	o := c.Orchestration
	if o.MaxSteps <= 0 {
		errs = append(errs, errors.New("orchestration: max_steps must be positive"))
	}
	if o.MaxDepth <= 0 {
		errs = append(errs, errors.New("orchestration: max_depth must be positive"))
	}
	if o.MaxIterations <= 0 {
		errs = append(errs, errors.New("orchestration: max_iterations must be positive"))
	}
	if o.Throttle.Duration < 0 {
		errs = append(errs, errors.New("orchestration: throttle must not be negative"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
