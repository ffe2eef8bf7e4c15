// Package config holds the runtime settings shared by the CLI and the
// local dashboard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/privacy"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LEADERBOARD_"

// Config is the complete configuration surface
type Config struct {
	Scoring    analysis.ScoringWeights    `yaml:"scoring" json:"scoring"`
	Deflection analysis.DeflectionWeights `yaml:"deflection" json:"deflection"`
	Share      ShareConfig                `yaml:"share" json:"share"`
	Limits     LimitsConfig               `yaml:"limits" json:"limits"`
	Server     ServerConfig               `yaml:"server" json:"server"`
}

// ShareConfig controls share tokens
type ShareConfig struct {
	TTL    time.Duration `yaml:"ttl" json:"ttl"`
	Secret string        `yaml:"secret,omitempty" json:"-"` // keys anonymized IDs when set
}

// LimitsConfig bounds the size of accepted datasets
type LimitsConfig struct {
	MaxRows        int   `yaml:"max_rows" json:"max_rows"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`
}

// ServerConfig configures the local dashboard
type ServerConfig struct {
	Addr          string   `yaml:"addr" json:"addr"`
	RatePerMinute int      `yaml:"rate_per_minute" json:"rate_per_minute"` // 0 disables rate limiting
	CORSOrigins   []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	engine := analysis.DefaultConfig()
	return &Config{
		Scoring:    engine.Scoring,
		Deflection: engine.Deflection,
		Share: ShareConfig{
			TTL: encoding.DefaultTTL,
		},
		Limits: LimitsConfig{
			MaxRows:        engine.MaxRows,
			MaxUploadBytes: 50 * 1024 * 1024,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8080",
			RatePerMinute: 60,
		},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewConfigurationError("failed to read config", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewConfigurationError("failed to parse YAML", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from LEADERBOARD_* environment variables
func (c *Config) ApplyEnv() error {
	floats := map[string]*float64{
		"SCORING_VOLUME":     &c.Scoring.Volume,
		"SCORING_QUALITY":    &c.Scoring.Quality,
		"SCORING_COVERAGE":   &c.Scoring.Coverage,
		"DEFLECTION_FULL":    &c.Deflection.Full,
		"DEFLECTION_PARTIAL": &c.Deflection.Partial,
	}
	for key, dst := range floats {
		if v, ok := lookupEnv(key); ok {
			f, err := cast.ToFloat64E(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"MAX_ROWS":        &c.Limits.MaxRows,
		"RATE_PER_MINUTE": &c.Server.RatePerMinute,
	}
	for key, dst := range ints {
		if v, ok := lookupEnv(key); ok {
			n, err := cast.ToIntE(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookupEnv("MAX_UPLOAD_BYTES"); ok {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return envError("MAX_UPLOAD_BYTES", err)
		}
		c.Limits.MaxUploadBytes = n
	}

	if v, ok := lookupEnv("SHARE_TTL"); ok {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return envError("SHARE_TTL", err)
		}
		c.Share.TTL = d
	}

	if v, ok := lookupEnv("SHARE_SECRET"); ok {
		c.Share.Secret = v
	}

	if v, ok := lookupEnv("ADDR"); ok {
		c.Server.Addr = v
	}

	if v, ok := lookupEnv("CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, origin)
			}
		}
	}

	return nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var problems []string

	if err := c.Scoring.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.Deflection.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Share.TTL <= 0 {
		problems = append(problems, "share.ttl must be positive")
	}
	if c.Limits.MaxRows <= 0 {
		problems = append(problems, "limits.max_rows must be positive")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		problems = append(problems, "limits.max_upload_bytes must be positive")
	}
	if c.Server.RatePerMinute < 0 {
		problems = append(problems, "server.rate_per_minute must be >= 0 (0 disables)")
	}

	if len(problems) == 0 {
		return nil
	}

	err := apperrors.NewConfigurationError("invalid configuration", fmt.Errorf("%s", strings.Join(problems, "; ")))
	err.Messages = problems
	return err
}

// EngineConfig returns the analysis settings
func (c *Config) EngineConfig() analysis.Config {
	return analysis.Config{
		Scoring:    c.Scoring,
		Deflection: c.Deflection,
		MaxRows:    c.Limits.MaxRows,
	}
}

// Engine builds the analysis engine
func (c *Config) Engine() *analysis.Engine {
	return analysis.NewEngine(c.EngineConfig())
}

// Anonymizer builds the anonymizer, keyed when a share secret is set
func (c *Config) Anonymizer() *privacy.Anonymizer {
	return privacy.NewAnonymizer(privacy.WithKey(c.Share.Secret))
}

// Codec builds the share codec
func (c *Config) Codec(opts ...encoding.CodecOption) *encoding.Codec {
	return encoding.NewCodec(c.Share.TTL, c.Anonymizer(), opts...)
}

// Marshal renders the configuration as YAML with the secret redacted
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.Share.Secret != "" {
		redacted.Share.Secret = "********"
	}
	return yaml.Marshal(&redacted)
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envError(key string, err error) error {
	return apperrors.NewConfigurationError(fmt.Sprintf("invalid value for %s%s", EnvPrefix, key), err)
}
