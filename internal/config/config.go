package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: PI_MONITOR_PROBE__TIMEOUT=10s sets probe.timeout.
const EnvPrefix = "PI_MONITOR_"

// Default values applied when fields are absent from the config file.
const (
	DefaultLogLevel           = "info"
	DefaultProbeTimeout       = 5 * time.Second
	DefaultProbeInterval      = 30 * time.Second
	DefaultSamplerInterval    = 15 * time.Second
	DefaultReportInterval     = time.Minute
	DefaultEvaluationInterval = 30 * time.Second
	DefaultExportFormat       = "prometheus"
	DefaultRatePerSecond      = 1.0
	DefaultBurst              = 5
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level pi-monitor configuration.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Probe         ProbeConfig         `koanf:"probe"`
	Sampler       SamplerConfig       `koanf:"sampler"`
	Report        ReportConfig        `koanf:"report"`
	Export        ExportConfig        `koanf:"export"`
	Alerts        AlertsConfig        `koanf:"alerts"`
	Dependencies  []Dependency        `koanf:"dependencies" validate:"dive"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ProbeConfig controls dependency probing.
type ProbeConfig struct {
	// Timeout bounds a single probe.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// Interval is how often every dependency is probed by `run`.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

// SamplerConfig controls process CPU/memory sampling.
type SamplerConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

// ReportConfig controls the periodic report logged by `run`.
type ReportConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

// ExportConfig controls the exposition textfile written by `run`.
type ExportConfig struct {
	// Path is the file the exposition is written to on every report
	// interval. Empty disables the textfile.
	Path string `koanf:"path"`

	// Format is prometheus (aggregated, standard text format) or legacy
	// (one line per point). node_exporter's textfile collector rejects the
	// repeated series of legacy output.
	Format string `koanf:"format" validate:"oneof=legacy prometheus"`
}

// AlertsConfig holds alert rules and how often metric-bound rules are
// evaluated.
type AlertsConfig struct {
	EvaluationInterval time.Duration `koanf:"evaluation_interval" validate:"gt=0"`
	Rules              []AlertRule   `koanf:"rules" validate:"dive"`
}

// AlertRule defines one threshold alert.
type AlertRule struct {
	// Name is the human-readable alert identifier. Must be unique.
	Name string `koanf:"name" validate:"required"`

	// Condition is a free-text description shown in notifications.
	Condition string `koanf:"condition"`

	// Metric and Stat bind the rule to a registered metric so it is
	// evaluated automatically. Stat is one of: count | min | max | avg.
	// Both empty leaves the rule to be checked by callers.
	Metric string `koanf:"metric"`
	Stat   string `koanf:"stat" validate:"omitempty,oneof=count min max avg"`

	// Threshold is exceeded when the value is strictly greater.
	Threshold float64 `koanf:"threshold"`

	// Severity is one of: critical | warning | info. Defaults to warning.
	Severity string `koanf:"severity" validate:"omitempty,oneof=info warning critical"`

	// Channels names notification channels.
	Channels []string `koanf:"channels"`
}

// Dependency describes one external service probed for liveness.
type Dependency struct {
	Name string     `koanf:"name" validate:"required"`
	URL  string     `koanf:"url" validate:"required,url"`
	Auth AuthConfig `koanf:"auth"`
	TLS  TLSConfig  `koanf:"tls"`
}

// AuthConfig specifies the authentication mode for a dependency.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `koanf:"mode" validate:"omitempty,oneof=mtls apikey bearer basic none"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `koanf:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `koanf:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `koanf:"token_env"`

	// Username is the literal basic-auth username; PasswordEnv names the
	// environment variable holding the password.
	Username    string `koanf:"username"`
	PasswordEnv string `koanf:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

// TLSConfig holds per-dependency TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `koanf:"insecure_skip_verify"`
}

// NotificationsConfig holds webhook channels and the shared delivery rate.
type NotificationsConfig struct {
	RatePerSecond float64         `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int             `koanf:"burst" validate:"gte=0"`
	Channels      []ChannelConfig `koanf:"channels" validate:"dive"`
}

// ChannelConfig defines one named webhook target.
type ChannelConfig struct {
	Name string `koanf:"name" validate:"required"`

	// Type is one of: teams | slack | pagerduty | http.
	Type string `koanf:"type" validate:"oneof=slack teams pagerduty http"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `koanf:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (c ChannelConfig) URL() string { return lookupEnv(c.URLEnv) }

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load builds the config from defaults, then the YAML file at path (skipped
// when path is empty), then PI_MONITOR_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// envKey maps PI_MONITOR_ALERTS__EVALUATION_INTERVAL to
// alerts.evaluation_interval.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Probe: ProbeConfig{
			Timeout:  DefaultProbeTimeout,
			Interval: DefaultProbeInterval,
		},
		Sampler: SamplerConfig{Interval: DefaultSamplerInterval},
		Report:  ReportConfig{Interval: DefaultReportInterval},
		Export:  ExportConfig{Format: DefaultExportFormat},
		Alerts:  AlertsConfig{EvaluationInterval: DefaultEvaluationInterval},
		Notifications: NotificationsConfig{
			RatePerSecond: DefaultRatePerSecond,
			Burst:         DefaultBurst,
		},
	}
}

var validate = newValidator()

// newValidator returns the struct-tag validation followed by the checks
// tags cannot express.
func newValidator() func(*Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	return func(cfg *Config) error {
		if err := v.Struct(cfg); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}

		seen := make(map[string]bool)
		for i, d := range cfg.Dependencies {
			if seen[d.Name] {
				return fmt.Errorf("%w: dependencies[%d]: duplicate name %q", ErrInvalid, i, d.Name)
			}
			seen[d.Name] = true
			if d.Auth.Mode == "apikey" && d.Auth.Header == "" {
				return fmt.Errorf("%w: dependencies[%d] %q: auth.header is required for apikey", ErrInvalid, i, d.Name)
			}
			if d.Auth.Mode == "mtls" && (d.Auth.CertFile == "" || d.Auth.KeyFile == "") {
				return fmt.Errorf("%w: dependencies[%d] %q: auth.cert_file and auth.key_file are required for mtls", ErrInvalid, i, d.Name)
			}
		}

		clear(seen)
		for i, r := range cfg.Alerts.Rules {
			if seen[r.Name] {
				return fmt.Errorf("%w: alerts.rules[%d]: duplicate name %q", ErrInvalid, i, r.Name)
			}
			seen[r.Name] = true
			if (r.Metric == "") != (r.Stat == "") {
				return fmt.Errorf("%w: alerts.rules[%d] %q: metric and stat must be set together", ErrInvalid, i, r.Name)
			}
		}

		clear(seen)
		for i, c := range cfg.Notifications.Channels {
			if seen[c.Name] {
				return fmt.Errorf("%w: notifications.channels[%d]: duplicate name %q", ErrInvalid, i, c.Name)
			}
			seen[c.Name] = true
		}
		return nil
	}
}
