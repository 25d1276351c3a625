// Package config loads the storefront client configuration from YAML.
package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/greenspace/reqgate"
)

// Config holds the client configuration.
type Config struct {
	// API backend
	API APIConfig `yaml:"api"`

	// Request gate behaviour
	Gate GateConfig `yaml:"gate"`

	// Local storage for the guest cart
	Storage StorageConfig `yaml:"storage"`

	// Cart store
	Cart CartConfig `yaml:"cart"`
}

// APIConfig configures the REST backend.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"` // e.g. "15s"; empty means no client timeout
}

// GateConfig configures the request gate.
type GateConfig struct {
	Policy      string `yaml:"policy"`     // reject-new, supersede-old, share
	QueryMode   string `yaml:"query_mode"` // canonical, exact, ignore
	ScopedKeys  bool   `yaml:"scoped_keys"`
	MaxInFlight int    `yaml:"max_in_flight"` // 0 = unbounded
}

// StorageConfig configures local storage.
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite file, or ":memory:"
}

// CartConfig configures the cart store.
type CartConfig struct {
	MergeLimit int `yaml:"merge_limit"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: "15s",
		},
		Gate: GateConfig{
			Policy:    reqgate.RejectNew.String(),
			QueryMode: "canonical",
		},
		Storage: StorageConfig{
			Path: "greenspace-local.db",
		},
		Cart: CartConfig{
			MergeLimit: 4,
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GREENSPACE_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("GREENSPACE_POLICY"); v != "" {
		c.Gate.Policy = v
	}
	if v := os.Getenv("GREENSPACE_STORAGE"); v != "" {
		c.Storage.Path = v
	}
}

// Validate checks values that cannot be fixed up silently.
func (c *Config) Validate() error {
	if _, ok := reqgate.ParsePolicy(c.Gate.Policy); !ok {
		return fmt.Errorf("gate.policy: unknown policy %q", c.Gate.Policy)
	}
	if _, err := c.queryMode(); err != nil {
		return err
	}
	if _, err := c.timeout(); err != nil {
		return err
	}
	if c.Gate.MaxInFlight < 0 {
		return fmt.Errorf("gate.max_in_flight: must not be negative")
	}
	return nil
}

func (c *Config) queryMode() (reqgate.QueryMode, error) {
	switch c.Gate.QueryMode {
	case "", "canonical":
		return reqgate.QueryCanonical, nil
	case "exact":
		return reqgate.QueryExact, nil
	case "ignore":
		return reqgate.QueryIgnore, nil
	}
	return 0, fmt.Errorf("gate.query_mode: unknown mode %q", c.Gate.QueryMode)
}

func (c *Config) timeout() (time.Duration, error) {
	if c.API.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 0, fmt.Errorf("api.timeout: %w", err)
	}
	return d, nil
}

// GateOptions turns the gate section into reqgate options.
func (c *Config) GateOptions(log *zap.Logger) []reqgate.Option {
	policy, _ := reqgate.ParsePolicy(c.Gate.Policy)
	mode, _ := c.queryMode()
	return []reqgate.Option{
		reqgate.WithPolicy(policy),
		reqgate.WithQueryMode(mode),
		reqgate.WithScopedKeys(c.Gate.ScopedKeys),
		reqgate.WithMaxInFlight(c.Gate.MaxInFlight),
		reqgate.WithLogger(log),
	}
}

// Transport builds the HTTP transport for the API section.
func (c *Config) Transport() *reqgate.HTTPTransport {
	timeout, _ := c.timeout()
	return reqgate.NewHTTPTransport(c.API.BaseURL, &http.Client{Timeout: timeout})
}
