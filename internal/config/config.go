// Package config loads harness configuration from file, environment, and
// defaults, and resolves named server definitions.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TimeoutConfig groups the timeout and pacing knobs.
type TimeoutConfig struct {
	Connection    time.Duration `mapstructure:"connection" json:"connection"`
	TestExecution time.Duration `mapstructure:"test_execution" json:"testExecution"`
	Overall       time.Duration `mapstructure:"overall" json:"overall"`

	// PaceLimit throttles sequential test execution, in tests per second.
	// Zero disables pacing.
	PaceLimit float64 `mapstructure:"pace_limit" json:"paceLimit"`
}

// CategoryConfig filters which test categories run.
type CategoryConfig struct {
	Enabled  []string `mapstructure:"enabled" json:"enabled"`
	Disabled []string `mapstructure:"disabled" json:"disabled"`
}

// OutputConfig selects the report rendering.
type OutputConfig struct {
	Format  string `mapstructure:"format" json:"format"`
	Verbose bool   `mapstructure:"verbose" json:"verbose"`
}

// ExperimentalConfig holds feature flags kept for interface compatibility.
type ExperimentalConfig struct {
	UseSDKErrorDetection bool `mapstructure:"use_sdk_error_detection" json:"useSdkErrorDetection"`
}

// HistoryConfig configures run-history persistence.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

// LLMConfig configures the evaluation judge.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key" json:"-"`
	BaseURL     string  `mapstructure:"base_url" json:"baseUrl"`
	Model       string  `mapstructure:"model" json:"model"`
	RateLimit   float64 `mapstructure:"rate_limit" json:"rateLimit"`
	MaxAttempts int     `mapstructure:"max_attempts" json:"maxAttempts"`
}

// APIConfig configures the optional HTTP API server.
type APIConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

// Config is the full harness configuration.
type Config struct {
	Timeouts     TimeoutConfig      `mapstructure:"timeouts" json:"timeouts"`
	Categories   CategoryConfig     `mapstructure:"categories" json:"categories"`
	Output       OutputConfig       `mapstructure:"output" json:"output"`
	Experimental ExperimentalConfig `mapstructure:"experimental" json:"experimental"`
	History      HistoryConfig      `mapstructure:"history" json:"history"`
	LLM          LLMConfig          `mapstructure:"llm" json:"llm"`
	API          APIConfig          `mapstructure:"api" json:"api"`
	LogLevel     string             `mapstructure:"log_level" json:"logLevel"`
}

// Manager loads and holds the harness configuration.
type Manager struct {
	config *Config
	v      *viper.Viper
}

// NewManager loads configuration from the optional config file, environment
// variables prefixed MCP_TESTER_, and built-in defaults, in that precedence.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.load(configFile); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) load(configFile string) error {
	if configFile != "" {
		m.v.SetConfigFile(configFile)
	} else {
		m.v.SetConfigName("mcp-tester")
		m.v.SetConfigType("yaml")
		m.v.AddConfigPath(".")
		m.v.AddConfigPath("./config")
		m.v.AddConfigPath("$HOME/.config/mcp-tester")
	}

	m.v.SetEnvPrefix("MCP_TESTER")
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	m.setDefaults()

	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	m.v.SetDefault("timeouts.connection", "10s")
	m.v.SetDefault("timeouts.test_execution", "10s")
	m.v.SetDefault("timeouts.overall", "0")
	m.v.SetDefault("timeouts.pace_limit", 0.0)

	m.v.SetDefault("output.format", "console")
	m.v.SetDefault("output.verbose", false)

	m.v.SetDefault("experimental.use_sdk_error_detection", true)

	m.v.SetDefault("history.enabled", true)
	m.v.SetDefault("history.path", "mcp-tester-history.db")

	m.v.SetDefault("llm.base_url", "")
	m.v.SetDefault("llm.model", "gpt-4o-mini")
	m.v.SetDefault("llm.rate_limit", 1.0)
	m.v.SetDefault("llm.max_attempts", 3)

	m.v.SetDefault("api.host", "127.0.0.1")
	m.v.SetDefault("api.port", 8080)

	m.v.SetDefault("log_level", "info")
}

// Get returns the loaded configuration.
func (m *Manager) Get() *Config {
	return m.config
}

// EnabledCategories resolves the enable/disable lists into the final
// allow-list the runner consumes: disabled entries are removed from the
// enabled set; an empty result with no explicit enables means "all".
func (c *Config) EnabledCategories() []string {
	disabled := make(map[string]struct{}, len(c.Categories.Disabled))
	for _, d := range c.Categories.Disabled {
		disabled[strings.ToLower(d)] = struct{}{}
	}

	source := c.Categories.Enabled
	if len(source) == 0 && len(disabled) == 0 {
		return nil
	}
	if len(source) == 0 {
		// Disable-only: enumerate everything except the disabled set.
		source = []string{"base-protocol", "lifecycle", "server-features", "utilities"}
	}

	var out []string
	for _, e := range source {
		if _, off := disabled[strings.ToLower(e)]; !off {
			out = append(out, strings.ToLower(e))
		}
	}
	return out
}
