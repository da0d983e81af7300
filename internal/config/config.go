// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Target() TargetConfig
	Browser() BrowserConfig
	Resolver() ResolverConfig
	Invoker() InvokerConfig
	Match() MatchConfig
	Runner() RunnerConfig
	Report() ReportConfig
	Database() DatabaseConfig

	// Setters for values that usually come from CLI flags.
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetRunnerWorkers(int)
	SetRunnerCorpusPath(string)
	SetReportFormat(string)
	SetReportOutput(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	TargetCfg   TargetConfig   `mapstructure:"target" yaml:"target"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	InvokerCfg  InvokerConfig  `mapstructure:"invoker" yaml:"invoker"`
	MatchCfg    MatchConfig    `mapstructure:"match" yaml:"match"`
	RunnerCfg   RunnerConfig   `mapstructure:"runner" yaml:"runner"`
	ReportCfg   ReportConfig   `mapstructure:"report" yaml:"report"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Target() TargetConfig     { return c.TargetCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Invoker() InvokerConfig   { return c.InvokerCfg }
func (c *Config) Match() MatchConfig       { return c.MatchCfg }
func (c *Config) Runner() RunnerConfig     { return c.RunnerCfg }
func (c *Config) Report() ReportConfig     { return c.ReportCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)     { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetRunnerWorkers(n int)        { c.RunnerCfg.Workers = n }
func (c *Config) SetRunnerCorpusPath(p string)  { c.RunnerCfg.CorpusPath = p }
func (c *Config) SetReportFormat(f string)      { c.ReportCfg.Format = f }
func (c *Config) SetReportOutput(p string)      { c.ReportCfg.Output = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// TargetConfig identifies the transliteration page under test.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// Match is the substring that marks the current page as already being
	// the target. Navigation is skipped when the page URL contains it.
	Match string `mapstructure:"match" yaml:"match"`
}

// Supported browser drivers.
const (
	DriverChromedp   = "chromedp"
	DriverRod        = "rod"
	DriverPlaywright = "playwright"
)

// BrowserConfig holds settings for the browser the scenarios drive.
type BrowserConfig struct {
	Driver          string         `mapstructure:"driver" yaml:"driver"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// ControlURL attaches the rod driver to an already running browser
	// instead of launching one.
	ControlURL string `mapstructure:"control_url" yaml:"control_url"`
}

// StrategyConfig is one selector strategy of a resolver chain.
type StrategyConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Selector string `mapstructure:"selector" yaml:"selector"`
}

// ResolverConfig tunes element resolution. Empty chains fall back to the
// built-in defaults.
type ResolverConfig struct {
	InputStrategies  []StrategyConfig `mapstructure:"input_strategies" yaml:"input_strategies"`
	OutputStrategies []StrategyConfig `mapstructure:"output_strategies" yaml:"output_strategies"`
	SniffLimit       int              `mapstructure:"sniff_limit" yaml:"sniff_limit"`
	// ScriptRangeLow and ScriptRangeHigh bound the Unicode block whose
	// presence identifies converted output. Hex strings such as "0D80".
	ScriptRangeLow  string `mapstructure:"script_range_low" yaml:"script_range_low"`
	ScriptRangeHigh string `mapstructure:"script_range_high" yaml:"script_range_high"`
}

// Settle modes.
const (
	SettleFixed = "fixed"
	SettlePoll  = "poll"
)

// InvokerConfig controls the navigate, fill, settle and read sequence.
type InvokerConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	QuiescenceWindow  time.Duration `mapstructure:"quiescence_window" yaml:"quiescence_window"`
	SettleMode        string        `mapstructure:"settle_mode" yaml:"settle_mode"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PollInitialDelay  time.Duration `mapstructure:"poll_initial_delay" yaml:"poll_initial_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// MatchConfig tunes the output validator.
type MatchConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// RunnerConfig controls scenario execution.
type RunnerConfig struct {
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	// Pace is the minimum interval between scenario starts across all
	// workers. Zero disables pacing.
	Pace         time.Duration `mapstructure:"pace" yaml:"pace"`
	ArtifactsDir string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	CorpusPath   string        `mapstructure:"corpus_path" yaml:"corpus_path"`
}

// ReportConfig selects the outcome report format.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "singlish-check")
	v.SetDefault("logger.log_file", "singlish-check.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Target --
	v.SetDefault("target.url", "https://www.swifttranslator.com/")
	v.SetDefault("target.match", "swifttranslator.com")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 900})

	// -- Resolver --
	v.SetDefault("resolver.sniff_limit", 50)
	v.SetDefault("resolver.script_range_low", "0D80")
	v.SetDefault("resolver.script_range_high", "0DFF")

	// -- Invoker --
	v.SetDefault("invoker.navigation_timeout", "30s")
	v.SetDefault("invoker.quiescence_window", "500ms")
	v.SetDefault("invoker.settle_mode", SettlePoll)
	v.SetDefault("invoker.settle_delay", "2s")
	v.SetDefault("invoker.poll_initial_delay", "500ms")
	v.SetDefault("invoker.poll_interval", "250ms")
	v.SetDefault("invoker.poll_timeout", "5s")

	// -- Match --
	v.SetDefault("match.threshold", 0.90)

	// -- Runner --
	v.SetDefault("runner.workers", 1)
	v.SetDefault("runner.scenario_timeout", "60s")
	v.SetDefault("runner.pace", "0s")
	v.SetDefault("runner.artifacts_dir", "test-results")
	v.SetDefault("runner.corpus_path", "")

	// -- Report --
	v.SetDefault("report.format", "console")
	v.SetDefault("report.output", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The database URL usually carries credentials.
	_ = v.BindEnv("database.url", "SINGLISH_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.TargetCfg.URL == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	switch c.BrowserCfg.Driver {
	case DriverChromedp, DriverRod, DriverPlaywright:
	default:
		return fmt.Errorf("browser.driver must be one of %s", strings.Join([]string{DriverChromedp, DriverRod, DriverPlaywright}, ", "))
	}
	if c.RunnerCfg.Workers <= 0 {
		return fmt.Errorf("runner.workers must be a positive integer")
	}
	if c.RunnerCfg.Pace < 0 {
		return fmt.Errorf("runner.pace must not be negative")
	}
	if c.MatchCfg.Threshold < 0.0 || c.MatchCfg.Threshold > 1.0 {
		return fmt.Errorf("match.threshold must be between 0.0 and 1.0")
	}
	if c.ResolverCfg.SniffLimit < 1 {
		return fmt.Errorf("resolver.sniff_limit must be a positive integer")
	}
	if err := c.InvokerCfg.Validate(); err != nil {
		return fmt.Errorf("invoker configuration invalid: %w", err)
	}
	switch c.ReportCfg.Format {
	case "console", "json", "junit":
	default:
		return fmt.Errorf("report.format must be one of console, json, junit")
	}
	return nil
}

// Validate checks the InvokerConfig settings.
func (i *InvokerConfig) Validate() error {
	if i.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if i.QuiescenceWindow < 0 {
		return fmt.Errorf("quiescence_window must not be negative")
	}
	switch i.SettleMode {
	case SettleFixed:
		if i.SettleDelay < 0 {
			return fmt.Errorf("settle_delay must not be negative")
		}
	case SettlePoll:
		if i.PollInterval <= 0 {
			return fmt.Errorf("poll_interval must be a positive duration")
		}
		if i.PollTimeout <= i.PollInitialDelay {
			return fmt.Errorf("poll_timeout must exceed poll_initial_delay")
		}
	default:
		return fmt.Errorf("settle_mode must be %q or %q", SettleFixed, SettlePoll)
	}
	return nil
}
