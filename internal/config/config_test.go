// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "singlish-check", cfg.Logger().ServiceName)
	assert.Equal(t, "https://www.swifttranslator.com/", cfg.Target().URL)
	assert.Equal(t, "swifttranslator.com", cfg.Target().Match)
	assert.Equal(t, DriverChromedp, cfg.Browser().Driver)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 1280, cfg.Browser().Viewport["width"])
	assert.Equal(t, 50, cfg.Resolver().SniffLimit)
	assert.Equal(t, "0D80", cfg.Resolver().ScriptRangeLow)
	assert.Equal(t, 30*time.Second, cfg.Invoker().NavigationTimeout)
	assert.Equal(t, SettlePoll, cfg.Invoker().SettleMode)
	assert.Equal(t, 2*time.Second, cfg.Invoker().SettleDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Invoker().PollInterval)
	assert.Equal(t, 0.90, cfg.Match().Threshold)
	assert.Equal(t, 1, cfg.Runner().Workers)
	assert.Equal(t, time.Duration(0), cfg.Runner().Pace)
	assert.Equal(t, "test-results", cfg.Runner().ArtifactsDir)
	assert.Equal(t, "console", cfg.Report().Format)
	assert.Empty(t, cfg.Database().URL)

	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		cfgNoTarget := *cfg
		cfgNoTarget.TargetCfg.URL = ""
		err := cfgNoTarget.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "target.url is a required configuration field")

		cfgBadDriver := *cfg
		cfgBadDriver.BrowserCfg.Driver = "selenium"
		err = cfgBadDriver.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "browser.driver must be one of chromedp, rod, playwright")

		cfgBadWorkers := *cfg
		cfgBadWorkers.RunnerCfg.Workers = 0
		err = cfgBadWorkers.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "runner.workers must be a positive integer")

		cfgBadThreshold := *cfg
		cfgBadThreshold.MatchCfg.Threshold = 1.5
		err = cfgBadThreshold.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "match.threshold must be between 0.0 and 1.0")

		cfgNoSniff := *cfg
		cfgNoSniff.ResolverCfg.SniffLimit = 0
		err = cfgNoSniff.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "resolver.sniff_limit must be a positive integer")

		cfgBadFormat := *cfg
		cfgBadFormat.ReportCfg.Format = "sarif"
		err = cfgBadFormat.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "report.format must be one of console, json, junit")
	})

	t.Run("Invoker Validation", func(t *testing.T) {
		valid := NewDefaultConfig().InvokerCfg
		assert.NoError(t, valid.Validate())

		fixed := valid
		fixed.SettleMode = SettleFixed
		fixed.PollTimeout = 0
		assert.NoError(t, fixed.Validate(), "poll settings are irrelevant in fixed mode")

		noNav := valid
		noNav.NavigationTimeout = 0
		err := noNav.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "navigation_timeout must be a positive duration")

		badMode := valid
		badMode.SettleMode = "sleep"
		err = badMode.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), `settle_mode must be "fixed" or "poll"`)

		shortPoll := valid
		shortPoll.PollTimeout = shortPoll.PollInitialDelay
		err = shortPoll.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "poll_timeout must exceed poll_initial_delay")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
target:
  url: "http://localhost:8080/"
  match: "localhost:8080"
runner:
  workers: 4
resolver:
  input_strategies:
    - name: main-box
      selector: "#singlish"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "http://localhost:8080/", cfg.Target().URL)
		assert.Equal(t, 4, cfg.Runner().Workers)
		require.Len(t, cfg.Resolver().InputStrategies, 1)
		assert.Equal(t, StrategyConfig{Name: "main-box", Selector: "#singlish"}, cfg.Resolver().InputStrategies[0])
		// Defaults still apply to untouched keys.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("runner.workers", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "runner.workers must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
database:
  url: "postgres://configfile/db"
`)))

		testDBURL := "postgres://envvar/db"
		t.Setenv("SINGLISH_DATABASE_URL", testDBURL)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, testDBURL, cfg.Database().URL)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserDriver(DriverRod)
	iface.SetBrowserHeadless(false)
	iface.SetRunnerWorkers(3)
	iface.SetRunnerCorpusPath("corpus.yaml")
	iface.SetReportFormat("junit")
	iface.SetReportOutput("out.xml")

	assert.Equal(t, DriverRod, cfg.Browser().Driver)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 3, cfg.Runner().Workers)
	assert.Equal(t, "corpus.yaml", cfg.Runner().CorpusPath)
	assert.Equal(t, "junit", cfg.Report().Format)
	assert.Equal(t, "out.xml", cfg.Report().Output)
}
