// Package config loads run settings from flags, ENRICHER_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shpitdev/movement-enricher/internal/browser"
	"github.com/shpitdev/movement-enricher/internal/navigate"
	"github.com/shpitdev/movement-enricher/internal/progress"
)

const EnvPrefix = "ENRICHER"

// DefaultItemTimeout comfortably exceeds the sum of every wait in the flow.
const DefaultItemTimeout = 3 * time.Minute

// Keys.
const (
	KeyInput           = "input"
	KeyDebuggerAddress = "debugger_address"
	KeyHomeURL         = "home_url"
	KeyLocators        = "locators"
	KeyCheckpointEvery = "checkpoint_every"
	KeyRateLimitRPS    = "rate_limit_rps"
	KeySettleDelay     = "settle_delay"
	KeySearchTimeout   = "search_timeout"
	KeySubviewTimeout  = "subview_timeout"
	KeyScriptTimeout   = "script_timeout"
	KeyTableTimeout    = "table_timeout"
	KeyHomeTimeout     = "home_timeout"
	KeyRefreshDelay    = "refresh_delay"
	KeyActionTimeout   = "action_timeout"
	KeyLoadTimeout     = "load_timeout"
	KeyItemTimeout     = "item_timeout"
	KeyETAWindow       = "eta_window"
	KeyLogFile         = "log_file"
	KeyLogLevel        = "log_level"
)

type Config struct {
	Input           string
	DebuggerAddress string
	HomeURL         string
	// Locators is an optional YAML locator profile overriding the built-in one.
	Locators        string
	CheckpointEvery int
	RateLimitRPS    float64

	SettleDelay    time.Duration
	SearchTimeout  time.Duration
	SubviewTimeout time.Duration
	ScriptTimeout  time.Duration
	TableTimeout   time.Duration
	HomeTimeout    time.Duration
	RefreshDelay   time.Duration
	ActionTimeout  time.Duration
	LoadTimeout    time.Duration
	// ItemTimeout caps everything done for one identifier.
	ItemTimeout time.Duration

	ETAWindow int
	LogFile   string
	LogLevel  string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	nav := navigate.DefaultOptions()
	t := navigate.DefaultTimeouts()

	v.SetDefault(KeyDebuggerAddress, browser.DefaultDebuggerAddress)
	v.SetDefault(KeyHomeURL, nav.HomeURL)
	v.SetDefault(KeyCheckpointEvery, 5)
	v.SetDefault(KeyRateLimitRPS, 0.0)
	v.SetDefault(KeySettleDelay, nav.SettleDelay)
	v.SetDefault(KeySearchTimeout, t.Search)
	v.SetDefault(KeySubviewTimeout, t.Subview)
	v.SetDefault(KeyScriptTimeout, t.Script)
	v.SetDefault(KeyTableTimeout, t.Table)
	v.SetDefault(KeyHomeTimeout, nav.HomeTimeout)
	v.SetDefault(KeyRefreshDelay, nav.RefreshDelay)
	v.SetDefault(KeyActionTimeout, browser.DefaultActionTimeout)
	v.SetDefault(KeyLoadTimeout, browser.DefaultLoadTimeout)
	v.SetDefault(KeyItemTimeout, DefaultItemTimeout)
	v.SetDefault(KeyETAWindow, progress.DefaultWindow)
	v.SetDefault(KeyLogFile, "enricher.log")
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags defines the run flags on fs and binds them to v.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("input", "", "input workbook (.xlsx) with a Document_CH321 sheet")
	fs.String("debugger-address", v.GetString(KeyDebuggerAddress), "Chrome remote debugging address")
	fs.String("home-url", v.GetString(KeyHomeURL), "portal page each identifier starts from")
	fs.String("locators", "", "YAML file overriding the built-in locator profile")
	fs.Int("checkpoint-every", v.GetInt(KeyCheckpointEvery), "save the output workbook every N identifiers")
	fs.Float64("rate-limit-rps", v.GetFloat64(KeyRateLimitRPS), "max identifiers started per second, 0 disables")
	fs.Duration("settle-delay", v.GetDuration(KeySettleDelay), "pause after search submit and sub-view clicks")
	fs.Duration("search-timeout", v.GetDuration(KeySearchTimeout), "wait for each search step element")
	fs.Duration("subview-timeout", v.GetDuration(KeySubviewTimeout), "wait for the sub-view menu items to be clickable")
	fs.Duration("script-timeout", v.GetDuration(KeyScriptTimeout), "wait for the script fallback selectors")
	fs.Duration("table-timeout", v.GetDuration(KeyTableTimeout), "wait for the movement table")
	fs.Duration("home-timeout", v.GetDuration(KeyHomeTimeout), "wait for the tab to reach the home page")
	fs.Duration("refresh-delay", v.GetDuration(KeyRefreshDelay), "pause after the fallback reload")
	fs.Duration("action-timeout", v.GetDuration(KeyActionTimeout), "limit for each click, typing or table read")
	fs.Duration("load-timeout", v.GetDuration(KeyLoadTimeout), "limit for each page navigation or reload")
	fs.Duration("item-timeout", v.GetDuration(KeyItemTimeout), "limit for everything done for one identifier")
	fs.Int("eta-window", v.GetInt(KeyETAWindow), "recent identifiers averaged for the ETA")
	fs.String("log-file", v.GetString(KeyLogFile), "log file path, empty disables")
	fs.String("log-level", v.GetString(KeyLogLevel), "debug, info, warn or error")

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// ReadFile merges a config file (any format viper understands) into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		Input:           strings.TrimSpace(v.GetString(KeyInput)),
		DebuggerAddress: strings.TrimSpace(v.GetString(KeyDebuggerAddress)),
		HomeURL:         strings.TrimSpace(v.GetString(KeyHomeURL)),
		Locators:        strings.TrimSpace(v.GetString(KeyLocators)),
		CheckpointEvery: v.GetInt(KeyCheckpointEvery),
		RateLimitRPS:    v.GetFloat64(KeyRateLimitRPS),
		SettleDelay:     v.GetDuration(KeySettleDelay),
		SearchTimeout:   v.GetDuration(KeySearchTimeout),
		SubviewTimeout:  v.GetDuration(KeySubviewTimeout),
		ScriptTimeout:   v.GetDuration(KeyScriptTimeout),
		TableTimeout:    v.GetDuration(KeyTableTimeout),
		HomeTimeout:     v.GetDuration(KeyHomeTimeout),
		RefreshDelay:    v.GetDuration(KeyRefreshDelay),
		ActionTimeout:   v.GetDuration(KeyActionTimeout),
		LoadTimeout:     v.GetDuration(KeyLoadTimeout),
		ItemTimeout:     v.GetDuration(KeyItemTimeout),
		ETAWindow:       v.GetInt(KeyETAWindow),
		LogFile:         strings.TrimSpace(v.GetString(KeyLogFile)),
		LogLevel:        strings.TrimSpace(v.GetString(KeyLogLevel)),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	} else if !strings.EqualFold(filepath.Ext(c.Input), ".xlsx") {
		errs = append(errs, fmt.Errorf("input %q must be an .xlsx workbook", c.Input))
	}
	if c.DebuggerAddress == "" {
		errs = append(errs, errors.New("debugger_address is required"))
	}
	if !strings.HasPrefix(c.HomeURL, "http://") && !strings.HasPrefix(c.HomeURL, "https://") {
		errs = append(errs, fmt.Errorf("home_url %q must be an http(s) URL", c.HomeURL))
	}
	if c.CheckpointEvery < 1 {
		errs = append(errs, fmt.Errorf("checkpoint_every must be >= 1, got %d", c.CheckpointEvery))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_rps must be >= 0, got %g", c.RateLimitRPS))
	}
	for _, w := range []struct {
		key string
		d   time.Duration
	}{
		{KeySearchTimeout, c.SearchTimeout},
		{KeySubviewTimeout, c.SubviewTimeout},
		{KeyScriptTimeout, c.ScriptTimeout},
		{KeyTableTimeout, c.TableTimeout},
		{KeyHomeTimeout, c.HomeTimeout},
		{KeyActionTimeout, c.ActionTimeout},
		{KeyLoadTimeout, c.LoadTimeout},
		{KeyItemTimeout, c.ItemTimeout},
	} {
		if w.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", w.key, w.d))
		}
	}
	if c.SettleDelay < 0 || c.RefreshDelay < 0 {
		errs = append(errs, errors.New("settle_delay and refresh_delay must not be negative"))
	}
	if c.ETAWindow < 1 {
		errs = append(errs, fmt.Errorf("eta_window must be >= 1, got %d", c.ETAWindow))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Timeouts returns the locator waits.
func (c Config) Timeouts() navigate.Timeouts {
	return navigate.Timeouts{
		Search:  c.SearchTimeout,
		Subview: c.SubviewTimeout,
		Script:  c.ScriptTimeout,
		Table:   c.TableTimeout,
	}
}

// Navigation returns the navigator options.
func (c Config) Navigation() navigate.Options {
	return navigate.Options{
		HomeURL:      c.HomeURL,
		SettleDelay:  c.SettleDelay,
		HomeTimeout:  c.HomeTimeout,
		RefreshDelay: c.RefreshDelay,
	}
}
