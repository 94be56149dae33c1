// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Device backends.
const (
	BackendCDP     = "cdp"
	BackendAndroid = "android"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Harness() HarnessConfig
	Devices() map[string]DeviceConfig
	Relays() map[string]RelayConfig
	Database() DatabaseConfig
	Report() ReportConfig
	Scenario() ScenarioConfig

	SetDatabaseURL(string)
	SetReportPath(string)
	SetCharDelay(time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig            `mapstructure:"logger" yaml:"logger"`
	HarnessCfg  HarnessConfig           `mapstructure:"harness" yaml:"harness"`
	DevicesCfg  map[string]DeviceConfig `mapstructure:"devices" yaml:"devices"`
	RelaysCfg   map[string]RelayConfig  `mapstructure:"relays" yaml:"relays"`
	DatabaseCfg DatabaseConfig          `mapstructure:"database" yaml:"database"`
	ReportCfg   ReportConfig            `mapstructure:"report" yaml:"report"`
	ScenarioCfg ScenarioConfig          `mapstructure:"scenario" yaml:"scenario"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Harness() HarnessConfig           { return c.HarnessCfg }
func (c *Config) Devices() map[string]DeviceConfig { return c.DevicesCfg }
func (c *Config) Relays() map[string]RelayConfig   { return c.RelaysCfg }
func (c *Config) Database() DatabaseConfig         { return c.DatabaseCfg }
func (c *Config) Report() ReportConfig             { return c.ReportCfg }
func (c *Config) Scenario() ScenarioConfig         { return c.ScenarioCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetDatabaseURL(url string)    { c.DatabaseCfg.URL = url }
func (c *Config) SetReportPath(path string)    { c.ReportCfg.Path = path }
func (c *Config) SetCharDelay(d time.Duration) { c.HarnessCfg.CharDelay = d }

// DeviceNames returns the configured device names in sorted order. Viper
// lower-cases map keys, so names are always lower case.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.DevicesCfg))
	for n := range c.DevicesCfg {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

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

// HarnessConfig tunes the drivers shared by every scenario.
type HarnessConfig struct {
	// CharDelay is the pause after each on-screen key click.
	CharDelay       time.Duration `mapstructure:"char_delay" yaml:"char_delay"`
	ScrollingTries  int           `mapstructure:"scrolling_tries" yaml:"scrolling_tries"`
	PopupCheckTries int           `mapstructure:"popup_check_tries" yaml:"popup_check_tries"`
	PopupCheckSleep time.Duration `mapstructure:"popup_check_sleep" yaml:"popup_check_sleep"`
	// OpenTimeout bounds the concurrent startup of all device backends.
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

// DeviceConfig describes one device under test.
type DeviceConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Resources string `mapstructure:"resources" yaml:"resources"`
	// MaxDistance is the perceptual hash distance accepted as a template match.
	MaxDistance int           `mapstructure:"max_distance" yaml:"max_distance"`
	CDP         CDPConfig     `mapstructure:"cdp" yaml:"cdp"`
	Android     AndroidConfig `mapstructure:"android" yaml:"android"`
}

// CDPConfig drives a browser-hosted HMI through the DevTools protocol.
type CDPConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	Args          []string      `mapstructure:"args" yaml:"args"`
	Width         int           `mapstructure:"width" yaml:"width"`
	Height        int           `mapstructure:"height" yaml:"height"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	SwipeSteps    int           `mapstructure:"swipe_steps" yaml:"swipe_steps"`
}

// AndroidConfig drives a device over adb.
type AndroidConfig struct {
	ADBPath       string            `mapstructure:"adb_path" yaml:"adb_path"`
	Serial        string            `mapstructure:"serial" yaml:"serial"`
	Hierarchy     bool              `mapstructure:"hierarchy" yaml:"hierarchy"`
	Touch         string            `mapstructure:"touch" yaml:"touch"`
	MinitouchPort int               `mapstructure:"minitouch_port" yaml:"minitouch_port"`
	MoveRate      float64           `mapstructure:"move_rate" yaml:"move_rate"`
	Keycodes      map[string]string `mapstructure:"keycodes" yaml:"keycodes"`
}

// RelayConfig holds the commands driving one relay channel.
type RelayConfig struct {
	On     []string `mapstructure:"on" yaml:"on"`
	Off    []string `mapstructure:"off" yaml:"off"`
	Status []string `mapstructure:"status" yaml:"status"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ReportConfig controls the JSON run report.
type ReportConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Indent bool   `mapstructure:"indent" yaml:"indent"`
}

// ScenarioConfig parameterises the built-in scenarios.
type ScenarioConfig struct {
	HeadUnit string `mapstructure:"head_unit" yaml:"head_unit"`
	Phone    string `mapstructure:"phone" yaml:"phone"`
	// HeadUnitName and PhoneName are the Bluetooth names each peer shows.
	HeadUnitName string `mapstructure:"head_unit_name" yaml:"head_unit_name"`
	PhoneName    string `mapstructure:"phone_name" yaml:"phone_name"`
	PhonePIN     string `mapstructure:"phone_pin" yaml:"phone_pin"`
	SettingsApp  string `mapstructure:"settings_app" yaml:"settings_app"`
	SettingsMenu string `mapstructure:"settings_menu" yaml:"settings_menu"`

	BootTime         time.Duration `mapstructure:"boot_time" yaml:"boot_time"`
	ShutdownTime     time.Duration `mapstructure:"shutdown_time" yaml:"shutdown_time"`
	SwitchingDelay   time.Duration `mapstructure:"switching_delay" yaml:"switching_delay"`
	ProgModeBootTime time.Duration `mapstructure:"prog_mode_boot_time" yaml:"prog_mode_boot_time"`
	FlashCommand     []string      `mapstructure:"flash_command" yaml:"flash_command"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "hmi-harness")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Harness --
	v.SetDefault("harness.char_delay", "100ms")
	v.SetDefault("harness.scrolling_tries", 4)
	v.SetDefault("harness.popup_check_tries", 10)
	v.SetDefault("harness.popup_check_sleep", "200ms")
	v.SetDefault("harness.open_timeout", "60s")

	// -- Scenario --
	v.SetDefault("scenario.head_unit", "headunit")
	v.SetDefault("scenario.phone", "phone")
	v.SetDefault("scenario.head_unit_name", "Head Unit")
	v.SetDefault("scenario.phone_name", "moto e13")
	v.SetDefault("scenario.phone_pin", "2211")
	v.SetDefault("scenario.settings_app", "Settings")
	v.SetDefault("scenario.settings_menu", "Connected devices")
	v.SetDefault("scenario.boot_time", "30s")
	v.SetDefault("scenario.shutdown_time", "2s")
	v.SetDefault("scenario.switching_delay", "1s")
	v.SetDefault("scenario.prog_mode_boot_time", "5s")
	v.SetDefault("scenario.flash_command", []string{})

	// -- Report --
	v.SetDefault("report.path", "")
	v.SetDefault("report.indent", true)

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "HMI_DATABASE_URL")
	_ = v.BindEnv("scenario.phone_pin", "HMI_PHONE_PIN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDeviceDefaults fills per-device fields that viper cannot default
// because device names are only known after the file is read.
func (c *Config) applyDeviceDefaults() {
	for name, d := range c.DevicesCfg {
		d.Backend = strings.ToLower(strings.TrimSpace(d.Backend))
		if d.Backend == BackendCDP {
			if d.CDP.Width == 0 {
				d.CDP.Width = 1280
			}
			if d.CDP.Height == 0 {
				d.CDP.Height = 720
			}
			if d.CDP.ActionTimeout == 0 {
				d.CDP.ActionTimeout = 10 * time.Second
			}
			if d.CDP.SwipeSteps == 0 {
				d.CDP.SwipeSteps = 10
			}
		}
		if d.Backend == BackendAndroid && d.Android.ADBPath == "" {
			d.Android.ADBPath = "adb"
		}
		c.DevicesCfg[name] = d
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.HarnessCfg.Validate(); err != nil {
		return fmt.Errorf("harness configuration invalid: %w", err)
	}
	var errs []error
	if c.ScenarioCfg.HeadUnit == "" || c.ScenarioCfg.Phone == "" {
		errs = append(errs, fmt.Errorf("scenario.head_unit and scenario.phone must name devices"))
	}
	for _, name := range c.DeviceNames() {
		if err := c.DevicesCfg[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("devices.%s: %w", name, err))
		}
	}
	for name, r := range c.RelaysCfg {
		if len(r.On) == 0 || len(r.Off) == 0 {
			errs = append(errs, fmt.Errorf("relays.%s: on and off commands are required", name))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the harness tuning values.
func (h *HarnessConfig) Validate() error {
	if h.CharDelay < 0 {
		return fmt.Errorf("harness.char_delay must not be negative")
	}
	if h.ScrollingTries <= 0 {
		return fmt.Errorf("harness.scrolling_tries must be a positive integer")
	}
	if h.PopupCheckTries <= 0 {
		return fmt.Errorf("harness.popup_check_tries must be a positive integer")
	}
	if h.PopupCheckSleep < 0 {
		return fmt.Errorf("harness.popup_check_sleep must not be negative")
	}
	return nil
}

// Validate checks a single device entry.
func (d DeviceConfig) Validate() error {
	if d.Resources == "" {
		return fmt.Errorf("resources file is required")
	}
	if d.MaxDistance < 0 {
		return fmt.Errorf("max_distance must not be negative")
	}
	switch d.Backend {
	case BackendCDP:
		if d.CDP.URL == "" {
			return fmt.Errorf("cdp.url is required")
		}
	case BackendAndroid:
		switch d.Android.Touch {
		case "", "input", "minitouch":
		default:
			return fmt.Errorf("android.touch %q is not one of input, minitouch", d.Android.Touch)
		}
	default:
		return fmt.Errorf("unknown backend %q", d.Backend)
	}
	return nil
}
