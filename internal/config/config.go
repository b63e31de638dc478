package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const appName = "cadence"

// Backends
const (
	BackendAppleScript = "applescript"
	BackendMPRIS       = "mpris"
)

// Config holds application configuration
type Config struct {
	// Player backend: applescript (macOS) or mpris (Linux D-Bus)
	Backend string `mapstructure:"backend" validate:"oneof=applescript mpris"`

	// Bundle identifier used for process lookups and launching
	BundleID string `mapstructure:"bundle_id" validate:"required"`

	// Scripting name used in tell blocks
	AppName string `mapstructure:"app_name" validate:"required"`

	// MPRIS bus name for the mpris backend
	MPRISName string `mapstructure:"mpris_name" validate:"required"`

	// Polling cadence
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=100ms"`

	// Bound on each automation round-trip
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gte=100ms"`

	// Wait after launching the player before prompting for permission
	LaunchSettle time.Duration `mapstructure:"launch_settle" validate:"gte=0"`

	// Wait after next/previous before refreshing
	TrackSettle time.Duration `mapstructure:"track_settle" validate:"gte=0"`

	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Name}}"
	OutputFormat string `mapstructure:"output_format" validate:"required"`

	// Maximum width of the now command's output, 0 for unlimited
	OutputWidth int `mapstructure:"output_width" validate:"gte=0"`

	// Scroll text wider than OutputWidth instead of truncating it
	Marquee bool `mapstructure:"marquee"`

	// Marquee speed in characters per second
	MarqueeSpeed int `mapstructure:"marquee_speed" validate:"gte=1"`

	// Text placed between repetitions of a scrolling line
	MarqueeSeparator string `mapstructure:"marquee_separator"`

	// Log level: debug, info, warn or error
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Directory for the journal and the snapshot file
	StateDir string `mapstructure:"state_dir" validate:"required"`
}

// SnapshotPath is where the daemon publishes its latest snapshot
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.StateDir, "snapshot.json")
}

// JournalPath is the SQLite diagnostic journal
func (c *Config) JournalPath() string {
	return filepath.Join(c.StateDir, "journal.db")
}

// LogPath is the daemon's log file when run under launchd
func (c *Config) LogPath() string {
	return filepath.Join(c.StateDir, "cadence.log")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendAppleScript)
	v.SetDefault("bundle_id", "com.spotify.client")
	v.SetDefault("app_name", "Spotify")
	v.SetDefault("mpris_name", "org.mpris.MediaPlayer2.spotify")
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("call_timeout", 5*time.Second)
	v.SetDefault("launch_settle", 2*time.Second)
	v.SetDefault("track_settle", 500*time.Millisecond)
	v.SetDefault("output_format", "{{.Artist}} - {{.Name}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("log_level", "info")
	v.SetDefault("state_dir", filepath.Join(xdg.StateHome, appName))
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	return load(GetConfigDir(), ".")
}

func load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CADENCE")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (got %v)", fe.Field(), fe.Tag()+paramSuffix(fe.Param()), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func paramSuffix(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}

// GetConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func GetConfigDir() string {
	configDir := filepath.Join(xdg.ConfigHome, appName)
	_ = os.MkdirAll(configDir, 0755)
	return configDir
}

// Save writes configuration to file
func (c *Config) Save() error {
	return c.saveTo(filepath.Join(GetConfigDir(), "config.yaml"))
}

func (c *Config) saveTo(configFile string) error {
	v := viper.New()

	v.Set("backend", c.Backend)
	v.Set("bundle_id", c.BundleID)
	v.Set("app_name", c.AppName)
	v.Set("mpris_name", c.MPRISName)
	v.Set("poll_interval", c.PollInterval.String())
	v.Set("call_timeout", c.CallTimeout.String())
	v.Set("launch_settle", c.LaunchSettle.String())
	v.Set("track_settle", c.TrackSettle.String())
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee", c.Marquee)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("log_level", c.LogLevel)
	v.Set("state_dir", c.StateDir)

	return v.WriteConfigAs(configFile)
}
