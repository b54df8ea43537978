// Package config loads the supervisor's configuration, layering a config
// file, environment variables, and secret files so device credentials
// can be supplied without landing in plain config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one supervisor process.
type Config struct {
	System    SystemConfig    `mapstructure:"system"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	MQueue    MQueueConfig    `mapstructure:"mqueue"`
	NTP       NTPConfig       `mapstructure:"ntp"`
	Updater   UpdaterConfig   `mapstructure:"updater"`
	Log       LogConfig       `mapstructure:"log"`
}

// SystemConfig identifies the device this supervisor runs on.
type SystemConfig struct {
	DeviceID            string `mapstructure:"device_id" validate:"required"`
	LocationDescription string `mapstructure:"location_description"`
}

// AuthConfig holds the OAuth client credentials used to authenticate the
// device against the cloud channel's identity provider.
type AuthConfig struct {
	AuthURL      string `mapstructure:"auth_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

// WebsocketConfig configures the cloud channel.
type WebsocketConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	BroadcastInitialState  bool          `mapstructure:"broadcast_initial_state"`
	HeartBeatLoopDuration  time.Duration `mapstructure:"heartbeat_loop_duration"`
	HeartBeatEvery         time.Duration `mapstructure:"heartbeat_every"`
	TestDomain             string        `mapstructure:"test_domain"`
	ConnectionInterval     time.Duration `mapstructure:"connection_interval"`
	ConnectionTimeout      time.Duration `mapstructure:"connection_timeout"`
	GroupName              string        `mapstructure:"group_name"`
}

// ConnectionIntervalOrDefault returns the configured reconnect interval,
// falling back to 5s if unset (e.g. when a Config is built directly in a
// test rather than through Load).
func (w WebsocketConfig) ConnectionIntervalOrDefault() time.Duration {
	if w.ConnectionInterval > 0 {
		return w.ConnectionInterval
	}
	return 5 * time.Second
}

// ConnectionTimeoutOrDefault returns the configured connect timeout,
// falling back to 30s if unset.
func (w WebsocketConfig) ConnectionTimeoutOrDefault() time.Duration {
	if w.ConnectionTimeout > 0 {
		return w.ConnectionTimeout
	}
	return 30 * time.Second
}

// MQueueConfig configures the local bus adapter: ListenAddress is where
// this supervisor binds to answer requests from its siblings, and Servers
// maps each sibling component name to the address the supervisor dials to
// reach it, so core and scheduler each get their own endpoint instead of
// the supervisor dialing itself.
type MQueueConfig struct {
	ListenAddress string            `mapstructure:"listen_address" validate:"required"`
	Servers       map[string]string `mapstructure:"servers" validate:"required,min=1"`
	ClientID      string            `mapstructure:"client_id"`
	SubjectRoot   string            `mapstructure:"subject_root"`
}

// NTPConfig configures the NTP reachability monitor.
type NTPConfig struct {
	Servers       []string      `mapstructure:"servers" validate:"required,min=1"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// UpdaterConfig configures the update orchestrator.
type UpdaterConfig struct {
	GithubAccount        string        `mapstructure:"github_account"`
	IncludePrerelease    bool          `mapstructure:"include_prerelease"`
	CheckInterval        time.Duration `mapstructure:"check_interval"`
	DockerComposePath    string        `mapstructure:"docker_compose_path"`
	CoreInstallPath      string        `mapstructure:"core_install_path"`
	BackupPath           string        `mapstructure:"backup_path"`
	RequestDir           string        `mapstructure:"request_dir"`
	StatusPollTimeout    time.Duration `mapstructure:"status_poll_timeout"`
}

// LogConfig mirrors pkg/logger.Config, plumbed through the supervisor's
// own configuration rather than constructed ad hoc by callers.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load resolves configuration from, in ascending priority: built-in
// defaults, an optional config file at path, environment variables
// (SUPERVISOR_SECTION_FIELD), and finally secret files referenced by
// *_FILE environment variables (for ClientSecret and Password, the two
// fields a deployment is expected to keep out of plain env vars).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("supervisor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := applySecretFiles(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.broadcast_initial_state", true)
	v.SetDefault("websocket.heartbeat_loop_duration", 30*time.Second)
	v.SetDefault("websocket.heartbeat_every", 5*time.Second)
	v.SetDefault("websocket.connection_interval", 5*time.Second)
	v.SetDefault("websocket.connection_timeout", 30*time.Second)
	v.SetDefault("websocket.group_name", "dunebugger")

	v.SetDefault("mqueue.listen_address", "/run/dunebugger/remote-bus.sock")
	v.SetDefault("mqueue.servers", map[string]string{
		"core":      "/run/dunebugger/core-bus.sock",
		"scheduler": "/run/dunebugger/scheduler-bus.sock",
	})
	v.SetDefault("mqueue.subject_root", "dunebugger")

	v.SetDefault("ntp.servers", []string{"pool.ntp.org"})
	v.SetDefault("ntp.check_interval", 5*time.Minute)
	v.SetDefault("ntp.timeout", 2*time.Second)

	v.SetDefault("updater.check_interval", 6*time.Hour)
	v.SetDefault("updater.include_prerelease", false)
	v.SetDefault("updater.request_dir", "/var/lib/dunebugger/update-requests")
	v.SetDefault("updater.status_poll_timeout", 600*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// configValidator runs the struct-tag validation declared above. A single
// package-level instance is reused across Validate calls, matching the
// teacher's own pattern of constructing the validator once.
var configValidator = validator.New()

// Validate rejects configurations that would otherwise fail far from here,
// e.g. partway through authenticating the cloud channel. Structural checks
// (required fields, non-empty server lists) run as a single validator.Struct
// pass over the tags above; the one rule struct tags can't express cleanly
// on their own, a field required only conditionally on another top-level
// section, is checked by hand afterward, matching the teacher's own
// tags-then-cross-field-rules validation layering.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.Websocket.Enabled {
		if c.Auth.AuthURL == "" || c.Auth.ClientID == "" {
			return fmt.Errorf("config: auth.auth_url and auth.client_id are required when websocket.enabled is true")
		}
	}
	return nil
}
