// Package config provides configuration loading and defaults for the
// SteamThing daemon.
//
// Configuration is loaded from a TOML file in the user's data directory and
// covers the Steam Web API credentials, the Lanyard presence identity, polling
// behavior, privacy filters, the local display bridge, and logging. The subset
// the controller reacts to at runtime is exposed as [Settings].
package config

//go:generate go run ../../cmd/genconfig

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/steamthing/internal/atomicfile"
	"tools.zach/dev/steamthing/internal/paths"
)

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// Upstream defaults.
const (
	DefaultSteamAPIURL     = "https://api.steampowered.com"
	DefaultSteamCDNURL     = "https://media.steampowered.com/steamcommunity/public/images/apps"
	DefaultLanyardSocket   = "wss://api.lanyard.rest/socket"
	DefaultListenAddr      = "127.0.0.1:8891"
	DefaultRequestTimeoutS = 10
)

// ErrNewerVersion is returned by [Load] when the file was written by a newer
// build than this one.
var ErrNewerVersion = errors.New("config version is newer than supported")

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Steam holds Steam Web API settings.
	Steam SteamConfig `toml:"steam"`
	// Presence holds Lanyard presence feed settings.
	Presence PresenceConfig `toml:"presence"`
	// Behavior holds connection and polling behavior.
	Behavior BehaviorConfig `toml:"behavior"`
	// Privacy holds game filtering settings.
	Privacy PrivacyConfig `toml:"privacy"`
	// Server holds the display bridge listener settings.
	Server ServerConfig `toml:"server"`
	// Assets holds platform artwork settings.
	Assets AssetsConfig `toml:"assets"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// SteamConfig holds Steam Web API settings.
type SteamConfig struct {
	// APIKey is the Steam Web API key. Prefer STEAMTHING_API_KEY in .env.
	APIKey string `toml:"api_key"`
	// SteamID is the 64-bit Steam ID whose profile is polled.
	SteamID string `toml:"steam_id"`
	// APIURL is the Steam Web API base URL.
	APIURL string `toml:"api_url"`
	// CDNURL is the base URL for game icon images.
	CDNURL string `toml:"cdn_url"`
	// RetryMax is the number of HTTP retries per request (0 disables retries).
	RetryMax int `toml:"retry_max"`
	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// PresenceConfig holds Lanyard presence feed settings.
type PresenceConfig struct {
	// DiscordUserID is the Discord user whose activity drives game sessions.
	DiscordUserID string `toml:"discord_user_id"`
	// SocketURL is the Lanyard WebSocket endpoint.
	SocketURL string `toml:"socket_url"`
}

// BehaviorConfig holds connection and polling behavior.
type BehaviorConfig struct {
	// AutoConnect connects to Steam at startup when an API key is present.
	AutoConnect bool `toml:"auto_connect"`
	// PollIntervalSeconds is the profile polling interval (10-300).
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// MaxLogs is the number of display log entries kept in memory (10-1000).
	MaxLogs int `toml:"max_logs"`
}

// PrivacyConfig holds game filtering settings.
type PrivacyConfig struct {
	// IgnoreGames lists glob patterns; matching activity names never start a session.
	IgnoreGames []string `toml:"ignore_games"`
}

// ServerConfig holds the display bridge listener settings.
type ServerConfig struct {
	// Listen is "host:port", "unix:/path/to.sock", or on Windows "pipe:\\.\pipe\name".
	Listen string `toml:"listen"`
	// AllowedOrigins lists CORS origins allowed to reach the bridge.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// AssetsConfig holds platform artwork settings.
type AssetsConfig struct {
	// Dir overrides the embedded xbox.png / playstation.png artwork.
	Dir string `toml:"dir,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, success, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Steam: SteamConfig{
			APIURL:         DefaultSteamAPIURL,
			CDNURL:         DefaultSteamCDNURL,
			RetryMax:       0,
			TimeoutSeconds: DefaultRequestTimeoutS,
		},
		Presence: PresenceConfig{
			SocketURL: DefaultLanyardSocket,
		},
		Behavior: BehaviorConfig{
			AutoConnect:         true,
			PollIntervalSeconds: DefaultPollIntervalSeconds,
			MaxLogs:             DefaultMaxLogs,
		},
		Privacy: PrivacyConfig{
			IgnoreGames: []string{},
		},
		Server: ServerConfig{
			Listen:         DefaultListenAddr,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Privacy.IgnoreGames = []string{"Wallpaper Engine*"}
	return cfg
}

// Settings extracts the runtime settings the controller reacts to.
func (c *Config) Settings() Settings {
	return Settings{
		APIKey:              c.Steam.APIKey,
		TrackedID:           c.Steam.SteamID,
		PresenceID:          c.Presence.DiscordUserID,
		AutoConnect:         c.Behavior.AutoConnect,
		PollIntervalSeconds: c.Behavior.PollIntervalSeconds,
		MaxLogs:             c.Behavior.MaxLogs,
	}
}

// ///////////////////////////////////////////////
// Environment Overrides
// ///////////////////////////////////////////////

// Environment variables that override config values. They are read after the
// daemon loads <data-dir>/.env so secrets can stay out of config.toml.
const (
	EnvAPIKey    = "STEAMTHING_API_KEY"
	EnvSteamID   = "STEAMTHING_STEAM_ID"
	EnvDiscordID = "STEAMTHING_DISCORD_ID"
)

// ApplyEnv overrides credentials and identities from lookup (normally
// os.LookupEnv). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Steam.APIKey, EnvAPIKey)
	set(&c.Steam.SteamID, EnvSteamID)
	set(&c.Presence.DiscordUserID, EnvDiscordID)
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	return LoadFile(filepath.Join(dataDir, paths.ConfigFile))
}

// LoadFile reads and parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}

	if cfg.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d > %d", ErrNewerVersion, cfg.Version, CurrentVersion)
	}
	cfg.Version = CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write. The file
// holds the API key, so it is created owner-only.
func (c *Config) Save(path string) error {
	return atomicfile.WriteWith(path, 0o600, func(w io.Writer) error {
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	})
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "success": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	b := c.Behavior
	if b.PollIntervalSeconds < MinPollIntervalSeconds || b.PollIntervalSeconds > MaxPollIntervalSeconds {
		return fmt.Errorf("invalid poll_interval_seconds %d: must be between %d and %d",
			b.PollIntervalSeconds, MinPollIntervalSeconds, MaxPollIntervalSeconds)
	}
	if b.MaxLogs < MinMaxLogs || b.MaxLogs > MaxMaxLogs {
		return fmt.Errorf("invalid max_logs %d: must be between %d and %d", b.MaxLogs, MinMaxLogs, MaxMaxLogs)
	}

	if err := checkURL("steam.api_url", c.Steam.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("steam.cdn_url", c.Steam.CDNURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("presence.socket_url", c.Presence.SocketURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Steam.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0, got %d", c.Steam.RetryMax)
	}
	if c.Steam.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be > 0, got %d", c.Steam.TimeoutSeconds)
	}

	for _, pattern := range c.Privacy.IgnoreGames {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid ignore_games pattern %q", pattern)
		}
	}

	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen must not be empty")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, success, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}

// checkURL reports an error unless raw parses with one of schemes and a host.
func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an absolute URL", key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: scheme must be %s", key, raw, strings.Join(schemes, " or "))
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// GameFilter reports whether a game name matches one of the ignore patterns.
type GameFilter []string

// GameFilter returns the configured ignore patterns as a matcher.
func (c *Config) GameFilter() GameFilter {
	return GameFilter(c.Privacy.IgnoreGames)
}

// Ignored reports whether name matches any pattern. Matching is
// case-insensitive; invalid patterns are logged and skipped.
func (f GameFilter) Ignored(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range f {
		matched, err := doublestar.Match(strings.ToLower(pattern), lower)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
