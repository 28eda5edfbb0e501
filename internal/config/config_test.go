// Tests for the config package covering [Load] behavior (defaults, overrides,
// missing files, malformed input, newer versions), validation
// ([Config.Validate]), environment overrides ([Config.ApplyEnv]), privacy
// filtering ([GameFilter]), [Config.Save] round-trips, and [ConfigDocs]
// completeness.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

// writeConfig writes content to dir/config.toml.
func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		noFile  bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "missing file yields defaults",
			noFile: true,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !reflect.DeepEqual(cfg, DefaultConfig()) {
					t.Errorf("cfg = %+v, want defaults", cfg)
				}
			},
		},
		{
			name:   "defaults from minimal config",
			config: "version = 1\n",
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Behavior.PollIntervalSeconds != 30 || cfg.Behavior.MaxLogs != 100 || !cfg.Behavior.AutoConnect {
					t.Errorf("behavior = %+v, want defaults", cfg.Behavior)
				}
				if cfg.Presence.SocketURL != DefaultLanyardSocket {
					t.Errorf("SocketURL = %q", cfg.Presence.SocketURL)
				}
			},
		},
		{
			name: "user overrides applied",
			config: `
version = 1

[steam]
api_key = "ABCDEF"
steam_id = "76561198000000000"

[presence]
discord_user_id = "94490510688792576"

[behavior]
auto_connect = false
poll_interval_seconds = 60
max_logs = 500
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				s := cfg.Settings()
				want := Settings{
					APIKey:              "ABCDEF",
					TrackedID:           "76561198000000000",
					PresenceID:          "94490510688792576",
					AutoConnect:         false,
					PollIntervalSeconds: 60,
					MaxLogs:             500,
				}
				if s != want {
					t.Errorf("Settings() = %+v, want %+v", s, want)
				}
			},
		},
		{
			name:    "malformed toml",
			config:  "version = \n[steam",
			wantErr: true,
		},
		{
			name:    "out of range interval",
			config:  "[behavior]\npoll_interval_seconds = 5\n",
			wantErr: true,
		},
		{
			name:    "newer version",
			config:  "version = 99\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.noFile {
				writeConfig(t, dir, tt.config)
			}
			cfg, err := Load(dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_NewerVersionSentinel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "version = 2\n")
	_, err := Load(dir)
	if !errors.Is(err, ErrNewerVersion) {
		t.Errorf("err = %v, want ErrNewerVersion", err)
	}
}

// ///////////////////////////////////////////////
// Validate
// ///////////////////////////////////////////////

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"interval low", func(c *Config) { c.Behavior.PollIntervalSeconds = 9 }, "poll_interval_seconds"},
		{"interval high", func(c *Config) { c.Behavior.PollIntervalSeconds = 301 }, "poll_interval_seconds"},
		{"interval bounds ok", func(c *Config) { c.Behavior.PollIntervalSeconds = 300 }, ""},
		{"max logs low", func(c *Config) { c.Behavior.MaxLogs = 9 }, "max_logs"},
		{"max logs high", func(c *Config) { c.Behavior.MaxLogs = 1001 }, "max_logs"},
		{"api url scheme", func(c *Config) { c.Steam.APIURL = "ftp://steam" }, "steam.api_url"},
		{"cdn url relative", func(c *Config) { c.Steam.CDNURL = "/images" }, "steam.cdn_url"},
		{"socket needs ws", func(c *Config) { c.Presence.SocketURL = "https://api.lanyard.rest/socket" }, "presence.socket_url"},
		{"negative retries", func(c *Config) { c.Steam.RetryMax = -1 }, "retry_max"},
		{"zero timeout", func(c *Config) { c.Steam.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"bad glob", func(c *Config) { c.Privacy.IgnoreGames = []string{"[unclosed"} }, "ignore_games"},
		{"empty listen", func(c *Config) { c.Server.Listen = " " }, "server.listen"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log level success", func(c *Config) { c.Log.Level = "SUCCESS" }, ""},
		{"log size", func(c *Config) { c.Log.MaxSizeMB = 0 }, "max_size_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

// ///////////////////////////////////////////////
// ApplyEnv
// ///////////////////////////////////////////////

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIKey:    " from-env ",
		EnvSteamID:   "",
		EnvDiscordID: "1234",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.Steam.SteamID = "from-file"
	cfg.ApplyEnv(lookup)

	if cfg.Steam.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want trimmed env value", cfg.Steam.APIKey)
	}
	if cfg.Steam.SteamID != "from-file" {
		t.Errorf("empty env var overrode SteamID: %q", cfg.Steam.SteamID)
	}
	if cfg.Presence.DiscordUserID != "1234" {
		t.Errorf("DiscordUserID = %q", cfg.Presence.DiscordUserID)
	}
}

// ///////////////////////////////////////////////
// GameFilter
// ///////////////////////////////////////////////

func TestGameFilter(t *testing.T) {
	f := GameFilter{"*launcher*", "Wallpaper Engine", "[bad"}
	tests := []struct {
		name string
		want bool
	}{
		{"EA Launcher", true},
		{"Ubisoft LAUNCHER beta", true},
		{"wallpaper engine", true},
		{"Wallpaper Engine 2", false},
		{"Hades", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Ignored(tt.name); got != tt.want {
				t.Errorf("Ignored(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Save
// ///////////////////////////////////////////////

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := ExampleConfig()
	cfg.Steam.APIKey = "secret"
	cfg.Assets.Dir = filepath.Join(dir, "art")

	if err := cfg.Save(filepath.Join(dir, "config.toml")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

// ///////////////////////////////////////////////
// ConfigDocs
// ///////////////////////////////////////////////

// TestConfigDocsCoverAllKeys encodes the example config and checks that every
// leaf key has a documentation entry, so genconfig never emits a bare key.
func TestConfigDocsCoverAllKeys(t *testing.T) {
	cfg := ExampleConfig()
	cfg.Assets.Dir = "x"

	var m map[string]any
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	var walk func(prefix string, v map[string]any)
	walk = func(prefix string, v map[string]any) {
		for k, val := range v {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(path, sub)
				continue
			}
			if _, ok := ConfigDocs[path]; !ok {
				t.Errorf("ConfigDocs missing entry for %q", path)
			}
		}
	}
	walk("", m)
}
