package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "steam.api_key") to
// their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Steam ────────────────────────────────────────────────────
	"steam": {
		Comment: "Steam Web API access. Get a key at https://steamcommunity.com/dev/apikey",
	},
	"steam.api_key": {
		Comment: "Steam Web API key. STEAMTHING_API_KEY (environment or .env in the data dir) overrides it.",
	},
	"steam.steam_id": {
		Comment: "64-bit Steam ID whose profile is shown (STEAMTHING_STEAM_ID overrides).",
		Alternatives: []string{
			`# steam_id = "76561197960435530"`,
		},
	},
	"steam.api_url":         {Comment: "Steam Web API base URL."},
	"steam.cdn_url":         {Comment: "Base URL for game icons: {cdn_url}/{appid}/{icon_hash}.jpg"},
	"steam.retry_max":       {Comment: "HTTP retries per request. Polls already repeat on their own, so 0 is usual."},
	"steam.timeout_seconds": {Comment: "Per-request timeout for Steam API and image fetches."},

	// ── Presence ─────────────────────────────────────────────────
	"presence": {
		Comment: "Live game detection through Lanyard (https://github.com/Phineas/lanyard).\nJoin the Lanyard Discord server so your presence is visible to it.",
	},
	"presence.discord_user_id": {
		Comment: "Discord user ID to follow. Leave empty to disable live session tracking\n(STEAMTHING_DISCORD_ID overrides).",
	},
	"presence.socket_url": {Comment: "Lanyard WebSocket endpoint."},

	// ── Behavior ─────────────────────────────────────────────────
	"behavior.auto_connect": {
		Comment: "Connect to Steam at startup when an API key is configured.",
	},
	"behavior.poll_interval_seconds": {
		Comment: "How often to refresh the Steam profile while a display is subscribed (10-300).",
		Alternatives: []string{
			`# poll_interval_seconds = 60`,
		},
	},
	"behavior.max_logs": {
		Comment: "Activity log entries kept in memory for the display (10-1000).",
	},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy.ignore_games": {
		Comment: "Glob patterns (case-insensitive) for games that never start a session.",
		Alternatives: []string{
			`# ignore_games = ["*Launcher*", "Spotify"]`,
		},
	},

	// ── Server ───────────────────────────────────────────────────
	"server": {
		Comment: "Local bridge the display connects to (HTTP + WebSocket at /ws).",
	},
	"server.listen": {
		Comment: "Listen address: \"host:port\", \"unix:/path/to.sock\", or on Windows \"pipe:\\\\.\\pipe\\steamthing\".",
		Alternatives: []string{
			`# listen = "unix:/tmp/steamthing.sock"`,
		},
	},
	"server.allowed_origins": {Comment: "CORS origins allowed to call the bridge."},

	// ── Assets ───────────────────────────────────────────────────
	"assets.dir": {
		Comment: "Directory with xbox.png / playstation.png overriding the built-in console artwork.",
		Alternatives: []string{
			`# dir = "/home/me/.steamthing/assets"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"success\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
