// Package artwork resolves game artwork into embeddable data URIs.
//
// Console platforms map to bundled logos. Everything else is looked up on
// Steam: the tracked player's current app id is matched against their
// recently played games to find the icon hash, and the icon is fetched from
// the CDN. Failures are logged through the resolver's callback and yield "".
package artwork

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/steam"
)

// RecentGamesCount is how many recent games are searched for the icon.
const RecentGamesCount = 10

// platformFiles maps lower-cased platform names to their logo file.
var platformFiles = map[string]string{
	"xbox":        "xbox.png",
	"playstation": "playstation.png",
	"ps4":         "playstation.png",
	"ps5":         "playstation.png",
}

// SteamAPI is the subset of [steam.Client] the resolver needs.
type SteamAPI interface {
	PlayerSummary(ctx context.Context, steamID string) (*steam.PlayerSummary, error)
	RecentlyPlayedGames(ctx context.Context, steamID string, count int) ([]steam.RecentGame, error)
	FetchImage(ctx context.Context, rawURL string) ([]byte, string, error)
	IconURL(appID int, iconHash string) string
}

// SteamContext is present only while connected with a tracked id.
type SteamContext struct {
	API     SteamAPI
	SteamID string
}

// Resolver turns a platform and Steam context into a data URI.
type Resolver struct {
	assets fs.FS
	log    func(logger.Level, string)
}

// New returns a Resolver reading platform logos from assets. log receives
// display log lines; it may be nil.
func New(assets fs.FS, log func(logger.Level, string)) *Resolver {
	if log == nil {
		log = func(logger.Level, string) {}
	}
	return &Resolver{assets: assets, log: log}
}

// IsConsole reports whether platform has bundled artwork.
func IsConsole(platform string) bool {
	_, ok := platformFiles[normalize(platform)]
	return ok
}

// Resolve returns artwork for the current game, or "" when none is found.
func (r *Resolver) Resolve(ctx context.Context, platform string, sc *SteamContext) string {
	if file, ok := platformFiles[normalize(platform)]; ok {
		return r.platformArt(platform, file)
	}
	if sc == nil || sc.API == nil || sc.SteamID == "" {
		r.log(logger.Warn, "Cannot get game image - not connected or no Steam ID")
		return ""
	}
	uri, err := r.steamIcon(ctx, sc)
	if err != nil {
		r.log(logger.Error, "Failed to get game image: "+err.Error())
		return ""
	}
	return uri
}

func (r *Resolver) platformArt(platform, file string) string {
	data, err := fs.ReadFile(r.assets, file)
	if err != nil {
		r.log(logger.Error, fmt.Sprintf("Failed to read %s artwork: %v", file, err))
		return ""
	}
	r.log(logger.Info, fmt.Sprintf("%s platform detected - using %s", platform, file))
	return steam.DataURI("image/png", data)
}

func (r *Resolver) steamIcon(ctx context.Context, sc *SteamContext) (string, error) {
	player, err := sc.API.PlayerSummary(ctx, sc.SteamID)
	if err != nil {
		return "", err
	}
	if player.GameID == "" {
		r.log(logger.Info, "Player is not currently in a game")
		return "", nil
	}
	appID, err := strconv.Atoi(player.GameID)
	if err != nil {
		return "", fmt.Errorf("unexpected game id %q", player.GameID)
	}

	games, err := sc.API.RecentlyPlayedGames(ctx, sc.SteamID, RecentGamesCount)
	if err != nil {
		return "", err
	}
	var match *steam.RecentGame
	for i := range games {
		if games[i].AppID == appID && games[i].ImgIconURL != "" {
			match = &games[i]
			break
		}
	}
	if match == nil {
		r.log(logger.Warn, fmt.Sprintf("Game with app ID %d not found in recently played games", appID))
		return "", nil
	}

	r.log(logger.Info, "Fetching game icon from Steam CDN: "+match.Name)
	data, mime, err := sc.API.FetchImage(ctx, sc.API.IconURL(match.AppID, match.ImgIconURL))
	if err != nil {
		return "", fmt.Errorf("fetching icon for %s: %w", match.Name, err)
	}
	r.log(logger.Success, "Fetched game image for: "+match.Name)
	return steam.DataURI(mime, data), nil
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// ///////////////////////////////////////////////
// Asset Overlay
// ///////////////////////////////////////////////

// Assets returns fallback when dir is empty, otherwise an FS that reads from
// dir first and falls back to fallback for files dir lacks.
func Assets(dir string, fallback fs.FS) fs.FS {
	if dir == "" {
		return fallback
	}
	return overlayFS{top: os.DirFS(dir), bottom: fallback}
}

type overlayFS struct {
	top, bottom fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.top.Open(name)
	if err == nil {
		return f, nil
	}
	return o.bottom.Open(name)
}
