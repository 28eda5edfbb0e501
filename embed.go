// Package steamthing provides embedded assets for the SteamThing daemon.
//
// The root package exists to embed files that live at the repository root:
// [DefaultConfigTOML], copied to the data directory on first run, and
// [PlatformArt], the console artwork used when a game is played on a
// non-Steam platform.
package steamthing

import (
	"embed"
	"io/fs"
)

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

//go:embed assets/*.png
var platformArt embed.FS

// PlatformArt returns the embedded artwork rooted so that "xbox.png" and
// "playstation.png" resolve directly.
func PlatformArt() fs.FS {
	sub, err := fs.Sub(platformArt, "assets")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return sub
}
