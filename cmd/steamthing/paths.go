package main

import (
	"os"
	"path/filepath"

	"tools.zach/dev/steamthing/internal/paths"
)

// DataPaths is the data directory layout.
type DataPaths = paths.DataDir

// defaultDataDir returns ~/.steamthing, or ./.steamthing when the home
// directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// assetsDir returns the artwork override directory: the configured one, else
// <data-dir>/assets.
func assetsDir(configured string, dp DataPaths) string {
	if configured != "" {
		return configured
	}
	return dp.Assets()
}
