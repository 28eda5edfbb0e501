// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "steamthing.pid"
	ConfigFile = "config.toml"
	EnvFile    = ".env"
	LogFile    = "steamthing.log"
	AssetsDir  = "assets"
)

// Binary and directory names.
const (
	BinaryName = "steamthing"
	DataDirRel = ".steamthing" // relative to $HOME
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Env returns the full path to the optional .env file holding secrets.
func (d DataDir) Env() string { return filepath.Join(d.Root, EnvFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Assets returns the default directory for platform artwork overrides.
func (d DataDir) Assets() string { return filepath.Join(d.Root, AssetsDir) }
