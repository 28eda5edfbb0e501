// Package main implements the SteamThing daemon, which tracks a Steam
// profile and the matching Discord presence and serves the resulting
// connection status, logs, and game session to a DeskThing display.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	rootpkg "tools.zach/dev/steamthing"
	"tools.zach/dev/steamthing/internal/artwork"
	"tools.zach/dev/steamthing/internal/bridge"
	"tools.zach/dev/steamthing/internal/config"
	"tools.zach/dev/steamthing/internal/controller"
	"tools.zach/dev/steamthing/internal/logger"
	"tools.zach/dev/steamthing/internal/steam"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// resolveVersion returns [version] when it was set at build time, else a
// "dev+<hash>" tag built from the VCS info the toolchain embeds.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// PID Lock
// ///////////////////////////////////////////////

// errAlreadyRunning is returned by [acquirePID] while another daemon holds
// the lock on the same data directory.
var errAlreadyRunning = errors.New("daemon already running")

// pidLock is a held advisory lock on the PID file. The file holds
// "PID:TOKEN"; the token lets [pidLock.Release] tell its own file apart from
// one rewritten by a later instance.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// acquirePID locks the PID file in dp and records this process in it. A
// file left behind by a dead instance is simply taken over, since its lock
// died with it.
func acquirePID(dp DataPaths) (*pidLock, error) {
	f, err := os.OpenFile(dp.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		pid := readPID(f)
		f.Close()
		if pid > 0 {
			return nil, fmt.Errorf("%w (pid %d)", errAlreadyRunning, pid)
		}
		return nil, errAlreadyRunning
	}

	l := &pidLock{path: dp.PID(), token: pidToken(), f: f}
	if err := f.Truncate(0); err != nil {
		l.Release()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), l.token)), 0); err != nil {
		l.Release()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return l, nil
}

// Release unlocks the PID file and removes it if it still carries this
// lock's token.
func (l *pidLock) Release() {
	_ = unlockFile(l.f)
	l.f.Close()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, tok, ok := strings.Cut(string(data), ":"); ok && tok == l.token {
		os.Remove(l.path)
	}
}

func readPID(f *os.File) int {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, 64))
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return pid
}

// ///////////////////////////////////////////////
// Configuration
// ///////////////////////////////////////////////

// envLookup resolves environment overrides from the process environment,
// then from <data-dir>/.env. The .env file is re-read on every call so
// edits land with the next config reload.
func envLookup(dp DataPaths) (func(string) (string, bool), error) {
	file, err := godotenv.Read(dp.Env())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", dp.Env(), err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// loadConfig reads config.toml from dp, writing the default file first
// when none exists, and applies environment overrides.
func loadConfig(dp DataPaths) (*config.Config, error) {
	if _, err := os.Stat(dp.Config()); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o600); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}
	cfg, err := config.LoadFile(dp.Config())
	if err != nil {
		return nil, err
	}
	lookup, err := envLookup(dp)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(lookup)
	return cfg, nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, secrets, and logs")
	toStderr := flag.Bool("stderr", false, "Also write logs to stderr")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(resolveVersion())
		return
	}
	if err := run(DataPaths{Root: *dataDir}, *toStderr); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(dp DataPaths, toStderr bool) error {
	if err := os.MkdirAll(dp.Root, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock, err := acquirePID(dp)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfg, err := loadConfig(dp)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var tee io.Writer
	if toStderr {
		tee = os.Stderr
	}
	log, logCloser := logger.NewLogger(dp.Log(), logger.ParseLevel(cfg.Log.Level), cfg.Log.MaxSizeMB, tee)
	defer logCloser.Close()
	slog.SetDefault(log)
	log.Info("steamthing starting", "version", resolveVersion(), "data_dir", dp.Root)

	ctx, stop := shutdownContext()
	defer stop()

	clock := clockwork.NewRealClock()
	ctrl := controller.New(controller.Options{
		NewProfileAPI: controller.NewSteamAPI(steam.Config{
			BaseURL:  cfg.Steam.APIURL,
			CDNURL:   cfg.Steam.CDNURL,
			RetryMax: cfg.Steam.RetryMax,
			Timeout:  time.Duration(cfg.Steam.TimeoutSeconds) * time.Second,
		}),
		DialFeed: controller.NewLanyardDialer(cfg.Presence.SocketURL, clock, log),
		Assets:   artwork.Assets(assetsDir(cfg.Assets.Dir, dp), rootpkg.PlatformArt()),
		Clock:    clock,
		Logger:   log,
		Ignore:   cfg.GameFilter().Ignored,
	})
	defer ctrl.Stop()

	srv := bridge.NewServer(ctx, ctrl, bridge.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})
	ctrl.SetEmitter(srv.Hub())

	ln, err := bridge.Listen(cfg.Server.Listen)
	if err != nil {
		return err
	}
	log.Info("display bridge listening", "addr", ln.Addr().String())

	watcher, err := config.NewWatcher(dp.Config())
	if err != nil {
		log.Warn("config reload disabled", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			log.Info("using polling mode for config watching")
		}
	}
	go applySettings(ctx, ctrl, dp, cfg, watcher, log)

	err = srv.Serve(ctx, ln)
	log.Info("steamthing stopped")
	return err
}

// applySettings starts the controller, pushes the startup settings into it
// (which auto-connects when configured to), and then re-applies settings and
// the ignore filter each time the config file changes.
func applySettings(ctx context.Context, ctrl *controller.Controller, dp DataPaths, cfg *config.Config, w *config.Watcher, log *slog.Logger) {
	ctrl.Start(ctx)
	ctrl.UpdateSettings(ctx, cfg.Settings())

	var events <-chan struct{}
	if w != nil {
		events = w.Events()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			next, err := loadConfig(dp)
			if err != nil {
				log.Warn("config reload failed, keeping previous settings", "error", err)
				continue
			}
			log.Info("config reloaded")
			ctrl.SetIgnoreFilter(next.GameFilter().Ignored)
			ctrl.UpdateSettings(ctx, next.Settings())
		}
	}
}
