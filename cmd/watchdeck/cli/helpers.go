package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/watchdeck/watchdeck/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// WATCHDECK_DATA_DIR env var, or ~/.watchdeck as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("WATCHDECK_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.watchdeck"
}

// openStore opens the database configured under the "database" config keys.
// With no configuration this is a SQLite file inside the data directory.
func openStore() (*store.Store, error) {
	driver := viper.GetString("database.driver")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := viper.GetString("database.dsn")
	if dsn == "" && driver == "sqlite" {
		dsn = resolveDataDir()
	}
	return store.Open(driver, dsn)
}

// newLogger builds a slog logger from the "log" config keys.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(viper.GetString("log.format")) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
