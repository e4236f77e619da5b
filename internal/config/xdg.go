package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "pcmtone"

// XDGDirs provides XDG Base Directory compliant paths for pcmtone
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// GetCachePath returns the cache directory path for a specific purpose
func (x *XDGDirs) GetCachePath(purpose string) string {
	return filepath.Join(xdg.CacheHome, appDir, purpose)
}

// GetRuntimePath returns a per-user runtime directory for sockets and locks
func (x *XDGDirs) GetRuntimePath(purpose string) string {
	return filepath.Join(xdg.RuntimeDir, appDir, purpose)
}

// GetConfigPaths returns prioritized paths where config files can be found
// Returns paths in search order: user config dir, then system config dirs
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	paths := []string{filepath.Join(xdg.ConfigHome, appDir, filename)}
	for _, configDir := range xdg.ConfigDirs {
		paths = append(paths, filepath.Join(configDir, appDir, filename))
	}

	slog.Debug("generated config paths",
		"filename", filename,
		"total_paths", len(paths),
		"user_path", paths[0])
	return paths
}

// CreateCacheDir creates the cache directory for a specific purpose
func (x *XDGDirs) CreateCacheDir(purpose string) error {
	cachePath := x.GetCachePath(purpose)
	if err := os.MkdirAll(cachePath, 0o755); err != nil {
		slog.Error("failed to create cache directory", "path", cachePath, "error", err)
		return err
	}
	slog.Debug("cache directory ready", "path", cachePath)
	return nil
}
