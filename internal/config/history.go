package config

import (
	"log/slog"
	"os"
	"strconv"
)

// HistoryConfig controls the playback history database
type HistoryConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether runs are recorded
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG cache path)
}

// GetDefaultHistoryConfig returns the default history configuration
func GetDefaultHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		Enabled:      true,
		DatabasePath: "",
	}
}

// ApplyHistoryEnvironmentOverrides applies PCMTONE_HISTORY and PCMTONE_HISTORY_DB
func ApplyHistoryEnvironmentOverrides(config *HistoryConfig) *HistoryConfig {
	result := *config

	if enabledStr := os.Getenv("PCMTONE_HISTORY"); enabledStr != "" {
		if enabled, err := strconv.ParseBool(enabledStr); err == nil {
			result.Enabled = enabled
			slog.Debug("applied history override from environment", "value", enabled)
		} else {
			slog.Warn("invalid PCMTONE_HISTORY environment variable", "value", enabledStr, "error", err)
		}
	}

	if path := os.Getenv("PCMTONE_HISTORY_DB"); path != "" {
		result.DatabasePath = path
		slog.Debug("applied history database override from environment", "value", path)
	}

	return &result
}
