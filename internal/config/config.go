package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"pcmtone.click/internal/pcm"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// Config represents pcmtone configuration
type Config struct {
	Device          string             `json:"device"`           // Playback device name, e.g. plughw:0,0
	AudioBackend    string             `json:"audio_backend"`    // auto, malgo, oto, system_command or null
	Frequency       float64            `json:"frequency"`        // Tone frequency in Hz
	DurationSeconds float64            `json:"duration_seconds"` // Tone length
	SampleRate      uint32             `json:"sample_rate"`      // Requested rate; the device may pick a nearby one
	Channels        uint32             `json:"channels"`
	Periods         uint32             `json:"periods"`
	Repeat          int                `json:"repeat"`    // Times the buffer is written
	Volume          float64            `json:"volume"`    // 0.0 to 1.0 of full scale
	Format          string             `json:"format"`    // Sample format, e.g. s16le
	Drain           bool               `json:"drain"`     // Drain instead of drop when playback ends
	LogLevel        string             `json:"log_level"` // Stderr log level; empty logs to the file only
	FileLogging     *FileLoggingConfig `json:"file_logging,omitempty"`
	History         *HistoryConfig     `json:"history,omitempty"`
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
	GetRuntimePath(purpose string) string
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validAudioBackends = []string{"auto", "malgo", "oto", "system_command", "null"}
)

// NewConfigManager creates a configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager over fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	return NewConfigManagerWithDependencies(NewXDGDirs(), fs)
}

// NewConfigManagerWithDependencies creates a configuration manager with injected paths and filesystem
func NewConfigManagerWithDependencies(xdg XDGInterface, fs afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{xdg: xdg, fs: fs}
}

// Filesystem returns the filesystem the manager reads and writes
func (cm *ConfigManager) Filesystem() afero.Fs {
	return cm.fs
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	return &Config{
		Device:          "default",
		AudioBackend:    "auto",
		Frequency:       440,
		DurationSeconds: 5,
		SampleRate:      44100,
		Channels:        1,
		Periods:         8,
		Repeat:          1,
		Volume:          1.0,
		Format:          "s16le",
		Drain:           false,
		LogLevel:        "", // stderr carries only the final diagnostic line
		FileLogging: &FileLoggingConfig{
			Enabled:    true,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		History: GetDefaultHistoryConfig(),
	}
}

// LoadFromFile loads configuration from a specific file. Fields missing
// from the file keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", filePath, err)
	}
	if config.FileLogging == nil {
		config.FileLogging = cm.GetDefaultConfig().FileLogging
	}
	if config.History == nil {
		config.History = GetDefaultHistoryConfig()
	}

	if err := cm.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"device", config.Device,
		"audio_backend", config.AudioBackend)
	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	if err := cm.ValidateConfig(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := cm.fs.MkdirAll(dir, 0o755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(cm.fs, filePath, data, 0o644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads the first config.json found on the XDG search path, or defaults
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	configPaths := cm.xdg.GetConfigPaths("config.json")
	slog.Debug("searching for config file", "paths", configPaths)

	for _, configPath := range configPaths {
		if exists, _ := afero.Exists(cm.fs, configPath); exists {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// Load reads explicitPath when given, otherwise searches XDG paths, then
// applies environment overrides and validates the result.
func (cm *ConfigManager) Load(explicitPath string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	if explicitPath != "" {
		config, err = cm.LoadFromFile(explicitPath)
	} else {
		config, err = cm.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	config = cm.ApplyEnvironmentOverrides(config)
	if err := cm.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ValidateConfig reports every invalid field in a single error
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(config.Device) == "" {
		add("device cannot be empty")
	}
	if !cm.IsValidAudioBackend(config.AudioBackend) {
		add("invalid audio backend '%s', must be one of: %s",
			config.AudioBackend, strings.Join(validAudioBackends, ", "))
	}
	if !isPositiveFinite(config.Frequency) {
		add("frequency must be a positive number of Hz, got %g", config.Frequency)
	}
	if !isPositiveFinite(config.DurationSeconds) {
		add("duration_seconds must be positive, got %g", config.DurationSeconds)
	}
	if config.SampleRate == 0 {
		add("sample_rate must be positive")
	}
	if config.Channels == 0 {
		add("channels must be at least 1")
	}
	if config.Periods == 0 {
		add("periods must be at least 1")
	}
	if config.Repeat < 1 {
		add("repeat must be at least 1, got %d", config.Repeat)
	}
	if math.IsNaN(config.Volume) || config.Volume < 0.0 || config.Volume > 1.0 {
		add("volume must be between 0.0 and 1.0, got %g", config.Volume)
	}
	if _, err := pcm.ParseFormat(config.Format); err != nil {
		add("%v", err)
	}
	if config.LogLevel != "" && !slices.Contains(validLogLevels, strings.ToLower(config.LogLevel)) {
		add("invalid log level '%s', must be one of: %s",
			config.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if fl := config.FileLogging; fl != nil {
		if fl.MaxSizeMB < 0 {
			add("file logging max_size_mb must be >= 0, got %d", fl.MaxSizeMB)
		}
		if fl.MaxBackups < 0 {
			add("file logging max_backups must be >= 0, got %d", fl.MaxBackups)
		}
		if fl.MaxAgeDays < 0 {
			add("file logging max_age_days must be >= 0, got %d", fl.MaxAgeDays)
		}
	}

	if len(problems) > 0 {
		msg := strings.Join(problems, "; ")
		slog.Error("config validation failed", "errors", msg)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
	}
	return nil
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ApplyEnvironmentOverrides returns a copy of config with PCMTONE_* variables applied.
// Unparseable values are logged and ignored.
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	result := *config

	if device := os.Getenv("PCMTONE_DEVICE"); device != "" {
		result.Device = device
		slog.Debug("applied device override from environment", "value", device)
	}

	if backend := os.Getenv("PCMTONE_AUDIO_BACKEND"); backend != "" {
		if cm.IsValidAudioBackend(backend) {
			result.AudioBackend = backend
			slog.Debug("applied audio backend override from environment", "value", backend)
		} else {
			slog.Warn("invalid PCMTONE_AUDIO_BACKEND environment variable", "value", backend)
		}
	}

	envFloat("PCMTONE_FREQUENCY", &result.Frequency)
	envFloat("PCMTONE_DURATION", &result.DurationSeconds)
	envFloat("PCMTONE_VOLUME", &result.Volume)

	if logLevel := os.Getenv("PCMTONE_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	if config.History != nil {
		result.History = ApplyHistoryEnvironmentOverrides(config.History)
	}

	return &result
}

func envFloat(name string, dst *float64) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid environment variable", "name", name, "value", raw, "error", err)
		return
	}
	*dst = v
	slog.Debug("applied override from environment", "name", name, "value", v)
}

// ParseLogLevel maps a configured level name to a slog level
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level '%s', must be one of: %s",
			logLevel, strings.Join(validLogLevels, ", "))
	}
}

// ApplyLogLevelWithWriter installs a text slog handler at logLevel writing to writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	level, err := ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})))
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "pcmtone.log")
}

// ResolveHistoryPath resolves the history database path, defaulting to the XDG cache
func (cm *ConfigManager) ResolveHistoryPath(databasePath string) string {
	if databasePath != "" {
		return databasePath
	}
	return filepath.Join(cm.xdg.GetCachePath(""), "history.db")
}

// ResolveLockPath returns the lock file guarding device
func (cm *ConfigManager) ResolveLockPath(device string) string {
	return filepath.Join(cm.xdg.GetRuntimePath("locks"), lockFileName(device)+".lock")
}

// lockFileName flattens a device name such as plughw:0,0 into a file name
func lockFileName(device string) string {
	if device == "" {
		device = "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, device)
}

// GetSupportedAudioBackends returns a list of all supported audio backend types
func (cm *ConfigManager) GetSupportedAudioBackends() []string {
	return validAudioBackends
}

// IsValidAudioBackend checks if an audio backend type is supported
func (cm *ConfigManager) IsValidAudioBackend(backend string) bool {
	// Empty string is valid (defaults to auto)
	return backend == "" || slices.Contains(validAudioBackends, backend)
}
