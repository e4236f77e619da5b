package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"pcmtone.click/internal/audio"
	"pcmtone.click/internal/config"
	"pcmtone.click/internal/fs"
	"pcmtone.click/internal/pcm"
)

const Version = "0.4.0"

// ExitStageFailure is returned when the device could not be opened or configured
const ExitStageFailure = -1

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	backendFactory   audio.BackendFactory
	terminalDetector TerminalDetector
	registry         *audio.DecoderRegistry
	fs               afero.Fs
	now              func() time.Time

	logFile *lumberjack.Logger
}

// Option customizes a CLI, mostly for tests
type Option func(*CLI)

// WithConfigManager replaces the XDG/OS-backed config manager
func WithConfigManager(cm *config.ConfigManager) Option {
	return func(c *CLI) { c.configManager = cm }
}

// WithBackendFactory replaces the platform backend factory
func WithBackendFactory(f audio.BackendFactory) Option {
	return func(c *CLI) { c.backendFactory = f }
}

// WithTerminalDetector replaces terminal detection
func WithTerminalDetector(d TerminalDetector) Option {
	return func(c *CLI) { c.terminalDetector = d }
}

// WithFilesystem sets the filesystem used for input files and rendered output
func WithFilesystem(fsys afero.Fs) Option {
	return func(c *CLI) { c.fs = fsys }
}

// WithClock sets the time source for history queries
func WithClock(now func() time.Time) Option {
	return func(c *CLI) { c.now = now }
}

// NewCLI creates a new CLI instance
func NewCLI(opts ...Option) *CLI {
	slog.Debug("creating new CLI instance")

	c := &CLI{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.fs == nil {
		c.fs = fs.NewDefaultFactory().Production()
	}
	if c.configManager == nil {
		c.configManager = config.NewConfigManagerWithFilesystem(c.fs)
	}
	if c.backendFactory == nil {
		c.backendFactory = audio.NewBackendFactory()
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	c.registry = audio.NewDefaultRegistry()

	rootCmd := &cobra.Command{
		Use:   "pcmtone",
		Short: "Sine tone generator for PCM playback devices",
		Long: `pcmtone generates a sine tone and plays it on a PCM playback device.

The device is configured step by step (access, format, rate, channels, periods,
buffer size) and any step that fails is reported by name. Without a subcommand
pcmtone behaves like "pcmtone play".`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runPlay,
	}
	rootCmd.SetVersionTemplate("pcmtone version {{.Version}}\n")

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "Audio backend (auto, malgo, oto, system_command, null)")
	addPlayFlags(rootCmd)

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newHistoryCommand())

	c.rootCmd = rootCmd
	return c
}

type cliContextKey struct{}

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(ctx context.Context, cli *CLI) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) (*CLI, error) {
	if cli, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return cli, nil
	}
	return nil, errors.New("CLI instance not found in context")
}

// Run executes the CLI with the given arguments and I/O streams and returns
// the process exit code
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	defer c.restoreLogging(slog.Default())

	if len(args) > 0 {
		args = args[1:] // Skip program name
	}
	c.rootCmd.SetArgs(args)
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	ctx, stop := signalContext(context.Background())
	defer stop()

	err := c.rootCmd.ExecuteContext(contextWithCLI(ctx, c))
	if err == nil {
		return 0
	}

	var stageErr *pcm.StageError
	if errors.As(err, &stageErr) {
		slog.Error("device negotiation failed", "stage", stageErr.Stage.String(), "device", stageErr.Device, "error", stageErr.Err)
		fmt.Fprintf(stderr, "pcmtone: %s: %s\n", stageErr.Stage, singleLine(stageErr.Error()))
		return ExitStageFailure
	}

	slog.Error("command failed", "error", err)
	fmt.Fprintf(stderr, "Error: %s\n", singleLine(err.Error()))
	return 1
}

func singleLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "; ")
}

// loadConfig reads the config file (--config or XDG search), applies
// environment and flag overrides, validates the result and sets up logging
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := c.configManager.Load(configFile)
	if err != nil {
		slog.Error("config load failed", "file", configFile, "error", err)
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	if err := c.configManager.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	c.setupLogging(cfg, cmd.ErrOrStderr())
	return cfg, nil
}

// applyFlagOverrides copies every explicitly set flag onto cfg
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if changed("device") {
		cfg.Device, _ = flags.GetString("device")
	}
	if changed("backend") {
		cfg.AudioBackend, _ = flags.GetString("backend")
	}
	if changed("frequency") {
		v, err := flags.GetFloat64("frequency")
		collect(err)
		cfg.Frequency = v
	}
	if changed("duration") {
		v, err := flags.GetFloat64("duration")
		collect(err)
		cfg.DurationSeconds = v
	}
	if changed("rate") {
		v, err := flags.GetUint32("rate")
		collect(err)
		cfg.SampleRate = v
	}
	if changed("channels") {
		v, err := flags.GetUint32("channels")
		collect(err)
		cfg.Channels = v
	}
	if changed("periods") {
		v, err := flags.GetUint32("periods")
		collect(err)
		cfg.Periods = v
	}
	if changed("repeat") {
		v, err := flags.GetInt("repeat")
		collect(err)
		cfg.Repeat = v
	}
	if changed("volume") {
		v, err := flags.GetFloat64("volume")
		collect(err)
		cfg.Volume = v
	}
	if changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if changed("drain") {
		cfg.Drain, _ = flags.GetBool("drain")
	}
	if changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if changed("no-history") {
		if off, _ := flags.GetBool("no-history"); off && cfg.History != nil {
			history := *cfg.History
			history.Enabled = false
			cfg.History = &history
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid flag value: %w", err)
	}
	return nil
}

// setupLogging sends records at the configured level to stderr and, when
// file logging is enabled, everything from info up to a rotating log file.
// Without a configured level stderr only gets the final diagnostic line.
func (c *CLI) setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	var handlers []slog.Handler
	if cfg.LogLevel != "" {
		handlers = append(handlers, slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{Level: level}))
	}

	c.closeLogFile()
	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := c.configManager.ResolveLogFilePath(cfg.FileLogging.Filename)

		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			// Continue without file logging rather than failing
			slog.Error("failed to create log directory", "path", logDir, "error", err)
		} else {
			c.logFile = &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			handlers = append(handlers, slog.NewTextHandler(c.logFile, &slog.HandlerOptions{
				Level: min(level, slog.LevelInfo),
			}))
		}
	}

	slog.SetDefault(slog.New(NewMultiLevelHandler(handlers...)))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"handlers", len(handlers),
		"file_enabled", c.logFile != nil)
}

func (c *CLI) closeLogFile() {
	if c.logFile == nil {
		return
	}
	if err := c.logFile.Close(); err != nil {
		slog.Warn("failed to close log file", "error", err)
	}
	c.logFile = nil
}

// restoreLogging closes the log file and reinstates the logger that was
// active before Run
func (c *CLI) restoreLogging(previous *slog.Logger) {
	slog.SetDefault(previous)
	c.closeLogFile()
}

// signalContext cancels playback on interrupt or termination
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
