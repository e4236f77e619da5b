package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pcmtone.click/internal/audio"
	"pcmtone.click/internal/config"
	"pcmtone.click/internal/history"
	"pcmtone.click/internal/pcm"
	"pcmtone.click/internal/tone"
)

// newPlayCommand creates the play command
func newPlayCommand() *cobra.Command {
	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Play a sine tone (or an audio file) on a playback device",
		Long: `Play a sine tone on a playback device.

The device is opened and configured in order: access type, sample format,
sample rate (nearest supported), channel count, period count (nearest) and
buffer size (nearest). The tone is generated at the rate the device accepted,
written --repeat times and the device is dropped (or drained with --drain).

Examples:
  pcmtone play                               # 5s of 440Hz on the default device
  pcmtone play --device plughw:0,0 --rate 8000 --duration 1
  pcmtone play --frequency 1000 --volume 0.25 --repeat 3
  pcmtone play --input chime.wav             # play a file through the same path`,
		Args: cobra.NoArgs,
		RunE: runPlay,
	}
	addPlayFlags(playCmd)
	return playCmd
}

// addToneFlags registers the flags shared by play and render. Values only
// override the config when set explicitly.
func addToneFlags(cmd *cobra.Command) {
	defaults := tone.DefaultParams()
	flags := cmd.Flags()
	flags.Float64("frequency", defaults.Frequency, "Tone frequency in Hz")
	flags.Float64("duration", defaults.Duration, "Tone length in seconds")
	flags.Uint32("rate", defaults.SampleRate, "Requested sample rate in Hz")
	flags.Uint32("channels", defaults.Channels, "Channel count")
	flags.Float64("volume", 1.0, "Volume from 0.0 to 1.0 of full scale")
	flags.Bool("no-history", false, "Do not record this run in the history database")
}

func addPlayFlags(cmd *cobra.Command) {
	addToneFlags(cmd)
	request := pcm.DefaultRequest()
	flags := cmd.Flags()
	flags.String("device", audio.DefaultDevice, "Playback device name, e.g. plughw:0,0")
	flags.Uint32("periods", request.Periods, "Requested period count")
	flags.Int("repeat", 1, "Number of times the buffer is written")
	flags.String("format", request.Format.String(), "Sample format (u8, s16le, s16be, s32le, f32le)")
	flags.Bool("drain", false, "Drain queued frames instead of dropping them at the end")
	flags.String("input", "", "Play an audio file (WAV, AIFF, MP3) instead of a tone")
}

// runPlay executes the play command
func runPlay(cmd *cobra.Command, args []string) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	return cli.play(cmd.Context(), cfg, input, cmd.OutOrStdout())
}

// play runs one full open/configure/write/finish/close cycle and records it
func (c *CLI) play(ctx context.Context, cfg *config.Config, input string, out io.Writer) error {
	slog.Debug("running play command",
		"device", cfg.Device,
		"backend", cfg.AudioBackend,
		"frequency", cfg.Frequency,
		"input", input)

	format, err := pcm.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	params := toneParams(cfg)
	if err := params.Validate(); err != nil {
		return err
	}

	var source *audio.AudioData
	if input != "" {
		source, err = audio.NewFileResolver(c.fs, audio.DefaultInputExtensions).Load(c.registry, input)
		if err != nil {
			return fmt.Errorf("failed to load input: %w", err)
		}
		if len(source.Samples) == 0 || source.Channels == 0 || source.SampleRate == 0 {
			return fmt.Errorf("%w: %s contains no audio", audio.ErrInvalidData, input)
		}
	}

	req := pcm.Request{
		Access:        pcm.AccessRWInterleaved,
		Format:        format,
		Rate:          cfg.SampleRate,
		Channels:      cfg.Channels,
		Periods:       cfg.Periods,
		CapacityBytes: requestedCapacity(params, source, format),
	}

	run := &history.Run{
		StartedAt:     c.now(),
		Command:       "play",
		Device:        cfg.Device,
		Backend:       cfg.AudioBackend,
		Format:        format.String(),
		RequestedRate: cfg.SampleRate,
		Channels:      cfg.Channels,
		Periods:       cfg.Periods,
		Frequency:     cfg.Frequency,
		Duration:      time.Duration(cfg.DurationSeconds * float64(time.Second)),
		Repeat:        cfg.Repeat,
		InputPath:     input,
	}
	if source != nil {
		run.Frequency = 0
		run.Duration = source.Duration()
	}

	negotiated, err := c.playOnDevice(ctx, cfg, req, params, source, run)
	c.recordRun(ctx, cfg, run, err)
	if err != nil {
		return err
	}

	c.printPlayback(out, run, negotiated)
	return nil
}

func (c *CLI) playOnDevice(ctx context.Context, cfg *config.Config, req pcm.Request, params tone.Params, source *audio.AudioData, run *history.Run) (pcm.Negotiated, error) {
	lock := NewDeviceLock(cfg.Device, c.configManager.ResolveLockPath(cfg.Device))
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, audio.ErrDeviceBusy) {
			return pcm.Negotiated{}, &pcm.StageError{Stage: pcm.StageOpen, Device: cfg.Device, Err: err}
		}
		slog.Warn("continuing without device lock", "device", cfg.Device, "error", err)
	} else {
		defer lock.Release()
	}

	backend, err := c.backendFactory.CreateBackend(cfg.AudioBackend)
	if err != nil {
		slog.Error("failed to create audio backend", "backend_type", cfg.AudioBackend, "error", err)
		return pcm.Negotiated{}, fmt.Errorf("failed to create audio backend '%s': %w", cfg.AudioBackend, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Error("error closing audio backend", "error", err)
		}
	}()
	run.Backend = backend.Name()

	session, err := pcm.OpenSession(ctx, pcm.NewNegotiator(nil), backend, cfg.Device, req)
	if err != nil {
		return pcm.Negotiated{}, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Error("error closing playback session", "error", err)
		}
	}()

	negotiated := session.Negotiated()
	run.EffectiveRate = negotiated.Rate
	run.Channels = negotiated.Channels
	run.Periods = negotiated.Periods
	run.BufferFrames = negotiated.BufferFrames

	if source == nil && params.Frequency > float64(negotiated.Rate)/2 {
		err := fmt.Errorf("device settled on %d Hz, which cannot carry a %g Hz tone (Nyquist limit %d Hz)",
			negotiated.Rate, params.Frequency, negotiated.Rate/2)
		slog.Error("negotiated rate too low for tone", "device", cfg.Device, "rate", negotiated.Rate, "frequency", params.Frequency)
		return negotiated, &pcm.StageError{Stage: pcm.StageRate, Device: cfg.Device, Err: err}
	}

	buf, err := buildBuffer(params, source, cfg.Volume, negotiated)
	if err != nil {
		return negotiated, err
	}

	err = session.Play(ctx, buf, cfg.Repeat)
	run.FramesWritten = session.FramesWritten()
	if err != nil {
		return negotiated, err
	}

	if err := session.Finish(cfg.Drain); err != nil {
		return negotiated, err
	}
	return negotiated, session.Close()
}

func toneParams(cfg *config.Config) tone.Params {
	return tone.Params{
		Frequency:  cfg.Frequency,
		Duration:   cfg.DurationSeconds,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Amplitude:  tone.AmplitudeForVolume(cfg.Volume),
	}
}

// requestedCapacity is the byte length of the buffer at the requested rate
// and channel count
func requestedCapacity(params tone.Params, source *audio.AudioData, format pcm.Format) int {
	if source == nil {
		return params.ByteLen(format.BytesPerSample())
	}
	frames := int64(len(source.Samples)) / int64(source.Channels)
	frames = frames * int64(params.SampleRate) / int64(source.SampleRate)
	return max(1, int(frames)*int(params.Channels)*format.BytesPerSample())
}

// buildBuffer produces the encoded samples at the negotiated rate, channel
// count and format
func buildBuffer(params tone.Params, source *audio.AudioData, volume float64, n pcm.Negotiated) ([]byte, error) {
	var samples []int16
	if source != nil {
		converted, err := audio.ConvertForPlayback(source, n.Rate, n.Channels)
		if err != nil {
			return nil, err
		}
		samples = scaleSamples(converted.Samples, volume)
	} else {
		params.SampleRate = n.Rate
		params.Channels = n.Channels
		var err error
		samples, err = tone.Generate(params)
		if err != nil {
			return nil, err
		}
	}
	return pcm.Encode(samples, n.Format)
}

// scaleSamples returns samples attenuated by volume, leaving the input untouched
func scaleSamples(samples []int16, volume float64) []int16 {
	if volume >= 1 {
		return samples
	}
	scaled := make([]int16, len(samples))
	for i, s := range samples {
		scaled[i] = int16(math.Round(float64(s) * volume))
	}
	return scaled
}

// recordRun stores the outcome in the history database. History problems
// are logged and never fail the command.
func (c *CLI) recordRun(ctx context.Context, cfg *config.Config, run *history.Run, runErr error) {
	if cfg.History == nil || !cfg.History.Enabled {
		slog.Debug("history disabled, not recording run")
		return
	}

	run.FinishedAt = c.now()
	run.Status = history.StatusOK
	if runErr != nil {
		run.Status = history.StatusFailed
		run.Error = singleLine(runErr.Error())
		if stage := pcm.FailedStage(runErr); stage != 0 {
			run.FailedStage = stage.String()
		}
	}

	dbPath := c.configManager.ResolveHistoryPath(cfg.History.DatabasePath)
	db, err := history.OpenDatabase(dbPath)
	if err != nil {
		slog.Warn("history database unavailable", "path", dbPath, "error", err)
		return
	}
	defer db.Close()

	if _, err := history.NewRecorder(db).Record(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("failed to record run", "error", err)
	}
}

func (c *CLI) printPlayback(out io.Writer, run *history.Run, n pcm.Negotiated) {
	if c.isInteractive(out) {
		what := fmt.Sprintf("%g Hz for %s", run.Frequency, run.Duration)
		if run.InputPath != "" {
			what = filepath.Base(run.InputPath)
		}
		fmt.Fprintf(out, "Played %s on %s via %s\n", what, run.Device, run.Backend)
		fmt.Fprintf(out, "  %s %d Hz, %d ch, %d periods of %d frames, %d frames written\n",
			n.Format, n.Rate, n.Channels, n.Periods, n.PeriodFrames, run.FramesWritten)
		return
	}

	fmt.Fprintf(out, "device=%s\n", run.Device)
	fmt.Fprintf(out, "backend=%s\n", run.Backend)
	fmt.Fprintf(out, "format=%s\n", n.Format)
	fmt.Fprintf(out, "rate=%d\n", n.Rate)
	fmt.Fprintf(out, "channels=%d\n", n.Channels)
	fmt.Fprintf(out, "periods=%d\n", n.Periods)
	fmt.Fprintf(out, "period_frames=%d\n", n.PeriodFrames)
	fmt.Fprintf(out, "buffer_frames=%d\n", n.BufferFrames)
	fmt.Fprintf(out, "frames_written=%d\n", run.FramesWritten)
}
