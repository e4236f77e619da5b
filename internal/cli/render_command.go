package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pcmtone.click/internal/audio"
	"pcmtone.click/internal/config"
	"pcmtone.click/internal/fs"
	"pcmtone.click/internal/history"
	"pcmtone.click/internal/pcm"
	"pcmtone.click/internal/tone"
)

// newRenderCommand creates the render command
func newRenderCommand() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Write the tone to a WAV or AIFF file",
		Long: `Generate the tone and write it to a 16-bit WAV or AIFF file instead of a
playback device. The container is chosen by the output extension. After
writing, the dominant frequency of the buffer is reported.

Examples:
  pcmtone render --output a440.wav
  pcmtone render --output beep.aiff --frequency 1000 --duration 0.5 --rate 48000`,
		Args: cobra.NoArgs,
		RunE: runRender,
	}
	addToneFlags(renderCmd)
	renderCmd.Flags().StringP("output", "o", "", "Output file (.wav, .aiff or .aif)")
	_ = renderCmd.MarkFlagRequired("output")
	return renderCmd
}

func runRender(cmd *cobra.Command, args []string) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	return cli.render(cmd.Context(), cfg, output, cmd.OutOrStdout())
}

type encodeFunc func(w io.WriteSeeker, samples []int16, rate, channels uint32) error

func encoderFor(path string) (encodeFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return func(w io.WriteSeeker, samples []int16, rate, channels uint32) error {
			return audio.EncodeWAV(w, samples, rate, channels)
		}, nil
	case ".aiff", ".aif":
		return audio.EncodeAIFF, nil
	default:
		return nil, fmt.Errorf("%w: cannot render to %q, use .wav or .aiff", audio.ErrUnsupportedFormat, path)
	}
}

func (c *CLI) render(ctx context.Context, cfg *config.Config, output string, out io.Writer) error {
	slog.Debug("running render command", "output", output, "frequency", cfg.Frequency)

	encode, err := encoderFor(output)
	if err != nil {
		return err
	}

	params := toneParams(cfg)
	run := &history.Run{
		StartedAt:     c.now(),
		Command:       "render",
		Device:        output,
		Backend:       "file",
		Format:        pcm.FormatS16LE.String(),
		RequestedRate: params.SampleRate,
		EffectiveRate: params.SampleRate,
		Channels:      params.Channels,
		Frequency:     params.Frequency,
		Duration:      time.Duration(params.Duration * float64(time.Second)),
		Repeat:        1,
	}

	spectrum, err := c.renderToFile(params, output, encode)
	if err == nil {
		run.FramesWritten = int64(params.Frames())
	}
	c.recordRun(ctx, cfg, run, err)
	if err != nil {
		return err
	}

	slog.Info("tone rendered", "output", output, "frames", params.Frames(), "dominant_hz", spectrum.Peak)

	if c.isInteractive(out) {
		fmt.Fprintf(out, "Wrote %s: %d frames at %d Hz, %d ch\n", output, params.Frames(), params.SampleRate, params.Channels)
		fmt.Fprintf(out, "  dominant frequency %.1f Hz (bin width %.2f Hz)\n", spectrum.Peak, spectrum.BinWidth)
		return nil
	}
	fmt.Fprintf(out, "output=%s\n", output)
	fmt.Fprintf(out, "frames=%d\n", params.Frames())
	fmt.Fprintf(out, "rate=%d\n", params.SampleRate)
	fmt.Fprintf(out, "channels=%d\n", params.Channels)
	fmt.Fprintf(out, "dominant_hz=%.1f\n", spectrum.Peak)
	fmt.Fprintf(out, "bin_hz=%.2f\n", spectrum.BinWidth)
	return nil
}

func (c *CLI) renderToFile(params tone.Params, output string, encode encodeFunc) (tone.Spectrum, error) {
	samples, err := tone.Generate(params)
	if err != nil {
		return tone.Spectrum{}, err
	}

	err = fs.WriteFileAtomic(c.fs, output, func(f afero.File) error {
		return encode(f, samples, params.SampleRate, params.Channels)
	})
	if err != nil {
		slog.Error("failed to write rendered tone", "output", output, "error", err)
		return tone.Spectrum{}, fmt.Errorf("failed to write %s: %w", output, err)
	}

	return tone.DominantFrequency(samples, int(params.Channels), params.SampleRate)
}
