package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pcmtone.click/internal/fs"
	"pcmtone.click/internal/pcm"
	"pcmtone.click/internal/tone"
)

// tone-dump writes the raw encoded tone to a timestamped file (or stdout with
// --out -) so it can be piped into aplay or inspected with a hex editor.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCommand(fs.NewDefaultFactory().Production(), time.Now).Execute(); err != nil {
		slog.Error("tone dump failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(fsys afero.Fs, now func() time.Time) *cobra.Command {
	params := tone.DefaultParams()
	var (
		formatName string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "tone-dump",
		Short: "Write a raw PCM tone to a file",
		Long: `Write a raw PCM tone to a timestamped file.

Example:
  tone-dump --rate 8000 --duration 1 --out - | aplay -f S16_LE -r 8000 -c 1`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := pcm.ParseFormat(formatName)
			if err != nil {
				return err
			}
			samples, err := tone.Generate(params)
			if err != nil {
				return err
			}
			data, err := pcm.Encode(samples, format)
			if err != nil {
				return err
			}

			if outDir == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := saveDump(fsys, outDir, now(), data, params, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().Float64Var(&params.Frequency, "frequency", params.Frequency, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&params.Duration, "duration", params.Duration, "Tone length in seconds")
	cmd.Flags().Uint32Var(&params.SampleRate, "rate", params.SampleRate, "Sample rate in Hz")
	cmd.Flags().Uint32Var(&params.Channels, "channels", params.Channels, "Channel count")
	cmd.Flags().StringVar(&formatName, "format", pcm.FormatS16LE.String(), "Sample format")
	cmd.Flags().StringVar(&outDir, "out", filepath.Join(os.TempDir(), "pcmtone-dumps"), `Output directory, or "-" for stdout`)
	return cmd
}

// saveDump writes data to a file named after the time and tone parameters
func saveDump(fsys afero.Fs, dir string, at time.Time, data []byte, params tone.Params, format pcm.Format) (string, error) {
	timestamp := at.Format("2006-01-02_15-04-05.000")
	name := fmt.Sprintf("%s_%gHz_%d_%dch.%s", timestamp, params.Frequency, params.SampleRate, params.Channels, format)
	path := filepath.Join(dir, name)

	err := fs.WriteFileAtomic(fsys, path, func(f afero.File) error {
		_, err := f.Write(data)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to write dump: %w", err)
	}

	slog.Info("tone dump saved", "file", path, "size_bytes", len(data))
	return path, nil
}
