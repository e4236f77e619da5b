package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pcmtone.click/internal/audio"
	"pcmtone.click/internal/pcm"
)

// newDevicesCommand creates the devices command
func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List playback devices and their configuration space",
		Long: `List the playback devices of the selected backend together with the
access types, formats, rates, channel counts, periods and buffer sizes the
negotiator will choose from.

Examples:
  pcmtone devices
  pcmtone devices --backend malgo`,
		Args: cobra.NoArgs,
		RunE: runDevices,
	}
}

func runDevices(cmd *cobra.Command, args []string) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Debug("running devices command", "backend", cfg.AudioBackend)

	backend, err := cli.backendFactory.CreateBackend(cfg.AudioBackend)
	if err != nil {
		return fmt.Errorf("failed to create audio backend '%s': %w", cfg.AudioBackend, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Error("error closing audio backend", "error", err)
		}
	}()

	devices, err := backend.Devices(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	slog.Info("devices listed", "backend", backend.Name(), "count", len(devices))

	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintf(out, "No playback devices found for backend %s\n", backend.Name())
		return nil
	}

	if cli.isInteractive(out) {
		return printDeviceTable(out, backend.Name(), devices)
	}
	printDeviceLines(out, devices)
	return nil
}

func printDeviceTable(out io.Writer, backendName string, devices []audio.DeviceInfo) error {
	fmt.Fprintf(out, "Backend: %s\n\n", backendName)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFORMATS\tRATES\tCHANNELS\tPERIODS\tBUFFER")
	for _, d := range devices {
		name := d.Name
		if d.Default {
			name += " *"
		}
		caps := d.Capabilities
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, name, formatList(caps.Formats), rateList(caps), caps.Channels, caps.Periods, caps.BufferFrames)
	}
	return tw.Flush()
}

func printDeviceLines(out io.Writer, devices []audio.DeviceInfo) {
	for _, d := range devices {
		caps := d.Capabilities
		fmt.Fprintf(out, "id=%s name=%q default=%t formats=%s rates=%s channels=%s periods=%s buffer_frames=%s\n",
			d.ID, d.Name, d.Default, formatList(caps.Formats), rateList(caps), caps.Channels, caps.Periods, caps.BufferFrames)
	}
}

func formatList(formats []pcm.Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

func rateList(caps pcm.Capabilities) string {
	if len(caps.RateSet) == 0 {
		return caps.Rates.String()
	}
	rates := make([]string, len(caps.RateSet))
	for i, r := range caps.RateSet {
		rates[i] = fmt.Sprint(r)
	}
	return strings.Join(rates, ",")
}
