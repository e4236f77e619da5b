package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"pcmtone.click/internal/pcm"
)

// argsFunc builds the argument list that makes a player read raw frames from stdin
type argsFunc func(device string, cfg pcm.HwConfig) ([]string, error)

var systemCommandCapabilities = pcm.Capabilities{
	Accesses:     []pcm.Access{pcm.AccessRWInterleaved},
	Formats:      []pcm.Format{pcm.FormatU8, pcm.FormatS16LE, pcm.FormatS16BE, pcm.FormatS32LE, pcm.FormatFloat32LE},
	Rates:        pcm.Interval{Min: 8000, Max: 192000},
	Channels:     pcm.Interval{Min: 1, Max: 8},
	Periods:      pcm.Interval{Min: 2, Max: 32},
	BufferFrames: pcm.Interval{Min: 64, Max: MaxDeviceBufferFrames},
}

var alsaFormatNames = map[pcm.Format]string{
	pcm.FormatU8:        "U8",
	pcm.FormatS16LE:     "S16_LE",
	pcm.FormatS16BE:     "S16_BE",
	pcm.FormatS32LE:     "S32_LE",
	pcm.FormatFloat32LE: "FLOAT_LE",
}

var pulseFormatNames = map[pcm.Format]string{
	pcm.FormatU8:        "u8",
	pcm.FormatS16LE:     "s16le",
	pcm.FormatS16BE:     "s16be",
	pcm.FormatS32LE:     "s32le",
	pcm.FormatFloat32LE: "float32le",
}

var ffmpegFormatNames = map[pcm.Format]string{
	pcm.FormatU8:        "u8",
	pcm.FormatS16LE:     "s16le",
	pcm.FormatS16BE:     "s16be",
	pcm.FormatS32LE:     "s32le",
	pcm.FormatFloat32LE: "f32le",
}

func lookupFormat(names map[pcm.Format]string, command string, f pcm.Format) (string, error) {
	name, ok := names[f]
	if !ok {
		return "", fmt.Errorf("%s cannot play %s", command, f)
	}
	return name, nil
}

func aplayArgs(device string, cfg pcm.HwConfig) ([]string, error) {
	format, err := lookupFormat(alsaFormatNames, "aplay", cfg.Format)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-q", "-t", "raw",
		"-f", format,
		"-r", strconv.FormatUint(uint64(cfg.Rate), 10),
		"-c", strconv.FormatUint(uint64(cfg.Channels), 10),
		"--buffer-size=" + strconv.FormatUint(uint64(cfg.BufferFrames), 10),
		"--period-size=" + strconv.FormatUint(uint64(cfg.PeriodFrames()), 10),
	}
	if !isDefaultName(device) {
		args = append(args, "-D", device)
	}
	return append(args, "-"), nil
}

func pulseArgs(command string) argsFunc {
	return func(device string, cfg pcm.HwConfig) ([]string, error) {
		format, err := lookupFormat(pulseFormatNames, command, cfg.Format)
		if err != nil {
			return nil, err
		}
		args := []string{
			"--raw",
			"--format=" + format,
			"--rate=" + strconv.FormatUint(uint64(cfg.Rate), 10),
			"--channels=" + strconv.FormatUint(uint64(cfg.Channels), 10),
			"--latency=" + strconv.Itoa(int(cfg.BufferFrames)*cfg.FrameBytes()),
		}
		if command == "pacat" {
			args = append(args, "--playback")
		}
		if !isDefaultName(device) {
			args = append(args, "--device="+device)
		}
		return args, nil
	}
}

func ffplayArgs(device string, cfg pcm.HwConfig) ([]string, error) {
	format, err := lookupFormat(ffmpegFormatNames, "ffplay", cfg.Format)
	if err != nil {
		return nil, err
	}
	if !isDefaultName(device) {
		slog.Warn("ffplay ignores the device name and plays to the default output", "device", device)
	}
	return []string{
		"-nodisp", "-autoexit", "-loglevel", "quiet",
		"-f", format,
		"-ar", strconv.FormatUint(uint64(cfg.Rate), 10),
		"-ac", strconv.FormatUint(uint64(cfg.Channels), 10),
		"-i", "pipe:0",
	}, nil
}

// commandArgs maps each supported player to its raw-stdin invocation
var commandArgs = map[string]argsFunc{
	"aplay":  aplayArgs,
	"paplay": pulseArgs("paplay"),
	"pacat":  pulseArgs("pacat"),
	"ffplay": ffplayArgs,
}

// SystemCommandBackend plays by piping raw frames into a player such as aplay
type SystemCommandBackend struct {
	command string
	args    argsFunc
	closed  bool
	mutex   sync.Mutex
}

// NewSystemCommandBackend creates a backend for one of aplay, paplay, pacat or ffplay
func NewSystemCommandBackend(command string) (*SystemCommandBackend, error) {
	args, ok := commandArgs[command]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported system command %q", ErrBackendNotAvailable, command)
	}
	slog.Debug("creating new SystemCommandBackend", "command", command)
	return &SystemCommandBackend{command: command, args: args}, nil
}

// Name returns "system_command"
func (scb *SystemCommandBackend) Name() string {
	return BackendSystemCommand
}

// Command returns the player executable in use
func (scb *SystemCommandBackend) Command() string {
	return scb.command
}

// Devices reports the default device; players resolve other names themselves
func (scb *SystemCommandBackend) Devices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{
		ID:           DefaultDevice,
		Name:         fmt.Sprintf("%s default output", scb.command),
		Default:      true,
		Capabilities: systemCommandCapabilities,
	}}, nil
}

// Open returns a stream; the player process starts on Prepare
func (scb *SystemCommandBackend) Open(ctx context.Context, name string) (pcm.Stream, error) {
	scb.mutex.Lock()
	defer scb.mutex.Unlock()

	if scb.closed {
		return nil, ErrBackendClosed
	}
	if _, err := exec.LookPath(scb.command); err != nil {
		slog.Error("system command not found", "command", scb.command, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, err)
	}

	slog.Debug("opened system command stream", "command", scb.command, "device", name)
	return &commandStream{ctx: ctx, command: scb.command, args: scb.args, name: name}, nil
}

// Close marks the backend closed
func (scb *SystemCommandBackend) Close() error {
	scb.mutex.Lock()
	defer scb.mutex.Unlock()
	scb.closed = true
	slog.Debug("SystemCommandBackend closed")
	return nil
}

// commandStream runs one player process per prepared pass
type commandStream struct {
	ctx     context.Context
	command string
	args    argsFunc
	name    string
	argv    []string
	cfg     pcm.HwConfig
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	closed  bool
}

func (s *commandStream) Name() string { return s.name }

func (s *commandStream) Capabilities() (pcm.Capabilities, error) {
	if s.closed {
		return pcm.Capabilities{}, ErrStreamClosed
	}
	return systemCommandCapabilities, nil
}

func (s *commandStream) Commit(cfg pcm.HwConfig) error {
	if s.closed {
		return ErrStreamClosed
	}
	argv, err := s.args(s.name, cfg)
	if err != nil {
		return err
	}
	s.argv = argv
	s.cfg = cfg
	slog.Debug("system command configured", "command", s.command, "args", argv)
	return nil
}

func (s *commandStream) Prepare() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.argv == nil {
		return ErrNotConfigured
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.CommandContext(s.ctx, s.command, s.argv...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin for %s: %w", s.command, err)
	}
	if err := cmd.Start(); err != nil {
		slog.Error("failed to start system command", "command", s.command, "error", err)
		return fmt.Errorf("failed to start %s: %w", s.command, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	slog.Debug("system command started", "command", s.command, "pid", cmd.Process.Pid)
	return nil
}

func (s *commandStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.stdin == nil {
		return 0, ErrNotConfigured
	}
	frameBytes := s.cfg.FrameBytes()
	whole := len(p) / frameBytes * frameBytes
	n, err := s.stdin.Write(p[:whole])
	if err != nil {
		slog.Error("system command write failed", "command", s.command, "error", err)
		return n / frameBytes, fmt.Errorf("%s stopped accepting audio: %w", s.command, err)
	}
	return n / frameBytes, nil
}

// Drain closes stdin and waits for the player to finish
func (s *commandStream) Drain() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.cmd == nil {
		return nil
	}
	_ = s.stdin.Close()
	err := s.cmd.Wait()
	s.cmd, s.stdin = nil, nil
	if err != nil {
		slog.Error("system command failed", "command", s.command, "error", err)
		return fmt.Errorf("system command failed: %w", err)
	}
	return nil
}

// Drop kills the player, discarding whatever it has buffered
func (s *commandStream) Drop() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.kill()
	return nil
}

func (s *commandStream) kill() {
	if s.cmd == nil {
		return
	}
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Debug("failed to kill system command", "command", s.command, "error", err)
		}
	}
	_ = s.cmd.Wait()
	s.cmd, s.stdin = nil, nil
}

func (s *commandStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.kill()
	s.closed = true
	slog.Debug("system command stream closed", "command", s.command, "device", s.name)
	return nil
}
