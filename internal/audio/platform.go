package audio

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// IsWSL checks if the current environment is Windows Subsystem for Linux
func IsWSL() bool {
	return detectWSLFromData(readProcVersion(), os.Getenv("WSL_DISTRO_NAME"))
}

// detectWSLFromData checks for WSL indicators in the provided data (for testing)
func detectWSLFromData(procVersion, wslEnv string) bool {
	slog.Debug("checking WSL detection", "proc_version_snippet", truncateString(procVersion, 50), "wsl_env", wslEnv)

	if wslEnv != "" {
		slog.Debug("WSL detected via environment variable", "distro", wslEnv)
		return true
	}

	procLower := strings.ToLower(procVersion)
	if strings.Contains(procLower, "microsoft") || strings.Contains(procLower, "wsl") {
		slog.Debug("WSL detected via /proc/version")
		return true
	}

	return false
}

func readProcVersion() string {
	content, err := os.ReadFile("/proc/version")
	if err != nil {
		slog.Debug("failed to read /proc/version", "error", err)
		return ""
	}
	return string(content)
}

// CommandExists checks if a command is available in PATH
func CommandExists(command string) bool {
	if command == "" {
		return false
	}

	_, err := exec.LookPath(command)
	exists := err == nil
	slog.Debug("command existence check", "command", command, "exists", exists)
	return exists
}

// DetectOptimalBackend determines the best audio backend for the current system
func DetectOptimalBackend() string {
	return detectOptimalBackendWithChecker(IsWSL(), cgoEnabled, CommandExists)
}

// detectOptimalBackendWithChecker returns "" when nothing can play
func detectOptimalBackendWithChecker(isWSL, cgoAvailable bool, commandChecker func(string) bool) string {
	slog.Debug("detecting optimal audio backend", "is_wsl", isWSL, "cgo", cgoAvailable)

	hasCommand := getPreferredSystemCommandWithChecker(commandChecker) != ""

	if isWSL {
		// miniaudio crackles under WSLg; a pulse or alsa client does not
		if hasCommand {
			return BackendSystemCommand
		}
		if cgoAvailable {
			slog.Warn("no system audio commands found in WSL, falling back to malgo")
			return BackendMalgo
		}
		return ""
	}

	if cgoAvailable {
		return BackendMalgo
	}
	if hasCommand {
		slog.Debug("built without cgo, using system command backend")
		return BackendSystemCommand
	}
	return ""
}

// getPreferredSystemCommandWithChecker picks the first player that can read raw PCM from stdin
func getPreferredSystemCommandWithChecker(commandChecker func(string) bool) string {
	// aplay first: it takes ALSA device names such as plughw:0,0 directly
	preferredCommands := []string{"aplay", "paplay", "pacat", "ffplay"}

	for _, cmd := range preferredCommands {
		if commandChecker(cmd) {
			slog.Debug("preferred system command found", "command", cmd)
			return cmd
		}
	}

	slog.Debug("no preferred system audio commands found")
	return ""
}

// truncateString truncates a string to maxLen characters for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
