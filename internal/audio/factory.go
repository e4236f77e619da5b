package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Backend type names accepted by the factory
const (
	BackendAuto          = "auto"
	BackendMalgo         = "malgo"
	BackendOto           = "oto"
	BackendSystemCommand = "system_command"
	BackendNull          = "null"
)

// BackendFactory creates Backend instances based on configuration
type BackendFactory interface {
	CreateBackend(backendType string) (Backend, error)
	GetSupportedBackends() []string
	IsValidBackendType(backendType string) bool
}

// DefaultBackendFactory implements BackendFactory with platform detection
type DefaultBackendFactory struct {
	isWSLFunc     func() bool
	commandExists func(string) bool
	cgoAvailable  bool
}

// Factory errors
var (
	ErrInvalidBackendType    = errors.New("invalid backend type")
	ErrBackendCreationFailed = errors.New("backend creation failed")
)

// NewBackendFactory creates a new DefaultBackendFactory with real platform detection
func NewBackendFactory() *DefaultBackendFactory {
	return &DefaultBackendFactory{
		isWSLFunc:     IsWSL,
		commandExists: CommandExists,
		cgoAvailable:  cgoEnabled,
	}
}

// NewBackendFactoryWithDependencies creates a factory with injected dependencies for testing
func NewBackendFactoryWithDependencies(isWSLFunc func() bool, commandExists func(string) bool, cgoAvailable bool) *DefaultBackendFactory {
	return &DefaultBackendFactory{
		isWSLFunc:     isWSLFunc,
		commandExists: commandExists,
		cgoAvailable:  cgoAvailable,
	}
}

// CreateBackend creates a Backend instance based on the specified type
func (f *DefaultBackendFactory) CreateBackend(backendType string) (Backend, error) {
	// Default empty string to "auto"
	if backendType == "" {
		backendType = BackendAuto
	}

	slog.Debug("creating audio backend", "type", backendType)

	switch backendType {
	case BackendAuto:
		return f.createAutoBackend()
	case BackendSystemCommand:
		return f.createSystemCommandBackend()
	case BackendMalgo:
		return f.createCGOBackend(BackendMalgo, newMalgoBackend)
	case BackendOto:
		return f.createCGOBackend(BackendOto, newOtoBackend)
	case BackendNull:
		return NewNullBackend(), nil
	default:
		slog.Error("invalid backend type requested", "type", backendType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
}

// GetSupportedBackends returns a list of all supported backend types
func (f *DefaultBackendFactory) GetSupportedBackends() []string {
	return []string{BackendAuto, BackendMalgo, BackendOto, BackendSystemCommand, BackendNull}
}

// IsValidBackendType checks if a backend type is supported
func (f *DefaultBackendFactory) IsValidBackendType(backendType string) bool {
	// Empty string is valid (defaults to auto)
	if backendType == "" {
		return true
	}
	return slices.Contains(f.GetSupportedBackends(), backendType)
}

// createAutoBackend selects the best backend for the current platform
func (f *DefaultBackendFactory) createAutoBackend() (Backend, error) {
	slog.Debug("auto-detecting optimal backend")

	optimalType := f.detectOptimalBackendType()
	slog.Debug("auto-detection result", "selected_type", optimalType)

	switch optimalType {
	case BackendSystemCommand:
		return f.createSystemCommandBackend()
	case BackendMalgo:
		return f.createCGOBackend(BackendMalgo, newMalgoBackend)
	default:
		slog.Error("auto-detection found no usable backend")
		return nil, fmt.Errorf("%w: auto-detection found no usable backend", ErrBackendNotAvailable)
	}
}

// createSystemCommandBackend creates a SystemCommandBackend with the best available command
func (f *DefaultBackendFactory) createSystemCommandBackend() (Backend, error) {
	slog.Debug("creating system command backend")

	preferredCommand := f.getPreferredSystemCommand()
	if preferredCommand == "" {
		slog.Error("no system audio commands available")
		return nil, fmt.Errorf("%w: no system audio commands found", ErrBackendNotAvailable)
	}

	backend, err := NewSystemCommandBackend(preferredCommand)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendCreationFailed, err)
	}
	slog.Debug("system command backend created", "command", preferredCommand)
	return backend, nil
}

func (f *DefaultBackendFactory) createCGOBackend(name string, create func() (Backend, error)) (Backend, error) {
	slog.Debug("creating backend", "type", name)
	if !f.cgoAvailable {
		slog.Error("backend requires cgo", "type", name)
		return nil, fmt.Errorf("%w: %s requires a cgo build", ErrBackendNotAvailable, name)
	}
	backend, err := create()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendCreationFailed, err)
	}
	slog.Debug("backend created successfully", "type", name)
	return backend, nil
}

// detectOptimalBackendType uses platform detection to determine the best backend
func (f *DefaultBackendFactory) detectOptimalBackendType() string {
	return detectOptimalBackendWithChecker(f.isWSLFunc(), f.cgoAvailable, f.commandExists)
}

// getPreferredSystemCommand finds the best available system audio command
func (f *DefaultBackendFactory) getPreferredSystemCommand() string {
	return getPreferredSystemCommandWithChecker(f.commandExists)
}
