package audio

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandsAvailable(names ...string) func(string) bool {
	return func(cmd string) bool {
		return slices.Contains(names, cmd)
	}
}

func TestBackendFactoryInterface(t *testing.T) {
	var _ BackendFactory = (*DefaultBackendFactory)(nil)
}

func TestBackendFactory_CreateBackend(t *testing.T) {
	tests := []struct {
		name              string
		backendType       string
		isWSL             bool
		cgo               bool
		availableCommands []string
		expectedName      string
		expectedCommand   string
		expectErr         error
	}{
		{
			name:              "auto in WSL prefers system command",
			backendType:       BackendAuto,
			isWSL:             true,
			cgo:               true,
			availableCommands: []string{"paplay"},
			expectedName:      BackendSystemCommand,
			expectedCommand:   "paplay",
		},
		{
			name:              "empty type means auto",
			backendType:       "",
			isWSL:             true,
			cgo:               true,
			availableCommands: []string{"ffplay", "aplay"},
			expectedName:      BackendSystemCommand,
			expectedCommand:   "aplay",
		},
		{
			name:              "auto without cgo falls back to system command",
			backendType:       BackendAuto,
			cgo:               false,
			availableCommands: []string{"pacat"},
			expectedName:      BackendSystemCommand,
			expectedCommand:   "pacat",
		},
		{
			name:        "auto with nothing usable",
			backendType: BackendAuto,
			isWSL:       true,
			cgo:         false,
			expectErr:   ErrBackendNotAvailable,
		},
		{
			name:        "explicit system command with no players",
			backendType: BackendSystemCommand,
			cgo:         true,
			expectErr:   ErrBackendNotAvailable,
		},
		{
			name:        "malgo requires cgo",
			backendType: BackendMalgo,
			cgo:         false,
			expectErr:   ErrBackendNotAvailable,
		},
		{
			name:        "oto requires cgo",
			backendType: BackendOto,
			cgo:         false,
			expectErr:   ErrBackendNotAvailable,
		},
		{
			name:         "null backend always available",
			backendType:  BackendNull,
			expectedName: BackendNull,
		},
		{
			name:        "unknown type",
			backendType: "jack",
			cgo:         true,
			expectErr:   ErrInvalidBackendType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isWSL := tt.isWSL
			factory := NewBackendFactoryWithDependencies(
				func() bool { return isWSL },
				commandsAvailable(tt.availableCommands...),
				tt.cgo,
			)

			backend, err := factory.CreateBackend(tt.backendType)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				assert.Nil(t, backend)
				return
			}

			require.NoError(t, err)
			defer backend.Close()
			assert.Equal(t, tt.expectedName, backend.Name())

			if tt.expectedCommand != "" {
				scb, ok := backend.(*SystemCommandBackend)
				require.True(t, ok, "expected *SystemCommandBackend, got %T", backend)
				assert.Equal(t, tt.expectedCommand, scb.Command())
			}
		})
	}
}

func TestBackendFactory_IsValidBackendType(t *testing.T) {
	factory := NewBackendFactory()

	for _, name := range factory.GetSupportedBackends() {
		assert.True(t, factory.IsValidBackendType(name), name)
	}
	assert.True(t, factory.IsValidBackendType(""))
	assert.False(t, factory.IsValidBackendType("alsa"))
	assert.False(t, factory.IsValidBackendType("MALGO"))
}
