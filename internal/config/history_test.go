package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryConfigDefaults(t *testing.T) {
	config := GetDefaultHistoryConfig()
	assert.True(t, config.Enabled)
	assert.Empty(t, config.DatabasePath)
}

func TestApplyHistoryEnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		initial  bool
		expected bool
	}{
		{"true enables", "true", false, true},
		{"false disables", "false", true, false},
		{"1 enables", "1", false, true},
		{"0 disables", "0", true, false},
		{"garbage keeps current value", "maybe", true, true},
		{"unset keeps current value", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PCMTONE_HISTORY", tt.value)
			original := &HistoryConfig{Enabled: tt.initial}

			result := ApplyHistoryEnvironmentOverrides(original)
			assert.Equal(t, tt.expected, result.Enabled)
			assert.Equal(t, tt.initial, original.Enabled, "input must not be modified")
		})
	}
}

func TestApplyHistoryDatabaseOverride(t *testing.T) {
	t.Setenv("PCMTONE_HISTORY_DB", "/tmp/runs.db")
	result := ApplyHistoryEnvironmentOverrides(GetDefaultHistoryConfig())
	assert.Equal(t, "/tmp/runs.db", result.DatabasePath)
}
