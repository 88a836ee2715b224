package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		installed string
		want      bool
	}{
		{"v1.12.0", true},
		{"1.12.3", true},
		{"v1.20.0", true},
		{"v1.11.9", false},
		{"v2.0.0", false},
		{"v0.1.0-beta.10", false},
	}

	for _, tt := range tests {
		t.Run(tt.installed, func(t *testing.T) {
			ok, err := Compatible(tt.installed, DevelopedWith)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := Compatible("not-a-version", DevelopedWith)
	assert.Error(t, err)
}

func TestWarnIfIncompatible(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	assert.True(t, warnIfIncompatible(logger, "v2.1.0"))
	assert.Equal(t, 1, logs.Len())

	assert.False(t, warnIfIncompatible(logger, "v1.12.0"))

	t.Setenv(MuteWarningEnv, "1")
	assert.False(t, warnIfIncompatible(logger, "v2.1.0"))
	assert.Equal(t, 1, logs.Len())
}
