package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Logger(t *testing.T) {
	t.Parallel()

	t.Run("parse level strings", func(t *testing.T) {
		tests := []struct {
			level    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
			{"DEBUG", slog.LevelDebug},
			{"unknown", slog.LevelInfo},
			{"", slog.LevelInfo},
		}

		for _, tt := range tests {
			require.Equal(t, tt.expected, parseLevelString(tt.level), "level %q", tt.level)
		}
	})

	t.Run("new by environment", func(t *testing.T) {
		_, err := New(EnvDevelopment, LevelInfo)
		require.NoError(t, err)

		_, err = New(EnvProduction, LevelDebug)
		require.NoError(t, err)

		_, err = New("staging", LevelInfo)
		require.Error(t, err, "unknown environment should not be accepted")
	})

	t.Run("noop logger does not panic", func(t *testing.T) {
		l := NewNoOpLogger()
		l.Debug("msg")
		l.Info("msg", "key", "value")
		l.Warn("msg")
		l.Error("msg")
		l.With("key", "value").WithGroup("group").Info("msg")
	})
}
