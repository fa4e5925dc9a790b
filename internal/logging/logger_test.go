package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
	}{
		{env: "prod", level: "warn", want: zapcore.WarnLevel},
		{env: "dev", level: "debug", want: zapcore.DebugLevel},
		{env: "dev", level: "loud", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		logger, err := New(tt.env, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q) error: %v", tt.env, tt.level, err)
		}
		if !logger.Core().Enabled(tt.want) {
			t.Errorf("New(%q, %q): level %s disabled", tt.env, tt.level, tt.want)
		}
		if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
			t.Errorf("New(%q, %q): level %s enabled", tt.env, tt.level, tt.want-1)
		}
	}
}
