package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestBuild(t *testing.T) {
	cases := []struct {
		name    string
		env     string
		level   string
		debugOn bool
		infoOn  bool
	}{
		{"test_discards", "test", "", false, false},
		{"production_info", "production", "", false, true},
		{"development_debug", "development", "", true, true},
		{"level_override", "development", "warn", false, false},
		{"bad_level_ignored", "production", "loud", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := build(tc.env, tc.level)
			if got := l.Core().Enabled(zapcore.DebugLevel); got != tc.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tc.debugOn)
			}
			if got := l.Core().Enabled(zapcore.InfoLevel); got != tc.infoOn {
				t.Errorf("info enabled = %v, want %v", got, tc.infoOn)
			}
		})
	}
}

func TestGetAndNamed(t *testing.T) {
	if Get() == nil {
		t.Fatal("expected a logger without explicit Init")
	}
	if Named("pricefeed") == nil {
		t.Fatal("expected a named logger")
	}
}
