package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if ValidLevel("bogus") || !ValidLevel("Warn") {
		t.Error("ValidLevel mismatch")
	}
}

func TestWithSessionAddsField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.WithSession("s-1").WithContext("c-1", "t-1", "u-1").Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for key, want := range map[string]string{
		"session_id":     "s-1",
		"correlation_id": "c-1",
		"tenant_id":      "t-1",
		"user_id":        "u-1",
	} {
		if fields[key] != want {
			t.Errorf("%s = %v, want %q", key, fields[key], want)
		}
	}
}

func TestSetGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	n := Nop()
	SetGlobal(n)
	if Global() != n {
		t.Error("global logger not replaced")
	}
}
