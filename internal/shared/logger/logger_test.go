package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"local", "prod"} {
		l, err := New("wager-service", env, "debug")
		if err != nil {
			t.Fatalf("New(%s): %v", env, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("debug not enabled for env %s", env)
		}
	}
	if _, err := New("wager-service", "prod", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
