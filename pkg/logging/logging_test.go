package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitWithStderrSink(t *testing.T) {
	if err := Init(Config{Level: "info", Format: "console"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if L() == nil {
		t.Fatal("global logger not set")
	}
	// Must not panic on the console path.
	Info("hello", String("k", "v"), Int("n", 1))
}

func TestInitWithFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronoplan.log")
	if err := Init(Config{Level: "debug", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Debug("file sink works", Err(os.ErrNotExist))
	Sync()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("log file is empty")
	}
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	if err := Init(Config{Level: "bogus"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !globalLevel.Enabled(zapcore.InfoLevel) {
		t.Error("info should be enabled")
	}
	if globalLevel.Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at the fallback level")
	}
}

func TestSetLevel(t *testing.T) {
	if err := Init(Config{Level: "info"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	SetLevel("debug")
	if !globalLevel.Enabled(zapcore.DebugLevel) {
		t.Error("debug should be enabled after SetLevel")
	}
	SetLevel("not-a-level")
	if !globalLevel.Enabled(zapcore.DebugLevel) {
		t.Error("an unparsable level must not change the current one")
	}
}
