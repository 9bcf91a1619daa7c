package config

import (
	"testing"
)

func TestDefaultDataDirXDGOverride(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/tasktrail" {
		t.Fatalf("xdg override: %q", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")

	// Should still return a usable path
	if got := DefaultDataDir(); got == "" {
		t.Fatalf("empty data dir")
	}
}

func TestIsDir(t *testing.T) {
	if !isDir(t.TempDir()) {
		t.Fatalf("temp dir not a dir")
	}
	if isDir("/definitely/not/a/real/path") {
		t.Fatalf("missing path reported as dir")
	}
}
