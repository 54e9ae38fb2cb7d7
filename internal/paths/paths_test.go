package paths

import (
	"path/filepath"
	"testing"
)

func TestDefaultStateDirUsesHome(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))
	t.Setenv("VOCARIS_STATE_DIR", "")

	dir, err := DefaultStateDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := filepath.Join("/tmp", "test-home", ".local", "state", "vocaris")
	if dir != expected {
		t.Fatalf("expected %s, got %s", expected, dir)
	}
}

func TestDefaultStateDirUsesOverride(t *testing.T) {
	t.Setenv("VOCARIS_STATE_DIR", filepath.Join("/tmp", "override"))

	dir, err := DefaultStateDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dir != filepath.Join("/tmp", "override") {
		t.Fatalf("expected override dir, got %s", dir)
	}
}

func TestDefaultConfigDirPrefersXDG(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join("/tmp", "xdg"))

	dir, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dir != filepath.Join("/tmp", "xdg", "vocaris") {
		t.Fatalf("expected xdg config dir, got %s", dir)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	dir, err = DefaultConfigDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dir != filepath.Join("/tmp", "test-home", ".config", "vocaris") {
		t.Fatalf("expected home config dir, got %s", dir)
	}
}
