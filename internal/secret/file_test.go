package secret

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLoaderTracksChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhook")
	if err := os.WriteFile(path, []byte(" https://example.test/a \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	l := NewFileLoader(path)

	v, changed, err := l.Load()
	if err != nil || !changed || v != "https://example.test/a" {
		t.Fatalf("first load = %q %v %v", v, changed, err)
	}
	_, changed, _ = l.Load()
	if changed {
		t.Fatal("unchanged file reported as changed")
	}

	if err := os.WriteFile(path, []byte("https://example.test/b"), 0o600); err != nil {
		t.Fatal(err)
	}
	v, changed, _ = l.Load()
	if !changed || v != "https://example.test/b" {
		t.Fatalf("rotation not picked up: %q %v", v, changed)
	}

	if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Load(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestSourcePrefersInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s")
	_ = os.WriteFile(path, []byte("from-file"), 0o600)

	if v, _ := Source(" inline ", path)(); v != "inline" {
		t.Fatalf("got %q", v)
	}
	if v, _ := Source("", path)(); v != "from-file" {
		t.Fatalf("got %q", v)
	}
	if v, err := Source("", "")(); v != "" || err != nil {
		t.Fatalf("got %q %v", v, err)
	}
	if _, err := Source("", filepath.Join(t.TempDir(), "missing"))(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
