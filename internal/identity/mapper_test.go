package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
		err  bool
	}{
		{name: "empty", in: "  ", want: map[string]string{}},
		{name: "json", in: `{"bob":"111","carol":"222"}`, want: map[string]string{"bob": "111", "carol": "222"}},
		{name: "json number id", in: `{"bob": 123456789012345678}`, want: map[string]string{"bob": "123456789012345678"}},
		{name: "yaml", in: "bob: \"111\"\ncarol: 222\n", want: map[string]string{"bob": "111", "carol": "222"}},
		{name: "blank values dropped", in: `{"bob":"","carol":"2"}`, want: map[string]string{"carol": "2"}},
		{name: "invalid", in: `{"bob":`, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if tt.err {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("key %s: got %q want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestFromEnvInvalidJSONIsEmpty(t *testing.T) {
	m := FromEnv("{not json", "", nil)
	if m.Len() != 0 {
		t.Fatalf("expected empty mapping, got %d", m.Len())
	}
	if _, ok := m.Lookup("bob"); ok {
		t.Fatal("lookup should miss")
	}
}

func TestFileOverridesInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte("bob: \"999\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := FromEnv(`{"bob":"111","carol":"222"}`, path, nil)

	if id, _ := m.Lookup("bob"); id != "999" {
		t.Fatalf("bob = %q, want file value", id)
	}
	if id, _ := m.Lookup("carol"); id != "222" {
		t.Fatalf("carol = %q, want inline value", id)
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte(`{"bob":"1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := New(nil, path, nil)
	if err := os.WriteFile(path, []byte(`{"bob":`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if id, _ := m.Lookup("bob"); id != "1" {
		t.Fatalf("bob = %q, previous mapping should survive", id)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte(`{"bob":"1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := New(nil, path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"bob":"2"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if id, _ := m.Lookup("bob"); id == "2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("mapping was not reloaded after write")
}
