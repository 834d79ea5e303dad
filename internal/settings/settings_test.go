package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/probelight/qa-recorder/internal/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Recording.Mode != models.ModeAuto {
		t.Errorf("Mode = %s, want auto", cfg.Recording.Mode)
	}
	if cfg.Recording.DebounceMs != 350 {
		t.Errorf("DebounceMs = %d, want 350", cfg.Recording.DebounceMs)
	}
	if cfg.Address == "" {
		t.Error("expected a default address")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
address: "127.0.0.1:9999"
recording:
  mode: manual
  delay_ms: 500
  arm_next: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Address != "127.0.0.1:9999" {
		t.Errorf("Address = %s", cfg.Address)
	}
	if cfg.Recording.Mode != models.ModeManual {
		t.Errorf("Mode = %s, want manual", cfg.Recording.Mode)
	}
	if cfg.Recording.Delay() != 500*time.Millisecond {
		t.Errorf("Delay = %v, want 500ms", cfg.Recording.Delay())
	}
	if !cfg.Recording.ArmNext {
		t.Error("ArmNext not parsed")
	}
	// Unset fields keep their defaults.
	if cfg.Recording.DebounceMs != 350 {
		t.Errorf("DebounceMs = %d, want default 350", cfg.Recording.DebounceMs)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "recording:\n  mode: sometimes\n"},
		{"negative delay", "recording:\n  mode: auto\n  delay_ms: -5\n"},
		{"negative debounce", "recording:\n  mode: auto\n  debounce_ms: -1\n"},
		{"empty address", "address: \"\"\n"},
		{"not yaml", "\t{nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("Failed to write settings: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected Load to fail")
			}
		})
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("recording:\n  mode: auto\n"), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}

	var mu sync.Mutex
	var got []*Settings
	w := NewWatcher(path, func(cfg *Settings) {
		mu.Lock()
		got = append(got, cfg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher a beat to install before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("recording:\n  mode: manual\n  delay_ms: 250\n"), 0o644); err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never delivered the reload")
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	last := got[len(got)-1]
	mu.Unlock()
	if last.Recording.Mode != models.ModeManual || last.Recording.DelayMs != 250 {
		t.Errorf("reloaded settings wrong: %+v", last.Recording)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherKeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("recording:\n  mode: auto\n"), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	w := NewWatcher(path, func(cfg *Settings) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("recording:\n  mode: sometimes\n"), 0o644); err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	// The invalid file must not reach the callback.
	time.Sleep(600 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("invalid settings reached the callback %d times", calls)
	}
}
