package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/codeplug"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

const watchCodeplug = `radioWide:
  model: %s
systems:
  - name: North
    address: 127.0.0.1
    port: 3000
zones:
  - name: Zone 1
    channels:
      - name: Dispatch
        system: North
        tgid: 2001
`

type recordingTarget struct {
	mu     sync.Mutex
	models []string
}

func (r *recordingTarget) SetCodeplug(cp *codeplug.Codeplug) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, cp.RadioWide.Model)
}

func (r *recordingTarget) last() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		return "", 0
	}
	return r.models[len(r.models)-1], len(r.models)
}

func writeCodeplug(t *testing.T, path, model string) {
	t.Helper()
	body := []byte(strings.Replace(watchCodeplug, "%s", model, 1))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write codeplug: %v", err)
	}
}

func TestCodeplugWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeplug.yml")
	writeCodeplug(t, path, "APX6000")

	target := &recordingTarget{}
	w := newCodeplugWatcher(path, target, logger.Nop())
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	}()

	// the watch is registered asynchronously; keep rewriting until seen
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		writeCodeplug(t, path, "APX8000")
		time.Sleep(100 * time.Millisecond)
		if model, _ := target.last(); model == "APX8000" {
			return
		}
	}
	t.Fatal("Codeplug was not reloaded after the file changed")
}

func TestCodeplugWatcher_IgnoresInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeplug.yml")
	if err := os.WriteFile(path, []byte("zones: ["), 0o644); err != nil {
		t.Fatal(err)
	}

	target := &recordingTarget{}
	w := newCodeplugWatcher(path, target, logger.Nop())
	w.reload()

	if _, n := target.last(); n != 0 {
		t.Errorf("Invalid codeplug should not be applied, got %d reloads", n)
	}
}

func TestCodeplugWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "codeplug.yml")
	w := newCodeplugWatcher(path, &recordingTarget{}, logger.Nop())
	if err := w.Run(context.Background()); err == nil {
		t.Error("Expected an error watching a missing directory")
	}
}
