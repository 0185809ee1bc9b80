package config

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/intent"
)

func writeVocabulary(t *testing.T, path string, extra string) {
	t.Helper()
	data := append(intent.DefaultVocabularyYAML(), []byte(extra)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write vocabulary: %v", err)
	}
}

func startWatcher(t *testing.T, path string, onChange func(VocabularyChangeEvent)) *VocabularyWatcher {
	t.Helper()
	w := NewVocabularyWatcher(VocabularyFile(path), onChange, WithWatchDebounce(50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestVocabularyWatcher_DetectsChange(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "vocabulary.yaml")
	writeVocabulary(t, fp, "")

	var called atomic.Int32
	var mu sync.Mutex
	var last VocabularyChangeEvent
	startWatcher(t, fp, func(evt VocabularyChangeEvent) {
		mu.Lock()
		last = evt
		mu.Unlock()
		called.Add(1)
	})

	time.Sleep(100 * time.Millisecond)
	writeVocabulary(t, fp, "\n# edited\n")

	if !waitFor(func() bool { return called.Load() > 0 }) {
		t.Fatal("onChange was not called after file modification")
	}

	mu.Lock()
	evt := last
	mu.Unlock()
	if evt.Vocabulary == nil {
		t.Fatal("event has nil Vocabulary")
	}
	if evt.OldHash == "" || evt.NewHash == "" || evt.OldHash == evt.NewHash {
		t.Errorf("unexpected hashes old=%q new=%q", evt.OldHash, evt.NewHash)
	}
	if evt.Source != fp {
		t.Errorf("unexpected source %q", evt.Source)
	}
}

func TestVocabularyWatcher_SkipsUnchangedContent(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "vocabulary.yaml")
	writeVocabulary(t, fp, "")

	var called atomic.Int32
	startWatcher(t, fp, func(VocabularyChangeEvent) { called.Add(1) })

	time.Sleep(100 * time.Millisecond)
	writeVocabulary(t, fp, "")
	time.Sleep(300 * time.Millisecond)

	if n := called.Load(); n != 0 {
		t.Errorf("expected no callback for identical content, got %d", n)
	}
}

func TestVocabularyWatcher_IgnoresInvalidVocabulary(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "vocabulary.yaml")
	writeVocabulary(t, fp, "")

	var called atomic.Int32
	startWatcher(t, fp, func(VocabularyChangeEvent) { called.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(fp, []byte("version: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := called.Load(); n != 0 {
		t.Fatalf("expected invalid vocabulary to be ignored, got %d callbacks", n)
	}

	// A later valid edit is still picked up.
	writeVocabulary(t, fp, "\n# fixed\n")
	if !waitFor(func() bool { return called.Load() == 1 }) {
		t.Fatalf("expected one callback after fix, got %d", called.Load())
	}
}

func TestVocabularyWatcher_StartFailsForMissingFile(t *testing.T) {
	w := NewVocabularyWatcher(VocabularyFile(filepath.Join(t.TempDir(), "missing.yaml")), func(VocabularyChangeEvent) {})
	if err := w.Start(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestVocabularyWatcher_StopIsIdempotent(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "vocabulary.yaml")
	writeVocabulary(t, fp, "")
	w := NewVocabularyWatcher(VocabularyFile(fp), func(VocabularyChangeEvent) {})
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	_ = w.Stop()
}

func TestVocabularyFile_Load(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	writeVocabulary(t, good, "")
	v, err := VocabularyFile(good).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v == nil {
		t.Fatal("expected a vocabulary")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := VocabularyFile(bad).Load(); err == nil {
		t.Error("expected an error for an unsupported vocabulary")
	}
	if _, err := VocabularyFile(filepath.Join(dir, "missing.yaml")).Load(); err == nil {
		t.Error("expected an error for a missing file")
	}
}
