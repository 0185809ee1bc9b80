package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/fsnotify/fsnotify"
)

// WatcherOption configures a VocabularyWatcher.
type WatcherOption func(*VocabularyWatcher)

// WithWatchDebounce sets the debounce duration for file change events.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *VocabularyWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *VocabularyWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// VocabularyChangeEvent describes an applied vocabulary reload.
type VocabularyChangeEvent struct {
	Source     string
	OldHash    string
	NewHash    string
	Vocabulary *intent.Vocabulary
	Time       time.Time
}

// VocabularyWatcher monitors a vocabulary file and hands every valid new
// version to onChange. Invalid edits are logged and the previous vocabulary
// stays in effect. It watches the containing directory so atomic saves are
// seen.
type VocabularyWatcher struct {
	file     VocabularyFile
	debounce time.Duration
	logger   *slog.Logger
	onChange func(VocabularyChangeEvent)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	lastHash  string

	mu      sync.Mutex
	pending time.Time
}

// NewVocabularyWatcher creates a watcher for the given file.
func NewVocabularyWatcher(file VocabularyFile, onChange func(VocabularyChangeEvent), opts ...WatcherOption) *VocabularyWatcher {
	w := &VocabularyWatcher{
		file:     file,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start records the current file hash and begins watching. The current
// contents are not delivered to onChange.
func (w *VocabularyWatcher) Start() error {
	_, hash, err := w.file.snapshot()
	if err != nil {
		return fmt.Errorf("vocabulary watcher: initial hash: %w", err)
	}
	w.lastHash = hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("vocabulary watcher: create fsnotify: %w", err)
	}
	w.fsWatcher = fsw

	dir := filepath.Dir(string(w.file))
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("vocabulary watcher: watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for the background goroutine to exit.
// It is safe to call Stop multiple times.
func (w *VocabularyWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *VocabularyWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors and ConfigMap mounts swap files in the directory, so
			// any change there schedules a hash check of the file.
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("vocabulary watcher error", "err", err)

		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *VocabularyWatcher) processPending() {
	w.mu.Lock()
	due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
	if due {
		w.pending = time.Time{}
	}
	w.mu.Unlock()

	if due {
		w.processChange()
	}
}

// processChange reloads the file and calls onChange when the content changed
// and parses as a valid vocabulary.
func (w *VocabularyWatcher) processChange() {
	path := string(w.file)
	data, newHash, err := w.file.snapshot()
	if err != nil {
		w.logger.Error("vocabulary watcher: failed to read file", "path", path, "err", err)
		return
	}
	if newHash == w.lastHash {
		w.logger.Debug("vocabulary watcher: content unchanged, skipping", "path", path)
		return
	}

	vocab, err := intent.ParseVocabulary(data)
	if err != nil {
		w.logger.Warn("vocabulary watcher: keeping previous vocabulary", "path", path, "err", err)
		return
	}

	oldHash := w.lastHash
	w.lastHash = newHash
	w.logger.Info("vocabulary changed", "path", path, "old_hash", oldHash[:8], "new_hash", newHash[:8])

	w.onChange(VocabularyChangeEvent{
		Source:     path,
		OldHash:    oldHash,
		NewHash:    newHash,
		Vocabulary: vocab,
		Time:       time.Now(),
	})
}
