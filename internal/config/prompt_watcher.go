package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cvcoach/internal/errors"
)

// PromptWatcher reloads custom prompt files when they change on disk so
// prompt edits take effect without restarting the server.
type PromptWatcher struct {
	mu sync.Mutex

	cfg    *Config
	files  []string
	logger *errors.Logger

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}
	onReload   func(error)

	running bool
}

// NewPromptWatcher creates a watcher for the prompt files referenced by cfg.
// onReload, if set, is called after every reload attempt.
func NewPromptWatcher(cfg *Config, debounceDelay time.Duration, onReload func(error), logger *errors.Logger) *PromptWatcher {
	if debounceDelay == 0 {
		debounceDelay = 500 * time.Millisecond
	}

	return &PromptWatcher{
		cfg:           cfg,
		files:         cfg.PromptFilePaths(),
		logger:        logger,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		onReload:      onReload,
	}
}

// Files returns the prompt files being watched
func (pw *PromptWatcher) Files() []string {
	return slices.Clone(pw.files)
}

// Start begins watching. It is a no-op when no prompt files are configured.
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}
	if len(pw.files) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt file watcher: %w", err)
	}

	// Watch directories so editors that write via rename are still seen.
	dirs := make(map[string]struct{})
	for _, file := range pw.files {
		dirs[filepath.Dir(file)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch prompt directory %s: %w", dir, err)
		}
	}

	pw.fsWatcher = watcher
	pw.running = true
	go pw.watchLoop()

	pw.logger.Info("Prompt file watcher started",
		"files", pw.files,
		"debounce_delay", pw.debounceDelay)
	return nil
}

// Stop stops the watcher
func (pw *PromptWatcher) Stop() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.running {
		return nil
	}

	close(pw.stopChan)
	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.running = false

	if err := pw.fsWatcher.Close(); err != nil {
		pw.logger.LogError(err, "Failed to close prompt file watcher")
		return err
	}

	pw.logger.Info("Prompt file watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is active
func (pw *PromptWatcher) IsRunning() bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.running
}

func (pw *PromptWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-pw.fsWatcher.Events:
			if !ok {
				return
			}
			if pw.shouldProcessEvent(event) {
				pw.scheduleReload()
			}

		case err, ok := <-pw.fsWatcher.Errors:
			if !ok {
				return
			}
			pw.logger.LogError(err, "Prompt file watcher error")

		case <-pw.reloadChan:
			err := pw.cfg.ReloadPrompts()
			if err != nil {
				pw.logger.LogError(err, "Prompt reload failed, keeping previous prompts")
			} else {
				pw.logger.Info("Custom prompts reloaded", "files", pw.files)
			}
			if pw.onReload != nil {
				pw.onReload(err)
			}

		case <-pw.stopChan:
			return
		}
	}
}

func (pw *PromptWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if !slices.Contains(pw.files, name) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}

	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reloadChan <- struct{}{}:
		default:
		}
	})
}
