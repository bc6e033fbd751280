package server

import (
	"fmt"
	"sync"
	"time"

	"cvcoach/internal/config"
	"cvcoach/internal/errors"
)

// VaultClientInterface defines the interface for Vault operations
type VaultClientInterface interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
	GetStringSliceSecret(path, key string) ([]string, error)
}

// APIKeyReloadCallback receives the rotated key set, or the error that
// prevented reading it.
type APIKeyReloadCallback func(keys []string, err error)

// APIKeyWatcher polls the Vault API key secret and hands new keys to its
// callback whenever the KVv2 version increases.
type APIKeyWatcher struct {
	mu sync.RWMutex

	client         VaultClientInterface
	secretPath     string
	pollInterval   time.Duration
	reloadCallback APIKeyReloadCallback
	logger         *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	lastReload  time.Time
	reloadCount int
	lastError   string
}

// NewAPIKeyWatcher creates a watcher for the secret at secretPath
func NewAPIKeyWatcher(client VaultClientInterface, secretPath string, pollInterval time.Duration, reloadCallback APIKeyReloadCallback, logger *errors.Logger) *APIKeyWatcher {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &APIKeyWatcher{
		client:         client,
		secretPath:     secretPath,
		pollInterval:   pollInterval,
		reloadCallback: reloadCallback,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start records the current secret version and begins polling. Keys
// already loaded at startup are not reloaded until the version changes.
func (w *APIKeyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("api key watcher is already running")
	}

	if secret, err := w.client.GetSecretV2(w.secretPath); err == nil && secret != nil {
		w.lastVersion = secret.Version
	} else if err != nil && w.logger != nil {
		w.logger.LogError(err, "Failed to read initial API key secret version", "secret_path", w.secretPath)
	}

	w.running = true
	go w.pollLoop()
	if w.logger != nil {
		w.logger.Info("API key watcher started", "secret_path", w.secretPath, "poll_interval", w.pollInterval)
	}
	return nil
}

// Stop stops the watcher
func (w *APIKeyWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false
	if w.logger != nil {
		w.logger.Info("API key watcher stopped")
	}
	return nil
}

func (w *APIKeyWatcher) pollLoop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.stopChan:
			return
		}
	}
}

// poll runs one version check and delivers new keys when it changed
func (w *APIKeyWatcher) poll() {
	changed, err := w.checkForUpdates()
	if err != nil {
		w.recordResult(err)
		if w.logger != nil {
			w.logger.LogError(err, "Failed to check Vault for API key updates")
		}
		return
	}
	if !changed {
		return
	}

	keys, err := w.fetchKeys()
	w.recordResult(err)
	if err != nil {
		if w.logger != nil {
			w.logger.LogError(err, "Failed to fetch rotated API keys from Vault")
		}
		w.reloadCallback(nil, err)
		return
	}
	if w.logger != nil {
		w.logger.Info("API keys rotated from Vault", "key_count", len(keys))
	}
	w.reloadCallback(keys, nil)
}

// checkForUpdates checks if the Vault secret version has changed
func (w *APIKeyWatcher) checkForUpdates() (bool, error) {
	secret, err := w.client.GetSecretV2(w.secretPath)
	if err != nil {
		return false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil {
		return false, fmt.Errorf("secret %s not found", w.secretPath)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if secret.Version > w.lastVersion {
		w.lastVersion = secret.Version
		return true, nil
	}
	return false, nil
}

// fetchKeys reads the comma-separated key list. An empty list is refused so
// a bad rotation cannot disable authentication.
func (w *APIKeyWatcher) fetchKeys() ([]string, error) {
	keys, err := w.client.GetStringSliceSecret(w.secretPath, config.VaultKeyAPIKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch API keys from vault: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("vault secret %s holds no API keys", w.secretPath)
	}
	return keys, nil
}

func (w *APIKeyWatcher) recordResult(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.lastError = err.Error()
		return
	}
	w.lastError = ""
	w.lastReload = time.Now()
	w.reloadCount++
}

// Status returns the current status of the watcher for health reporting
func (w *APIKeyWatcher) Status() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	status := map[string]any{
		"running":       w.running,
		"poll_interval": w.pollInterval.String(),
		"secret_path":   w.secretPath,
		"last_version":  w.lastVersion,
		"reload_count":  w.reloadCount,
	}
	if !w.lastReload.IsZero() {
		status["last_reload"] = w.lastReload
	}
	if w.lastError != "" {
		status["last_error"] = w.lastError
	}
	return status
}
