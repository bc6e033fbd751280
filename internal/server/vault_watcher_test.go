package server

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcoach/internal/config"
)

// MockVaultClient is a mock implementation for testing
type MockVaultClient struct {
	mu      sync.Mutex
	secrets map[string]*config.VaultSecret
	err     error
}

func (m *MockVaultClient) set(path string, version int64, keys string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[path] = &config.VaultSecret{Data: map[string]any{config.VaultKeyAPIKeys: keys}, Version: version}
}

func (m *MockVaultClient) GetSecretV2(path string) (*config.VaultSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if secret, exists := m.secrets[path]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found", path)
}

func (m *MockVaultClient) GetStringSliceSecret(path, key string) ([]string, error) {
	secret, err := m.GetSecretV2(path)
	if err != nil {
		return nil, err
	}
	raw, _ := secret.Data[key].(string)
	var keys []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys, nil
}

func newTestWatcher(client VaultClientInterface, cb APIKeyReloadCallback) *APIKeyWatcher {
	return NewAPIKeyWatcher(client, "secret/data/keys", time.Minute, cb, nil)
}

func TestAPIKeyWatcherCheckForUpdates(t *testing.T) {
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{}}
	client.set("secret/data/keys", 2, "a")
	w := newTestWatcher(client, func([]string, error) {})

	changed, err := w.checkForUpdates()
	require.NoError(t, err)
	assert.True(t, changed, "version 0 to 2 is a change")

	changed, err = w.checkForUpdates()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAPIKeyWatcherPollDeliversRotatedKeys(t *testing.T) {
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{}}
	client.set("secret/data/keys", 1, "old")

	var got []string
	w := newTestWatcher(client, func(keys []string, err error) {
		require.NoError(t, err)
		got = keys
	})
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	w.poll()
	assert.Nil(t, got, "the version seen at start is not a rotation")

	client.set("secret/data/keys", 2, "new-one,new-two")
	w.poll()
	assert.Equal(t, []string{"new-one", "new-two"}, got)

	status := w.Status()
	assert.Equal(t, int64(2), status["last_version"])
	assert.Equal(t, 1, status["reload_count"])
	assert.Equal(t, true, status["running"])
}

func TestAPIKeyWatcherRefusesEmptyKeySet(t *testing.T) {
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{}}
	client.set("secret/data/keys", 1, "")

	var gotErr error
	called := false
	w := newTestWatcher(client, func(keys []string, err error) {
		called = true
		gotErr = err
	})

	w.poll()
	assert.True(t, called)
	assert.ErrorContains(t, gotErr, "holds no API keys")
	assert.Contains(t, w.Status()["last_error"], "holds no API keys")
}

func TestAPIKeyWatcherVaultError(t *testing.T) {
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{}, err: fmt.Errorf("sealed")}
	called := false
	w := newTestWatcher(client, func([]string, error) { called = true })

	w.poll()
	assert.False(t, called, "read failures are logged, not delivered")
	assert.Contains(t, w.Status()["last_error"], "sealed")
}

func TestAPIKeyWatcherStartStop(t *testing.T) {
	client := &MockVaultClient{secrets: map[string]*config.VaultSecret{}}
	client.set("secret/data/keys", 1, "a")
	w := newTestWatcher(client, func([]string, error) {})

	require.NoError(t, w.Start())
	assert.Error(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Equal(t, false, w.Status()["running"])
}
