package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcoach/internal/errors"
)

func newMockLogger() *errors.Logger {
	logger, _ := errors.New("debug")
	return logger
}

// newFakeVault serves KVv2 secrets keyed by request path, e.g. "/v1/secret/data/x".
func newFakeVault(t *testing.T, secrets map[string]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/sys/health" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"initialized":  true,
				"sealed":       false,
				"standby":      false,
				"version":      "1.15.0",
				"cluster_name": "test",
			})
			return
		}
		data, ok := secrets[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     data,
				"metadata": map[string]any{"version": 3},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseVersionValue(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		expected    int64
		expectError bool
	}{
		{name: "int64 value", input: int64(42), expected: 42},
		{name: "float64 value", input: float64(42.0), expected: 42},
		{name: "json number", input: json.Number("7"), expected: 7},
		{name: "string value", input: "42", expected: 42},
		{name: "invalid json number", input: json.Number("4.5"), expectError: true},
		{name: "invalid string value", input: "not-a-number", expectError: true},
		{name: "unsupported type", input: []string{"42"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseVersionValue(tt.input, "test/path")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestApplyGeminiKeyToConfig(t *testing.T) {
	config := &Config{}
	applyGeminiKeyToConfig(config, "gemini-key")

	assert.Equal(t, "gemini-key", config.AI.APIKey)
	assert.Equal(t, "gemini-key", config.AI.Suggest.APIKey)
}

func TestApplyGeminiKeyToConfigKeepsOperationKey(t *testing.T) {
	config := &Config{AI: AIConfig{Suggest: OperationAIConfig{APIKey: "suggest-key"}}}
	applyGeminiKeyToConfig(config, "gemini-key")

	assert.Equal(t, "gemini-key", config.AI.APIKey)
	assert.Equal(t, "suggest-key", config.AI.Suggest.APIKey)
}

func TestResolveVaultToken(t *testing.T) {
	logger := newMockLogger()

	t.Run("token from config", func(t *testing.T) {
		token, err := resolveVaultToken(VaultConfig{Token: "direct-token"}, logger)
		assert.NoError(t, err)
		assert.Equal(t, "direct-token", token)
	})

	t.Run("token from file", func(t *testing.T) {
		tokenFile := filepath.Join(t.TempDir(), "vault-token")
		require.NoError(t, os.WriteFile(tokenFile, []byte("  file-token  \n"), 0600))

		token, err := resolveVaultToken(VaultConfig{TokenFile: tokenFile}, logger)
		assert.NoError(t, err)
		assert.Equal(t, "file-token", token)
	})

	t.Run("missing token file", func(t *testing.T) {
		_, err := resolveVaultToken(VaultConfig{TokenFile: "/nonexistent/token/file"}, logger)
		assert.ErrorContains(t, err, "failed to read vault token file")
	})

	t.Run("no token provided", func(t *testing.T) {
		_, err := resolveVaultToken(VaultConfig{}, logger)
		assert.ErrorContains(t, err, "vault token is required")
	})
}

func TestApplyVaultSecretsDisabled(t *testing.T) {
	config := &Config{Vault: VaultConfig{Enabled: false}}
	assert.NoError(t, ApplyVaultSecrets(config, newMockLogger()))
}

func TestApplyVaultSecrets(t *testing.T) {
	srv := newFakeVault(t, map[string]map[string]any{
		"/v1/secret/data/cvcoach/api-keys": {VaultKeyAPIKeys: "key-one, key-two"},
		"/v1/secret/data/cvcoach/gemini":   {VaultKeyGeminiKey: "gemini-from-vault"},
		"/v1/secret/data/cvcoach/database": {VaultKeyDatabaseURL: "postgres://cv:cv@db/cv"},
	})

	config := &Config{
		AI: AIConfig{APIKey: "from-env"},
		Vault: VaultConfig{
			Enabled: true,
			Address: srv.URL,
			Token:   "test-token",
			Secrets: VaultSecrets{
				APIKeys:     "secret/data/cvcoach/api-keys",
				GeminiKey:   "secret/data/cvcoach/gemini",
				DatabaseURL: "secret/data/cvcoach/database",
			},
		},
	}

	require.NoError(t, ApplyVaultSecrets(config, newMockLogger()))

	assert.Equal(t, []string{"key-one", "key-two"}, config.Server.APIKeys)
	assert.Equal(t, "gemini-from-vault", config.AI.APIKey)
	assert.Equal(t, "gemini-from-vault", config.AI.Suggest.APIKey)
	assert.Equal(t, "postgres://cv:cv@db/cv", config.Storage.Database.URL)
}

func TestApplyVaultSecretsMissingSecret(t *testing.T) {
	srv := newFakeVault(t, nil)

	config := &Config{
		Vault: VaultConfig{
			Enabled: true,
			Address: srv.URL,
			Token:   "test-token",
			Secrets: VaultSecrets{GeminiKey: "secret/data/missing"},
		},
	}

	err := ApplyVaultSecrets(config, newMockLogger())
	assert.ErrorContains(t, err, "failed to load Gemini API key from vault")
}

func TestVaultClientGetSecretV2(t *testing.T) {
	srv := newFakeVault(t, map[string]map[string]any{
		"/v1/secret/data/app": {"keys": "a,b"},
	})

	client, err := NewVaultClient(VaultConfig{Enabled: true, Address: srv.URL, Token: "t"}, newMockLogger())
	require.NoError(t, err)

	secret, err := client.GetSecretV2("secret/data/app")
	require.NoError(t, err)
	assert.Equal(t, int64(3), secret.Version)

	keys, err := client.GetStringSliceSecret("secret/data/app", "keys")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	_, err = client.GetStringSecret("secret/data/app", "missing")
	assert.ErrorContains(t, err, "key 'missing' not found")
}

func TestVaultClientExtractSecretData(t *testing.T) {
	vc := &VaultClient{logger: newMockLogger()}

	tests := []struct {
		name        string
		secret      *api.Secret
		expectError bool
		expected    map[string]any
	}{
		{
			name:     "valid KVv2 secret",
			secret:   &api.Secret{Data: map[string]any{"data": map[string]any{"key1": "value1"}}},
			expected: map[string]any{"key1": "value1"},
		},
		{
			name:        "missing data field",
			secret:      &api.Secret{Data: map[string]any{"metadata": map[string]any{}}},
			expectError: true,
		},
		{
			name:        "data field wrong type",
			secret:      &api.Secret{Data: map[string]any{"data": "not-a-map"}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := vc.extractSecretData(tt.secret, "secret/test")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestVaultClientExtractSecretVersion(t *testing.T) {
	vc := &VaultClient{logger: newMockLogger()}

	tests := []struct {
		name        string
		secret      *api.Secret
		expectError bool
		expected    int64
	}{
		{
			name:     "valid version",
			secret:   &api.Secret{Data: map[string]any{"metadata": map[string]any{"version": int64(42)}}},
			expected: 42,
		},
		{
			name:        "missing metadata field",
			secret:      &api.Secret{Data: map[string]any{"data": map[string]any{}}},
			expectError: true,
		},
		{
			name:        "missing version field",
			secret:      &api.Secret{Data: map[string]any{"metadata": map[string]any{"other": "value"}}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := vc.extractSecretVersion(tt.secret, "secret/test")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "abcd****mnop", maskSecret("abcdefghijklmnop"))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "", maskSecret(""))
}
