package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	c.applyServerAPIKeyFallbacks()
	c.applyGeminiKeyFallback()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()

	if c.Suggestions.MaxAttempts == 0 {
		c.Suggestions.MaxAttempts = 7
	}
}

// applyServerAPIKeyFallbacks normalizes API keys, which may arrive as a
// comma separated CVCOACH_SERVER_APIKEYS value
func (c *Config) applyServerAPIKeyFallbacks() {
	c.Server.APIKeys = splitKeys(strings.Join(c.Server.APIKeys, ","))
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv(envPrefix + "_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitKeys(apiKeysEnv)
		}
	}
}

func splitKeys(s string) []string {
	var keys []string
	for key := range strings.SplitSeq(s, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// applyGeminiKeyFallback honours the GEMINI_API_KEY variable used by the Gemini tooling
func (c *Config) applyGeminiKeyFallback() {
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// applyTLSDefaults applies default TLS configuration values
func (c *Config) applyTLSDefaults() {
	if c.Server.TLS.Mode == "" {
		c.Server.TLS.Mode = "disabled"
	}
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		envPrefix + "_AI_APIKEY",
		envPrefix + "_AI_PROVIDER",
		envPrefix + "_AI_MODEL",
		envPrefix + "_SERVER_PORT",
		envPrefix + "_SERVER_HOST",
		envPrefix + "_APP_LOGLEVEL",
		envPrefix + "_STORAGE_SESSIONS_BACKEND",
		envPrefix + "_STORAGE_DATABASE_URL",
		envPrefix + "_VAULT_ENABLED",
		"GEMINI_API_KEY",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if isSensitiveEnv(envVar) {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] AI Provider: %s", c.AI.Provider)
	log.Printf("[CONFIG] AI Model: %s", c.AI.Model)
	if c.AI.APIKey != "" {
		log.Println("[CONFIG] AI API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] AI API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Suggestion attempts: %d", c.Suggestions.MaxAttempts)
	log.Printf("[CONFIG] Session backend: %s (ttl %s)", c.Storage.Sessions.Backend, c.Storage.Sessions.TTL)
	if c.Storage.Database.URL != "" {
		log.Println("[CONFIG] Document database: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] Document database: not configured, save disabled")
	}
	log.Printf("[CONFIG] Server Host: %s", c.Server.Host)
	log.Printf("[CONFIG] Server Port: %s", c.Server.Port)
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] TLS Mode: %s", c.Server.TLS.Mode)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	log.Printf("[CONFIG] Suggest - Provider: %s, Model: %s", c.AI.Suggest.Provider, c.AI.Suggest.Model)

	log.Println("[CONFIG] =====================================")
}

func isSensitiveEnv(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "key") || strings.Contains(lower, "url")
}
