package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxRetries", 3)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.useSystemPrompts", true)
	v.SetDefault("ai.customPrompts.systemPrompt", "")
	v.SetDefault("ai.customPrompts.systemPromptFile", "")
	v.SetDefault("ai.customPrompts.userPrompt", "")
	v.SetDefault("ai.customPrompts.userPromptFile", "")

	// AI Configuration - Suggest operation defaults
	v.SetDefault("ai.suggest.provider", "gemini")
	v.SetDefault("ai.suggest.model", "")
	v.SetDefault("ai.suggest.timeout", 45*time.Second)
	v.SetDefault("ai.suggest.apiKey", "")
	v.SetDefault("ai.suggest.maxRetries", 2) // transport-level retries per attempt
	v.SetDefault("ai.suggest.temperature", 0.4)
	v.SetDefault("ai.suggest.useSystemPrompts", true)

	v.SetDefault("ai.suggest.circuitBreaker.enabled", true)
	v.SetDefault("ai.suggest.circuitBreaker.maxRequests", 3)
	v.SetDefault("ai.suggest.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("ai.suggest.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("ai.suggest.circuitBreaker.minRequests", 5)
	v.SetDefault("ai.suggest.circuitBreaker.failureThreshold", 0.6)

	// Suggestion workflow
	v.SetDefault("suggestions.maxAttempts", 7)
	v.SetDefault("suggestions.sections", []string{})
	v.SetDefault("suggestions.requestTimeout", 5*time.Minute)

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 6*time.Minute) // longer than suggestions.requestTimeout
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxRequestSize", 1024*1024)
	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 1024*1024) // 1MB
	v.SetDefault("app.concurrency", 4)

	// Storage Configuration
	v.SetDefault("storage.sessions.backend", "memory")
	v.SetDefault("storage.sessions.ttl", 24*time.Hour)
	v.SetDefault("storage.sessions.sweepInterval", 5*time.Minute)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.lockTTL", 10*time.Minute)
	v.SetDefault("storage.database.url", "")
	v.SetDefault("storage.database.maxConns", 10)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.databaseURL", "")
	v.SetDefault("vault.watcher.enabled", false)
	v.SetDefault("vault.watcher.pollInterval", 5*time.Minute)

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "cvcoach")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackModelInfo", true)
	v.SetDefault("observability.customMetrics.businessMetrics.enabled", true)
	v.SetDefault("observability.customMetrics.businessMetrics.trackSuccessRates", true)
	v.SetDefault("observability.customMetrics.businessMetrics.trackDecisions", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)
	v.SetDefault("observability.console.enabled", false)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.timeout", 15*time.Second)
	v.SetDefault("observability.healthCheck.aiModelCheckTimeout", 10*time.Second)
}
