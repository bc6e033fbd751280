package config

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Timeout == nil {
		opCfg.Timeout = &c.AI.Timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		opCfg.MaxRetries = &c.AI.MaxRetries
	}
	if opCfg.Temperature == nil {
		opCfg.Temperature = &c.AI.Temperature
	}
	// UseSystemPrompts: apply global default only if not explicitly set
	if opCfg.UseSystemPrompts == nil {
		opCfg.UseSystemPrompts = &c.AI.UseSystemPrompts
	}
}

// GetSuggestConfig returns the AI configuration for suggestion requests with fallback to global config
func (c *Config) GetSuggestConfig() OperationAIConfig {
	config := c.AI.Suggest

	c.applyOperationDefaults(&config)

	if config.CustomPrompts.SystemPrompt == "" {
		config.CustomPrompts.SystemPrompt = c.AI.CustomPrompts.SystemPrompt
	}
	if config.CustomPrompts.UserPrompt == "" {
		config.CustomPrompts.UserPrompt = c.AI.CustomPrompts.UserPrompt
	}
	// Also copy file paths so the prompt watcher can follow them
	if config.CustomPrompts.SystemPromptFile == "" {
		config.CustomPrompts.SystemPromptFile = c.AI.CustomPrompts.SystemPromptFile
	}
	if config.CustomPrompts.UserPromptFile == "" {
		config.CustomPrompts.UserPromptFile = c.AI.CustomPrompts.UserPromptFile
	}

	return config
}

// SuggestionSections returns the configured default sections, or nil for all.
func (c *Config) SuggestionSections() []string {
	if len(c.Suggestions.Sections) == 0 {
		return nil
	}
	return c.Suggestions.Sections
}
