package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// promptFile names a configured prompt file and the slot it fills
type promptFile struct {
	path       string
	promptType string // "system" or "user"
	scope      string // "global" or "suggest"
}

// promptFiles lists every prompt file path present in the configuration
func (c *Config) promptFiles() []promptFile {
	candidates := []promptFile{
		{c.AI.CustomPrompts.SystemPromptFile, "system", "global"},
		{c.AI.CustomPrompts.UserPromptFile, "user", "global"},
		{c.AI.Suggest.CustomPrompts.SystemPromptFile, "system", "suggest"},
		{c.AI.Suggest.CustomPrompts.UserPromptFile, "user", "suggest"},
	}

	var files []promptFile
	for _, f := range candidates {
		if f.path != "" {
			files = append(files, f)
		}
	}
	return files
}

// PromptFilePaths returns the absolute paths of configured prompt files
func (c *Config) PromptFilePaths() []string {
	var paths []string
	for _, f := range c.promptFiles() {
		if abs, err := filepath.Abs(f.path); err == nil {
			paths = append(paths, abs)
		}
	}
	return paths
}

// loadPromptsFromFiles loads custom prompts from external files if file paths are specified
func (c *Config) loadPromptsFromFiles() error {
	log.Println("[CONFIG] Starting custom prompt loading from files")

	if err := c.ReloadPrompts(); err != nil {
		return err
	}

	c.logPromptLoadingSummary()
	return nil
}

// ReloadPrompts re-reads every configured prompt file and swaps the loaded
// set atomically. On error the previously loaded prompts stay in effect.
func (c *Config) ReloadPrompts() error {
	var next AllLoadedPrompts

	for _, f := range c.promptFiles() {
		content, err := c.loadPromptFromFile(f.path, f.promptType, f.scope)
		if err != nil {
			return fmt.Errorf("failed to load %s %s prompt: %w", f.scope, f.promptType, err)
		}

		target := &next.Global
		if f.scope == "suggest" {
			target = &next.Suggest
		}
		if f.promptType == "system" {
			target.SystemPrompt = content
		} else {
			target.UserPrompt = content
		}
	}

	setLoadedPrompts(next)
	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func (c *Config) loadPromptFromFile(filePath, promptType, scope string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s %s prompt file '%s': %w", scope, promptType, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s %s prompt file not found: %s", scope, promptType, absPath)
		}
		return "", fmt.Errorf("failed to read %s %s prompt file '%s': %w", scope, promptType, absPath, err)
	}

	trimmedContent := strings.TrimSpace(string(content))
	if trimmedContent == "" {
		return "", fmt.Errorf("%s %s prompt file '%s' is empty", scope, promptType, absPath)
	}

	log.Printf("[CONFIG] Successfully loaded %s %s prompt from file: %s (%d characters)",
		scope, promptType, absPath, len(trimmedContent))

	return trimmedContent, nil
}

// validatePromptFiles validates that prompt files exist and are readable before loading
func (c *Config) validatePromptFiles() error {
	var validationErrors []string

	for _, f := range c.promptFiles() {
		absPath, err := filepath.Abs(f.path)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid path for %s %s prompt: %s", f.scope, f.promptType, f.path))
			continue
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("%s %s prompt file not found: %s", f.scope, f.promptType, absPath))
		}
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("prompt file validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}

	return nil
}

// logPromptLoadingSummary logs a summary of loaded prompts
func (c *Config) logPromptLoadingSummary() {
	log.Println("[CONFIG] === Custom Prompt Loading Summary ===")

	loadedPromptsMu.RLock()
	promptChecks := []struct {
		content string
		message string
	}{
		{loadedPrompts.Global.SystemPrompt, "[CONFIG] Global system prompt: loaded from file"},
		{loadedPrompts.Global.UserPrompt, "[CONFIG] Global user prompt: loaded from file"},
		{loadedPrompts.Suggest.SystemPrompt, "[CONFIG] Suggest-specific system prompt: loaded from file"},
		{loadedPrompts.Suggest.UserPrompt, "[CONFIG] Suggest-specific user prompt: loaded from file"},
	}
	loadedPromptsMu.RUnlock()

	promptCount := 0
	for _, check := range promptChecks {
		if check.content != "" {
			log.Println(check.message)
			promptCount++
		}
	}

	if promptCount == 0 {
		log.Println("[CONFIG] No custom prompts loaded - using built-in defaults")
	} else {
		log.Printf("[CONFIG] Total custom prompts loaded: %d", promptCount)
	}

	log.Println("[CONFIG] ==========================================")
}
