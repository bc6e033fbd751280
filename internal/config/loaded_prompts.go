package config

import (
	"sync"
)

var (
	loadedPromptsMu sync.RWMutex
	loadedPrompts   AllLoadedPrompts
)

// LoadedPrompts holds the content of prompts loaded from files
type LoadedPrompts struct {
	SystemPrompt string
	UserPrompt   string
}

// AllLoadedPrompts holds loaded prompts for the global scope and each operation
type AllLoadedPrompts struct {
	Global  LoadedPrompts
	Suggest LoadedPrompts
}

// GetPromptsForOperation returns a copy of the loaded prompts for an operation
// type. Operation-specific files win over global ones.
func GetPromptsForOperation(operationType string) LoadedPrompts {
	loadedPromptsMu.RLock()
	defer loadedPromptsMu.RUnlock()

	result := loadedPrompts.Global
	if operationType == "suggest" {
		if loadedPrompts.Suggest.SystemPrompt != "" {
			result.SystemPrompt = loadedPrompts.Suggest.SystemPrompt
		}
		if loadedPrompts.Suggest.UserPrompt != "" {
			result.UserPrompt = loadedPrompts.Suggest.UserPrompt
		}
	}
	return result
}

func setLoadedPrompts(p AllLoadedPrompts) {
	loadedPromptsMu.Lock()
	loadedPrompts = p
	loadedPromptsMu.Unlock()
}

// resetLoadedPrompts clears file-backed prompts; used by tests.
func resetLoadedPrompts() {
	setLoadedPrompts(AllLoadedPrompts{})
}
