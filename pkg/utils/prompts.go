package utils

import (
	"fmt"
	"os"
	"strings"
)

// LoadPrompt reads prompt instructions from an exact file path
func LoadPrompt(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", filePath, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// LoadPromptWithFallback reads prompt instructions from a file, returning the
// fallback string when the path is empty or unreadable
func LoadPromptWithFallback(filePath, fallback string) string {
	if filePath == "" {
		return fallback
	}
	if content, err := LoadPrompt(filePath); err == nil {
		return content
	}
	return fallback
}
