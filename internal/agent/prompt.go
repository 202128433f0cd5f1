package agent

import (
	"fmt"
	"strings"
)

// PromptBuilder helps construct dynamic prompts for the CRM agent. Facts are
// kept in insertion order so the same deal always produces the same prompt.
type PromptBuilder struct {
	systemPrompt string
	context      []string
	facts        []fact
}

type fact struct {
	key   string
	value string
}

// NewPromptBuilder creates a new prompt builder with a base system prompt
func NewPromptBuilder(systemPrompt string) *PromptBuilder {
	return &PromptBuilder{
		systemPrompt: systemPrompt,
	}
}

// AddContext adds contextual information to the prompt
func (pb *PromptBuilder) AddContext(context string) *PromptBuilder {
	pb.context = append(pb.context, context)
	return pb
}

// AddFact adds a key-value fact to the prompt
func (pb *PromptBuilder) AddFact(key, value string) *PromptBuilder {
	pb.facts = append(pb.facts, fact{key: key, value: value})
	return pb
}

// AddFactf adds a formatted key-value fact to the prompt
func (pb *PromptBuilder) AddFactf(key, format string, args ...any) *PromptBuilder {
	return pb.AddFact(key, fmt.Sprintf(format, args...))
}

// Build constructs the final prompt
func (pb *PromptBuilder) Build() string {
	var parts []string

	// Start with system prompt
	parts = append(parts, pb.systemPrompt)

	// Add facts if any
	if len(pb.facts) > 0 {
		parts = append(parts, "\n## Key Facts:")
		for _, f := range pb.facts {
			parts = append(parts, fmt.Sprintf("- %s: %s", f.key, f.value))
		}
	}

	// Add context if any
	if len(pb.context) > 0 {
		parts = append(parts, "\n## Recent Context:")
		for _, ctx := range pb.context {
			parts = append(parts, fmt.Sprintf("- %s", ctx))
		}
	}

	return strings.Join(parts, "\n")
}
