// Package llm implements the LLM adapter boundary: two roles,
// describe and plan, fronted by provider-specific clients the core never
// names directly. The core depends only on the Provider interface;
// NewClient is the sole place that knows about concrete model names.
package llm

import (
	"context"

	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Brief is the structured input to describe(): "brief is a
// structured record {kind, anchor, metadata, devices, context}".
type Brief struct {
	Kind     string
	Anchor   string
	Metadata map[string]interface{}
	Devices  []string
	Context  map[string]interface{}
}

// Provider is the narrow two-role LLM contract: describe and
// plan. The core is agnostic to model name or local-vs-remote execution.
type Provider interface {
	// Describe returns a single natural-language paragraph for brief, no
	// code.
	Describe(ctx context.Context, brief Brief) (string, error)
	// Plan returns a language-neutral, typed plan object (triggers,
	// conditions, actions), never a platform artefact.
	Plan(ctx context.Context, prompt string, context map[string]interface{}) (storage.StructuredPlan, error)
}
