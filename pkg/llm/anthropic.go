package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// AnthropicProvider backs the "anthropic" LLM provider.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds a provider from cfg; the model name
// defaults to a small, fast model suited to short descriptions and plan
// objects, never surfaced to the core.
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) Describe(ctx context.Context, brief Brief) (string, error) {
	prompt := describePrompt(brief)
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicErr(err)
	}
	if len(msg.Content) == 0 {
		return "", &sharederrors.ContractViolation{Source: "anthropic", Reason: "empty response content"}
	}
	return msg.Content[0].Text, nil
}

func (p *AnthropicProvider) Plan(ctx context.Context, prompt string, context map[string]interface{}) (storage.StructuredPlan, error) {
	ctxJSON, _ := json.Marshal(context)
	fullPrompt := planPrompt(prompt, string(ctxJSON))

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fullPrompt)),
		},
	})
	if err != nil {
		return storage.StructuredPlan{}, classifyAnthropicErr(err)
	}
	if len(msg.Content) == 0 {
		return storage.StructuredPlan{}, &sharederrors.ContractViolation{Source: "anthropic", Reason: "empty response content"}
	}

	var plan storage.StructuredPlan
	if err := json.Unmarshal([]byte(msg.Content[0].Text), &plan); err != nil {
		return storage.StructuredPlan{}, &sharederrors.ContractViolation{Source: "anthropic", Reason: "plan response was not valid JSON: " + err.Error()}
	}
	return plan, nil
}

func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok && apiErr.StatusCode >= 500 {
		return sharederrors.Transient(err)
	}
	return err
}

// asAnthropicError is split out so it can be swapped in tests without
// depending on the SDK's errors.As behavior for a concrete type.
func asAnthropicError(err error, target **anthropic.Error) bool {
	ae, ok := err.(*anthropic.Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}

func describePrompt(b Brief) string {
	return fmt.Sprintf("Describe this home-automation opportunity in one short paragraph, no code: kind=%s anchor=%s devices=%v metadata=%v context=%v",
		b.Kind, b.Anchor, b.Devices, b.Metadata, b.Context)
}

func planPrompt(prompt, contextJSON string) string {
	return fmt.Sprintf("Produce a JSON object with fields triggers, conditions, actions for: %s\nContext: %s", prompt, contextJSON)
}
