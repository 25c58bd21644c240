package llm

import (
	"context"
	"encoding/json"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// LocalProvider backs the "local" LLM provider: a self-hosted model
// reached through langchaingo's generic llms.Model interface, so an
// operator can point it at Ollama or any OpenAI-compatible local server
// without the core caring which.
type LocalProvider struct {
	model llms.Model
}

// NewLocalProvider builds a local provider against cfg.Endpoint/cfg.Model.
func NewLocalProvider(cfg Config) *LocalProvider {
	opts := []ollama.Option{}
	if cfg.Model != "" {
		opts = append(opts, ollama.WithModel(cfg.Model))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		// Construction failure here means a misconfigured endpoint; the
		// provider still satisfies the interface and surfaces the error
		// on first call rather than panicking at wiring time.
		return &LocalProvider{model: brokenModel{err: err}}
	}
	return &LocalProvider{model: m}
}

func (p *LocalProvider) Describe(ctx context.Context, brief Brief) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, p.model, describePrompt(brief))
	if err != nil {
		return "", sharederrors.Transient(err)
	}
	return text, nil
}

func (p *LocalProvider) Plan(ctx context.Context, prompt string, context map[string]interface{}) (storage.StructuredPlan, error) {
	ctxJSON, _ := json.Marshal(context)
	text, err := llms.GenerateFromSinglePrompt(ctx, p.model, planPrompt(prompt, string(ctxJSON)))
	if err != nil {
		return storage.StructuredPlan{}, sharederrors.Transient(err)
	}
	var plan storage.StructuredPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return storage.StructuredPlan{}, &sharederrors.ContractViolation{Source: "local", Reason: "plan response was not valid JSON: " + err.Error()}
	}
	return plan, nil
}

// brokenModel satisfies llms.Model so construction errors surface
// uniformly through the normal call path instead of a nil dereference.
type brokenModel struct{ err error }

func (b brokenModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, b.err
}

func (b brokenModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", b.err
}
