package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// BedrockProvider backs the "bedrock" LLM provider, for deployments that
// run entirely inside an existing AWS account rather than calling out to
// a model vendor directly.
type BedrockProvider struct {
	client  *bedrockruntime.Client
	modelID string
}

type bedrockRequest struct {
	Prompt            string `json:"prompt"`
	MaxTokensToSample int    `json:"max_tokens_to_sample"`
}

type bedrockResponse struct {
	Completion string `json:"completion"`
}

// NewBedrockProvider loads the ambient AWS config (region, credentials)
// the same way any other AWS SDK v2 client in this codebase would.
func NewBedrockProvider(cfg Config) (*BedrockProvider, error) {
	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, sharederrors.FailedTo("load AWS config for bedrock provider", err)
	}
	model := cfg.Model
	if model == "" {
		model = "anthropic.claude-3-5-haiku-20241022-v1:0"
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(awsCfg), modelID: model}, nil
}

func (p *BedrockProvider) Describe(ctx context.Context, brief Brief) (string, error) {
	text, err := p.invoke(ctx, describePrompt(brief), 256)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (p *BedrockProvider) Plan(ctx context.Context, prompt string, context map[string]interface{}) (storage.StructuredPlan, error) {
	ctxJSON, _ := json.Marshal(context)
	text, err := p.invoke(ctx, planPrompt(prompt, string(ctxJSON)), 1024)
	if err != nil {
		return storage.StructuredPlan{}, err
	}
	var plan storage.StructuredPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return storage.StructuredPlan{}, &sharederrors.ContractViolation{Source: "bedrock", Reason: "plan response was not valid JSON: " + err.Error()}
	}
	return plan, nil
}

func (p *BedrockProvider) invoke(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(bedrockRequest{Prompt: prompt, MaxTokensToSample: maxTokens})
	if err != nil {
		return "", err
	}
	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &p.modelID,
		Body:        body,
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return "", classifyBedrockErr(err)
	}
	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", &sharederrors.ContractViolation{Source: "bedrock", Reason: err.Error()}
	}
	return resp.Completion, nil
}

func strPtr(s string) *string { return &s }

func classifyBedrockErr(err error) error {
	// bedrockruntime surfaces throttling and internal-server errors as
	// distinct typed errors; anything not a validation/access error is
	// treated as transient, matching the taxonomy.
	msg := fmt.Sprintf("%v", err)
	for _, transientMarker := range []string{"ThrottlingException", "ServiceUnavailable", "InternalServerException"} {
		if strings.Contains(msg, transientMarker) {
			return sharederrors.Transient(err)
		}
	}
	return err
}
