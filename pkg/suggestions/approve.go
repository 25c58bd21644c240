package suggestions

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/ptr"

	"github.com/wtthornton/homeiq-insight/pkg/deploy"
	"github.com/wtthornton/homeiq-insight/pkg/llm"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Approve implements `suggestions.approve(id)`: it turns the
// suggestion's description into a structured plan via the LLM adapter's
// plan role, hands that plan to the
// deployment adapter, and records the returned artefact_id against the
// suggestion. The suggestion moves straight from draft/refining to
// deployed: once the adapter returns an artefact_id there is nothing
// left for a separate persisted "approved-but-not-yet-deployed" state
// to represent, so none is recorded.
func Approve(ctx context.Context, store *storage.Store, provider llm.Provider, deployer deploy.Adapter, id string, now time.Time) (string, error) {
	sug, err := store.GetSuggestion(id)
	if err != nil {
		return "", err
	}

	prompt := planPrompt(sug)
	planCtx := map[string]interface{}{
		"devices_involved": sug.DevicesInvolved,
		"confidence":       sug.Confidence,
		"source":           sug.Source,
	}
	plan, err := provider.Plan(ctx, prompt, planCtx)
	if err != nil {
		return "", err
	}

	artefactID, err := deployer.Deploy(ctx, plan)
	if err != nil {
		return "", err
	}

	if err := store.UpdateSuggestionStatus(id, storage.SuggestionDeployed, ptr.To(artefactID), ptr.To(now)); err != nil {
		return "", err
	}
	return artefactID, nil
}

// Reject implements `suggestions.reject(id, reason?)`. A rejected
// suggestion carries no artefact, so it never needs a deploy round-trip.
func Reject(store *storage.Store, id string) error {
	return store.UpdateSuggestionStatus(id, storage.SuggestionRejected, nil, nil)
}

func planPrompt(sug storage.Suggestion) string {
	return fmt.Sprintf("Generate an automation plan for: %s (devices: %v)", sug.Description, sug.DevicesInvolved)
}
