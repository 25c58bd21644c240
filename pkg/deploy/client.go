// Package deploy is a thin client stub for the out-of-scope deployment
// adapter: deploy(structured_plan) -> artefact_id. Platform
// rendering and the 6-rule safety validation engine both live on the
// other side of this boundary and are never
// implemented here.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/shared/httpclient"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Adapter is the narrow outbound deployment contract.
type Adapter interface {
	Deploy(ctx context.Context, plan storage.StructuredPlan) (string, error)
}

// HTTPAdapter is a JSON-over-HTTP client for the deployment adapter.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPAdapter builds an adapter against baseURL.
func NewHTTPAdapter(baseURL string) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  httpclient.NewClient(httpclient.DefaultClientConfig()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "deployment-adapter",
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
	}
}

type deployResponse struct {
	ArtefactID string `json:"artefact_id"`
}

func (a *HTTPAdapter) Deploy(ctx context.Context, plan storage.StructuredPlan) (string, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, plan)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (a *HTTPAdapter) call(ctx context.Context, plan storage.StructuredPlan) (string, error) {
	body, err := json.Marshal(plan)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/deploy", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", sharederrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", sharederrors.Transient(fmt.Errorf("deployment adapter returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("deployment adapter returned %d", resp.StatusCode)
	}

	var out deployResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &sharederrors.ContractViolation{Source: "deployment-adapter", Reason: err.Error()}
	}
	if out.ArtefactID == "" {
		return "", &sharederrors.ContractViolation{Source: "deployment-adapter", Reason: "empty artefact_id"}
	}
	return out.ArtefactID, nil
}
