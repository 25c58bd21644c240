package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/shared/httpclient"
)

// HTTPEmbeddingAdapter is a JSON-over-HTTP embedding adapter with a
// fixed, declared dimension.
type HTTPEmbeddingAdapter struct {
	baseURL string
	dim     int
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewHTTPEmbeddingAdapter builds an adapter against baseURL with the
// given declared vector dimension.
func NewHTTPEmbeddingAdapter(baseURL string, dim int) *HTTPEmbeddingAdapter {
	return &HTTPEmbeddingAdapter{
		baseURL: baseURL,
		dim:     dim,
		client:  httpclient.NewClient(httpclient.DefaultClientConfig()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedding-adapter",
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
		limiter: rate.NewLimiter(rate.Limit(20), 21),
	}
}

func (a *HTTPEmbeddingAdapter) Dimension() int { return a.dim }

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

func (a *HTTPEmbeddingAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, sharederrors.FailedTo("rate-limit embed", err)
	}
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

func (a *HTTPEmbeddingAdapter) call(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, sharederrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, sharederrors.Transient(fmt.Errorf("embedding adapter returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding adapter returned %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &sharederrors.ContractViolation{Source: "embedding-adapter", Reason: err.Error()}
	}
	if len(out.Vector) != a.dim {
		return nil, &sharederrors.ContractViolation{Source: "embedding-adapter", Reason: fmt.Sprintf("expected dimension %d, got %d", a.dim, len(out.Vector))}
	}
	return out.Vector, nil
}
