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

// HTTPNERAdapter is a JSON-over-HTTP NER adapter, wrapped in the same
// breaker+rate-limit discipline as the event source adapter.
type HTTPNERAdapter struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewHTTPNERAdapter builds an adapter against baseURL.
func NewHTTPNERAdapter(baseURL string) *HTTPNERAdapter {
	return &HTTPNERAdapter{
		baseURL: baseURL,
		client:  httpclient.NewClient(httpclient.DefaultClientConfig()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ner-adapter",
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
		limiter: rate.NewLimiter(rate.Limit(10), 11),
	}
}

type nerRequest struct {
	Text string `json:"text"`
}

type nerResponseSpan struct {
	Span string `json:"span"`
	Type string `json:"type"`
}

func (a *HTTPNERAdapter) ExtractEntities(ctx context.Context, text string) ([]Span, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, sharederrors.FailedTo("rate-limit extract_entities", err)
	}
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Span), nil
}

func (a *HTTPNERAdapter) call(ctx context.Context, text string) ([]Span, error) {
	body, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/ner/extract", bytes.NewReader(body))
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
		return nil, sharederrors.Transient(fmt.Errorf("ner adapter returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ner adapter returned %d", resp.StatusCode)
	}

	var raw []nerResponseSpan
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &sharederrors.ContractViolation{Source: "ner-adapter", Reason: err.Error()}
	}

	out := make([]Span, 0, len(raw))
	for _, r := range raw {
		t := SpanType(r.Type)
		switch t {
		case SpanDevice, SpanArea, SpanTime, SpanValue, SpanAction:
			out = append(out, Span{Text: r.Span, Type: t})
		default:
			//  contract violation: drop the record, don't retry.
			continue
		}
	}
	return out, nil
}
