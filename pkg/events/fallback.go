package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/shared/httpclient"
)

// HTTPFallbackSource is a concrete FallbackSource implementation talking
// to the underlying time-series store's own HTTP query surface. The store's actual
// query language is deployment-specific (InfluxQL, PromQL, a native REST
// range query, ...); this client models the common shape every such
// store exposes (a GET against a range endpoint with start/end/limit
// query parameters), the same way HTTPPrimarySource models the
// normalization service's contract. A deployment whose store needs a
// richer query body can satisfy FallbackSource directly without going
// through this type.
type HTTPFallbackSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFallbackSource builds an HTTPFallbackSource against baseURL.
func NewHTTPFallbackSource(baseURL string) *HTTPFallbackSource {
	return &HTTPFallbackSource{BaseURL: baseURL, Client: httpclient.NewClient(httpclient.DefaultClientConfig())}
}

// QueryRange implements FallbackSource's primary read path.
func (h *HTTPFallbackSource) QueryRange(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	for _, id := range filter.EntityIDs {
		q.Add("entity_id", id)
	}
	return h.get(ctx, "/query_range", q)
}

// AttributeSeries implements the specialized attribute read the feature analyzer uses.
func (h *HTTPFallbackSource) AttributeSeries(ctx context.Context, entityID, attribute string, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("entity_id", entityID)
	q.Set("attribute", attribute)
	return h.get(ctx, "/attribute_series", q)
}

// WeatherTaggedEvents implements the specialized context-signal read the synergy engine
// uses for weather synergies.
func (h *HTTPFallbackSource) WeatherTaggedEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	return h.get(ctx, "/weather_tagged", q)
}

func (h *HTTPFallbackSource) get(ctx context.Context, path string, q url.Values) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, sharederrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, sharederrors.Transient(fmt.Errorf("time-series store returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("time-series store returned %d", resp.StatusCode)
	}

	var out []Event
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &sharederrors.ContractViolation{Source: "event-source-fallback", Reason: err.Error()}
	}
	return out, nil
}
