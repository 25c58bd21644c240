package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/shared/httpclient"
	"github.com/wtthornton/homeiq-insight/pkg/shared/logging"
)

// PrimarySource is the narrow JSON-over-HTTP contract against the external
// normalization service.
type PrimarySource interface {
	FetchEvents(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error)
}

// FallbackSource is a direct time-range query against the underlying
// time-series store's native query language.
// It also serves the specialized reads (attribute series, weather
// context) that the primary path does not expose.
type FallbackSource interface {
	QueryRange(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error)
	AttributeSeries(ctx context.Context, entityID, attribute string, start, end time.Time) ([]Event, error)
	WeatherTaggedEvents(ctx context.Context, start, end time.Time) ([]Event, error)
}

// Config controls the adapter's timeout/retry/circuit-breaker posture
//.
type Config struct {
	TotalTimeout  time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	RateLimitRPS  float64
}

// DefaultConfig matches the default retry policy (3 attempts, 1s/2s/4s).
func DefaultConfig() Config {
	return Config{
		TotalTimeout: 20 * time.Second,
		MaxRetries:   3,
		BackoffBase:  1 * time.Second,
		RateLimitRPS: 20,
	}
}

// Adapter is the Event Source Adapter: primary path with fallback, a
// circuit breaker guarding the primary so a failing normalization service
// does not eat the retry budget on every call, and a limiter bounding
// outbound request rate.
type Adapter struct {
	primary  PrimarySource
	fallback FallbackSource
	cfg      Config
	log      *logrus.Logger
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// New wires an Adapter from its two collaborators.
func New(primary PrimarySource, fallback FallbackSource, cfg Config, log *logrus.Logger) *Adapter {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-source-primary",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Adapter{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		log:      log,
		breaker:  breaker,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), int(cfg.RateLimitRPS)+1),
	}
}

// FetchEvents implements the fetch_events operation: attempt
// primary with a bounded total timeout; on transport error, non-2xx, or a
// structurally-required-but-empty result, fall through to fallback.
func (a *Adapter) FetchEvents(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error) {
	fields := logging.NewFields().Component("events").Operation("fetch_events")

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, sharederrors.FailedTo("rate-limit fetch_events", err)
	}

	primaryEvents, primaryErr := a.tryPrimary(ctx, start, end, filter, limit)
	if primaryErr == nil {
		return normalize(primaryEvents, filter), nil
	}
	a.log.WithFields(fields.Error(primaryErr).Logrus()).Warn("primary event source failed, falling back")

	fallbackEvents, fallbackErr := a.fallback.QueryRange(ctx, start, end, filter, limit)
	if fallbackErr != nil {
		return nil, &sharederrors.SourceUnavailable{Primary: primaryErr, Fallback: fallbackErr}
	}
	return normalize(fallbackEvents, filter), nil
}

func (a *Adapter) tryPrimary(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TotalTimeout)
	defer cancel()

	result, err := a.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
			evs, err := a.primary.FetchEvents(ctx, start, end, filter, limit)
			if err == nil {
				return evs, nil
			}
			lastErr = err
			if !sharederrors.IsTransient(err) {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.cfg.BackoffBase * time.Duration(1<<attempt)):
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, err
	}
	return result.([]Event), nil
}

// AttributeSeries serves the attribute time series the feature analyzer uses to compute
// feature utilization. It reads through the fallback path directly since
// the primary path does not expose attribute series.
func (a *Adapter) AttributeSeries(ctx context.Context, entityID, attribute string, start, end time.Time) ([]Event, error) {
	evs, err := a.fallback.AttributeSeries(ctx, entityID, attribute, start, end)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("fetch attribute series", "events", entityID, err)
	}
	return normalize(evs, Filter{}), nil
}

// WeatherTaggedEvents serves the context signal the synergy engine's weather synergies
// need, also via the fallback path.
func (a *Adapter) WeatherTaggedEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	evs, err := a.fallback.WeatherTaggedEvents(ctx, start, end)
	if err != nil {
		return nil, sharederrors.FailedTo("fetch weather-tagged events", err)
	}
	return normalize(evs, Filter{}), nil
}

// normalize drops invalid records, applies the filter, sorts chronologically, and truncates domain
// to the derived value so both read paths agree on shape.
func normalize(raw []Event, filter Filter) []Event {
	out := make([]Event, 0, len(raw))
	for _, e := range raw {
		if !e.Valid() {
			continue
		}
		e.Timestamp = e.Timestamp.UTC()
		if e.Domain == "" {
			e.Domain = DomainOf(e.EntityID)
		}
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// HTTPPrimarySource is a concrete PrimarySource talking JSON-over-HTTP to
// the external normalization service.
type HTTPPrimarySource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPPrimarySource builds an HTTPPrimarySource with the shared
// httpclient defaults.
func NewHTTPPrimarySource(baseURL string) *HTTPPrimarySource {
	return &HTTPPrimarySource{BaseURL: baseURL, Client: httpclient.NewClient(httpclient.DefaultClientConfig())}
}

type fetchEventsRequest struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	Limit     int       `json:"limit"`
}

func (h *HTTPPrimarySource) FetchEvents(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error) {
	body, err := json.Marshal(fetchEventsRequest{Start: start, End: end, EntityIDs: filter.EntityIDs, Limit: limit})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/events/query", jsonReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, sharederrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, sharederrors.Transient(fmt.Errorf("primary event source returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("primary event source returned %d", resp.StatusCode)
	}

	var out []Event
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &sharederrors.ContractViolation{Source: "event-source-primary", Reason: err.Error()}
	}
	return out, nil
}
