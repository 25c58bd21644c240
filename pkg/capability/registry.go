package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/shared/httpclient"
	"github.com/wtthornton/homeiq-insight/pkg/shared/logging"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Registry is the capability registry inbound boundary: list_devices()
// returning every known device's manufacturer/model/capability set. The
// contract guarantees idempotence; callers (the orchestrator phase 1) rely on that to
// upsert wholesale without reconciling partial updates.
type Registry interface {
	ListDevices(ctx context.Context) ([]storage.DeviceCapability, error)
}

// HTTPRegistry is a JSON-over-HTTP implementation guarded the same way the
// event source adapter guards its primary path:
// a circuit breaker around the upstream call and a rate limiter bounding
// request volume.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewHTTPRegistry wires an HTTPRegistry against the given base URL.
func NewHTTPRegistry(baseURL string, log *logrus.Logger) *HTTPRegistry {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "capability_registry",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  httpclient.NewClient(httpclient.DefaultClientConfig()),
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		log:     log,
	}
}

type deviceDTO struct {
	DeviceID     string               `json:"device_id"`
	Manufacturer string               `json:"manufacturer"`
	Model        string               `json:"model"`
	Capabilities []storage.Capability `json:"capabilities"`
}

// ListDevices implements Registry against a GET /devices endpoint.
func (r *HTTPRegistry) ListDevices(ctx context.Context) ([]storage.DeviceCapability, error) {
	fields := logging.NewFields().Component("capability").Operation("list_devices")

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, sharederrors.FailedToWithDetails("list devices", "capability", r.baseURL, err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/devices", nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, sharederrors.Transient(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, sharederrors.Transient(fmt.Errorf("capability registry returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("capability registry returned %d", resp.StatusCode)
		}
		var dtos []deviceDTO
		if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
			return nil, err
		}
		return dtos, nil
	})
	if err != nil {
		r.log.WithFields(fields.Error(err).Logrus()).Warn("capability registry call failed")
		return nil, sharederrors.FailedToWithDetails("list devices", "capability", r.baseURL, err)
	}

	dtos := result.([]deviceDTO)
	now := time.Now()
	out := make([]storage.DeviceCapability, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, storage.DeviceCapability{
			DeviceID: d.DeviceID, Manufacturer: d.Manufacturer, Model: d.Model,
			Capabilities: d.Capabilities, UpdatedAt: now,
		})
	}
	return out, nil
}
