package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestHTTPRegistryListDevicesDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]deviceDTO{
			{DeviceID: "light.kitchen", Manufacturer: "Acme", Model: "Bulb9000", Capabilities: nil},
		})
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, logrus.New())
	out, err := reg.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "light.kitchen", out[0].DeviceID)
}

func TestHTTPRegistryListDevicesSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL, logrus.New())
	_, err := reg.ListDevices(context.Background())
	require.Error(t, err)
}
