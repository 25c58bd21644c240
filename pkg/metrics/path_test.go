package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/health", "/health"},
		{"/ready", "/ready"},
		{"/metrics", "/metrics"},
		{"/api/v1/context/query", "/api/v1/context/query"},
		{"/", "/"},
		{"/api/v1/incidents/550e8400-e29b-41d4-a716-446655440000", "/api/v1/incidents/:id"},
		{"/api/v1/incidents/abc-123-def", "/api/v1/incidents/:id"},
		{"/api/v1/incidents/abc123def456", "/api/v1/incidents/:id"},
		{"/api/v1/incidents/12345", "/api/v1/incidents/:id"},
		{"/api/v1/incidents/550e8400-e29b-41d4-a716-446655440000/actions", "/api/v1/incidents/:id/actions"},
		{"/api/v1/incidents/abc-123/actions/def-456", "/api/v1/incidents/:id/actions/:id"},
		{"/api/v1/incidents/abc-123/", "/api/v1/incidents/:id/"},
	}
	for _, c := range cases {
		if got := NormalizePath(c.in); got != c.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	in := "/api/v1/incidents/550e8400-e29b-41d4-a716-446655440000"
	first := NormalizePath(in)
	second := NormalizePath(first)
	if first != second {
		t.Fatalf("normalization not idempotent: %q != %q", first, second)
	}
	if second != "/api/v1/incidents/:id" {
		t.Fatalf("got %q", second)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest("GET", "/health", "200", 0)
	m.ObservePhase("fetch", "ok", 0)
	m.AddPatterns("time_of_day", 1)
	m.AddSynergies("device_pair", 1)
	m.AddSuggestionsDrafted(1)
	m.ObserveRunStatus("succeeded")
	m.ObserveAdapterCall("llm", "ok")
}
