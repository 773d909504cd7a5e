package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewHTTPMetrics(mp, zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/api/v1/tasks/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "nope")
		}
		return c.String(http.StatusOK, "hello")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/v1/tasks/a1", "/api/v1/tasks/b2", "/api/v1/tasks/missing", "/health"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	byRoute := map[string]int64{}
	notFound := int64(0)
	foundDuration := false
	foundResponseSize := false

	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "agentq.http.requests_total":
				sum, ok := md.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("requests_total is %T", md.Data)
				}
				for _, dp := range sum.DataPoints {
					route, _ := dp.Attributes.Value(attribute.Key("endpoint"))
					byRoute[route.AsString()] += dp.Value
					if st, _ := dp.Attributes.Value(attribute.Key("status")); st.AsInt64() == http.StatusNotFound {
						notFound += dp.Value
					}
				}
			case "agentq.http.request_duration_seconds":
				foundDuration = true
				if hist, ok := md.Data.(metricdata.Histogram[float64]); ok {
					var total uint64
					for _, dp := range hist.DataPoints {
						total += dp.Count
					}
					if total != 4 {
						t.Errorf("expected 4 duration recordings, got %d", total)
					}
				}
			case "agentq.http.response_size_bytes":
				foundResponseSize = true
			}
		}
	}

	if byRoute["/api/v1/tasks/:id"] != 3 {
		t.Errorf("expected 3 requests on the task route, got %d (%v)", byRoute["/api/v1/tasks/:id"], byRoute)
	}
	if byRoute["/health"] != 1 {
		t.Errorf("expected 1 health request, got %d", byRoute["/health"])
	}
	if notFound != 1 {
		t.Errorf("expected the handler error to be recorded as 404, got %d", notFound)
	}
	if !foundDuration {
		t.Error("duration histogram not found")
	}
	if !foundResponseSize {
		t.Error("response size histogram not found")
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/tasks/:id", "/api/v1/tasks/:id"},
	}

	for _, tt := range tests {
		if got := routeLabel(tt.input); got != tt.expected {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
