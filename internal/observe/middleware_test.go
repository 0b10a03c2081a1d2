package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup installs an in-memory tracer and returns metrics backed by a
// manual reader. Tests using it swap the global tracer provider and must
// not run in parallel.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	return m, reader, exp
}

// routedHandler is a mux with a few motto-like routes wrapped in the
// middleware.
func routedHandler(m *Metrics, seen *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/commands/{key}", func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = CorrelationID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/reload", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return Middleware(m)(mux)
}

func TestMiddleware_CorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "new trace"},
		{
			name:        "continues W3C trace",
			traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			want:        "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			req := httptest.NewRequest("GET", "/v1/commands/play", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			routedHandler(m, &seen).ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("correlation ID %q, want 32 hex chars", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation ID = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get(CorrelationHeader); got != seen {
				t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
			}
		})
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	m, _, exp := testSetup(t)

	h := routedHandler(m, nil)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/commands/play", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/reload", nil))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	got := []string{spans[0].Name, spans[1].Name}
	want := []string{"HTTP GET /v1/commands/{key}", "HTTP POST /v1/reload"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("span names (-want +got):\n%s", diff)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("200 response marked as error")
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("500 response status = %v, want error", spans[1].Status.Code)
	}

	var status int64
	for _, a := range spans[1].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusInternalServerError {
		t.Errorf("http.response.status_code = %d, want 500", status)
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)

	h := routedHandler(m, nil)
	for _, path := range []string{"/v1/commands/play", "/v1/commands/pause", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "motto.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data = %T, want histogram", met.Data)
	}

	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[route.AsString()+" "+status.Emit()] += dp.Count
	}
	want := map[string]uint64{
		"/v1/commands/{key} 200": 2,
		"unmatched 404":          1,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("samples per route (-want +got):\n%s", diff)
	}
}

func TestRouteOf(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"", unmatchedRoute},
		{"GET /v1/listen", "/v1/listen"},
		{"/metrics", "/metrics"},
		{"GET example.com/x", "example.com/x"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Pattern = tt.pattern
		if got := routeOf(r); got != tt.want {
			t.Errorf("routeOf(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestMiddleware_AllowsHijack(t *testing.T) {
	m, _, _ := testSetup(t)

	hijacked := make(chan bool, 1)
	srv := httptest.NewServer(Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if err != nil {
			hijacked <- false
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 204 No Content\r\nConnection: close\r\n\r\n")
		_ = buf.Flush()
		hijacked <- true
	})))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/listen")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()

	if !<-hijacked {
		t.Fatal("handler could not hijack the connection through the middleware")
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}
