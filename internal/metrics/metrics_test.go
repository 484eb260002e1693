package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/health", "/health"},
		{"/api/v1/places", "/api/v1/places"},
		{"/api/v1/places/42", "/api/v1/places/{id}"},
		{"/api/v1/places/nearby", "/api/v1/places/nearby"},
		{"/api/v1/maintenance/rebuild-index", "/api/v1/maintenance/rebuild-index"},
		{"/api/v1/registrations/abc-def", "/api/v1/registrations/{id}"},
	}
	for _, tt := range tests {
		if got := canonicalPath(tt.in); got != tt.want {
			t.Errorf("canonicalPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInstrumentHandler(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/teapot", "418"))
	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/teapot", "418"))
	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}

func TestRecorders(t *testing.T) {
	ObserveRebuild(true, 7, 10*time.Millisecond)
	if got := testutil.ToFloat64(indexedDocuments); got != 7 {
		t.Errorf("indexed documents = %v, want 7", got)
	}
	ObserveRebuild(false, 99, time.Millisecond)
	if got := testutil.ToFloat64(indexedDocuments); got != 7 {
		t.Errorf("failed rebuild changed gauge to %v", got)
	}

	before := testutil.ToFloat64(searchFallbacks)
	IncSearchFallback()
	if got := testutil.ToFloat64(searchFallbacks); got != before+1 {
		t.Errorf("fallback counter = %v, want %v", got, before+1)
	}

	ObserveSearch("ok", time.Millisecond)
	IncNotification("sent")
	IncRecommendationJob("generated")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "shopassist_places_searches_total") {
		t.Error("metrics output missing search counter")
	}
}
