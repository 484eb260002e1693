package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/auth"
	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/geoindex"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/notify"
	"github.com/hyperjump/shopassist/internal/places"
	"github.com/hyperjump/shopassist/internal/recommend"
	"github.com/hyperjump/shopassist/internal/storage"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []recommend.Job
	err  error
}

func (q *fakeQueue) Enqueue(job recommend.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeNotifier struct {
	payloads []notify.Payload
}

func (n *fakeNotifier) Send(ctx context.Context, payload notify.Payload) error {
	n.payloads = append(n.payloads, payload)
	return nil
}

type testServer struct {
	handler    http.Handler
	store      *storage.SQLiteStorage
	queue      *fakeQueue
	notifier   *fakeNotifier
	userToken  string
	adminToken string
}

func newTestServer(t *testing.T, requestsPerSecond float64) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Index.Backend = "memory"
	cfg.Server.RateLimit = config.RateLimitConfig{RequestsPerSecond: requestsPerSecond, Burst: 1}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cfg.Auth.SigningKey = "test-key"
	cfg.Auth.Admins = []string{"boss@example.com"}
	cfg.Auth.Users = map[string]string{"ann@example.com": hash, "boss@example.com": hash}
	authenticator, err := auth.New(cfg.Auth, nil)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	userToken, _ := authenticator.IssueToken("ann@example.com")
	adminToken, _ := authenticator.IssueToken("boss@example.com")

	index := geoindex.NewMemoryIndex(true)
	engineCfg, err := places.EngineConfigFrom(cfg)
	if err != nil {
		t.Fatalf("EngineConfigFrom: %v", err)
	}
	engine := places.NewEngine(index, engineCfg)

	ts := &testServer{
		store:      store,
		queue:      &fakeQueue{},
		notifier:   &fakeNotifier{},
		userToken:  userToken,
		adminToken: adminToken,
	}
	srv := NewServer(Deps{
		Engine:     engine,
		Maintainer: places.NewMaintainer(engine, store),
		Index:      index,
		Store:      store,
		Auth:       authenticator,
		Jobs:       ts.queue,
		Notifier:   ts.notifier,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t, 0)
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"anonymous place list", http.MethodGet, "/api/v1/places", "", http.StatusUnauthorized},
		{"user place list", http.MethodGet, "/api/v1/places", ts.userToken, http.StatusForbidden},
		{"admin place list", http.MethodGet, "/api/v1/places", ts.adminToken, http.StatusOK},
		{"anonymous offers", http.MethodGet, "/api/v1/offers", "", http.StatusOK},
		{"anonymous recommendations", http.MethodGet, "/api/v1/recommendations", "", http.StatusOK},
		{"user registrations", http.MethodGet, "/api/v1/registrations", ts.userToken, http.StatusForbidden},
		{"anonymous check-in", http.MethodPost, "/api/v1/checkins", "", http.StatusUnauthorized},
		{"user messaging", http.MethodPost, "/api/v1/messaging", ts.userToken, http.StatusForbidden},
		{"anonymous rebuild", http.MethodPost, "/api/v1/maintenance/rebuild-index", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/offers", "garbage", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.token, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleToken(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodPost, "/api/v1/token", "", map[string]string{"email": "ann@example.com", "password": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["token"] == "" {
		t.Fatal("expected a token")
	}
	if got := ts.do(t, http.MethodGet, "/api/v1/places", resp["token"], nil).Code; got != http.StatusForbidden {
		t.Errorf("issued token: status = %d, want 403", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/token", "", map[string]string{"email": "ann@example.com", "password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/token", "", map[string]string{"email": "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body: status = %d, want 400", rec.Code)
	}
}

func TestHandleNearby(t *testing.T) {
	ts := newTestServer(t, 0)
	ctx := context.Background()
	for _, p := range []*models.Place{
		{Name: "Far", Address: "2 Main St", Location: geo.Point{Latitude: 37.3382, Longitude: -121.8863}},
		{Name: "Near", Address: "1 Main St", Location: geo.Point{Latitude: 37.3861, Longitude: -122.0839}},
	} {
		if err := ts.store.CreatePlace(ctx, p); err != nil {
			t.Fatalf("CreatePlace: %v", err)
		}
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/maintenance/rebuild-index", ts.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d: %s", rec.Code, rec.Body.String())
	}
	var status map[string]string
	decodeBody(t, rec, &status)
	if status["status"] != maintenanceCompleted {
		t.Errorf("rebuild status = %q", status["status"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/places/nearby?latitude=37.39&longitude=-122.08&distanceInKm=50&count=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nearby status = %d: %s", rec.Code, rec.Body.String())
	}
	var results []models.PlaceResult
	decodeBody(t, rec, &results)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Name != "Near" || results[1].Name != "Far" {
		t.Errorf("order = %s, %s; want Near, Far", results[0].Name, results[1].Name)
	}
	if results[0].DistanceKm > results[1].DistanceKm {
		t.Errorf("distances not ascending: %v > %v", results[0].DistanceKm, results[1].DistanceKm)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/places/nearby?latitude=37.39&longitude=-122.08&distanceInKm=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("small radius status = %d", rec.Code)
	}
	results = nil
	decodeBody(t, rec, &results)
	if len(results) != 1 {
		t.Errorf("small radius: got %d results, want 1", len(results))
	}

	for _, q := range []string{
		"latitude=abc&longitude=-122.08",
		"latitude=91&longitude=0",
		"latitude=37&longitude=-122&count=0",
		"latitude=37&longitude=-122&distanceInKm=-1",
	} {
		if got := ts.do(t, http.MethodGet, "/api/v1/places/nearby?"+q, "", nil).Code; got != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, got)
		}
	}
}

func TestHandleNearby_EmptyIndex(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.do(t, http.MethodGet, "/api/v1/places/nearby?latitude=0&longitude=0", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var results []models.PlaceResult
	decodeBody(t, rec, &results)
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}
}

func TestPlaceCRUD(t *testing.T) {
	ts := newTestServer(t, 0)
	place := models.Place{Name: "Shop", Address: "1 Main St", Location: geo.Point{Latitude: 10, Longitude: 20}}

	rec := ts.do(t, http.MethodPost, "/api/v1/places", ts.adminToken, place)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Place
	decodeBody(t, rec, &created)
	if created.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	path := "/api/v1/places/" + strconv.FormatInt(created.ID, 10)

	if got := ts.do(t, http.MethodGet, path, ts.adminToken, nil).Code; got != http.StatusOK {
		t.Errorf("get status = %d", got)
	}
	place.Name = "Renamed"
	if got := ts.do(t, http.MethodPut, path, ts.adminToken, place).Code; got != http.StatusOK {
		t.Errorf("update status = %d", got)
	}
	if got := ts.do(t, http.MethodDelete, path, ts.adminToken, nil).Code; got != http.StatusOK {
		t.Errorf("delete status = %d", got)
	}
	if got := ts.do(t, http.MethodDelete, path, ts.adminToken, nil).Code; got != http.StatusOK {
		t.Errorf("second delete status = %d, want 200", got)
	}
	if got := ts.do(t, http.MethodGet, path, ts.adminToken, nil).Code; got != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", got)
	}
	if got := ts.do(t, http.MethodGet, "/api/v1/places/abc", ts.adminToken, nil).Code; got != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", got)
	}

	bad := models.Place{Name: "Nowhere", Location: geo.Point{Latitude: 95}}
	if got := ts.do(t, http.MethodPost, "/api/v1/places", ts.adminToken, bad).Code; got != http.StatusBadRequest {
		t.Errorf("bad location status = %d, want 400", got)
	}
	if got := ts.do(t, http.MethodPost, "/api/v1/places", ts.adminToken, models.Place{}).Code; got != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", got)
	}
}

func TestOffers(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.do(t, http.MethodPost, "/api/v1/offers", ts.adminToken, models.Offer{Title: "Sale", Description: "Half off"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/offers", "", nil)
	var list []models.Offer
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].Title != "Sale" {
		t.Errorf("offers = %+v", list)
	}
	if got := ts.do(t, http.MethodPut, "/api/v1/offers/999", ts.adminToken, models.Offer{Title: "x"}).Code; got != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", got)
	}
}

func TestRecommendations(t *testing.T) {
	ts := newTestServer(t, 0)
	active := models.Recommendation{Title: "Phone", Expiration: time.Now().Add(time.Hour)}
	expired := models.Recommendation{Title: "Old", Expiration: time.Now().Add(-time.Hour)}
	for _, r := range []models.Recommendation{active, expired} {
		if got := ts.do(t, http.MethodPost, "/api/v1/recommendations", ts.adminToken, r).Code; got != http.StatusCreated {
			t.Fatalf("insert status = %d", got)
		}
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/recommendations?placeId=ignored", "", nil)
	var list []models.Recommendation
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].Title != "Phone" || list[0].ID == "" {
		t.Fatalf("active recommendations = %+v", list)
	}

	missing := models.Recommendation{ID: "missing", Title: "x", Expiration: time.Now().Add(time.Hour)}
	if got := ts.do(t, http.MethodPut, "/api/v1/recommendations", ts.adminToken, missing).Code; got != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", got)
	}
	if got := ts.do(t, http.MethodDelete, "/api/v1/recommendations/"+list[0].ID, ts.adminToken, nil).Code; got != http.StatusOK {
		t.Errorf("delete status = %d", got)
	}
}

func TestRegistrations(t *testing.T) {
	ts := newTestServer(t, 0)
	if got := ts.do(t, http.MethodPost, "/api/v1/registrations/device-1", ts.userToken, nil).Code; got != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", got)
	}
	if got := ts.do(t, http.MethodPost, "/api/v1/registrations/device-1", ts.userToken, nil).Code; got != http.StatusOK {
		t.Errorf("re-register status = %d, want 200", got)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/registrations?count=5", ts.adminToken, nil)
	var list []models.Registration
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].RegID != "device-1" {
		t.Errorf("registrations = %+v", list)
	}
	if got := ts.do(t, http.MethodGet, "/api/v1/registrations?count=zero", ts.adminToken, nil).Code; got != http.StatusBadRequest {
		t.Errorf("bad count status = %d, want 400", got)
	}
	if got := ts.do(t, http.MethodDelete, "/api/v1/registrations/unknown", ts.adminToken, nil).Code; got != http.StatusOK {
		t.Errorf("unregister unknown status = %d, want 200", got)
	}
}

func TestCheckIn(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.do(t, http.MethodPost, "/api/v1/checkins", ts.userToken, map[string]string{"placeId": "42"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("check-in status = %d: %s", rec.Code, rec.Body.String())
	}
	var c models.CheckIn
	decodeBody(t, rec, &c)
	if c.UserEmail != "ann@example.com" || c.PlaceID != "42" || c.CheckInDate.IsZero() {
		t.Errorf("check-in = %+v", c)
	}
	if len(ts.queue.jobs) != 1 || ts.queue.jobs[0] != (recommend.Job{PlaceID: "42", UserEmail: "ann@example.com"}) {
		t.Errorf("jobs = %+v", ts.queue.jobs)
	}

	ts.queue.err = errors.New("queue full")
	if got := ts.do(t, http.MethodPost, "/api/v1/checkins", ts.userToken, map[string]string{"placeId": "42"}).Code; got != http.StatusCreated {
		t.Errorf("check-in with full queue status = %d, want 201", got)
	}
	if got := ts.do(t, http.MethodPost, "/api/v1/checkins", ts.userToken, map[string]string{}).Code; got != http.StatusBadRequest {
		t.Errorf("missing place status = %d, want 400", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/checkins", ts.adminToken, nil)
	var list []models.CheckIn
	decodeBody(t, rec, &list)
	if len(list) != 2 {
		t.Errorf("got %d check-ins, want 2", len(list))
	}
}

func TestHandleSendMessage(t *testing.T) {
	ts := newTestServer(t, 0)
	payload := map[string]string{"NotificationKind": "Hello"}
	if got := ts.do(t, http.MethodPost, "/api/v1/messaging", ts.adminToken, payload).Code; got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if len(ts.notifier.payloads) != 1 || ts.notifier.payloads[0]["NotificationKind"] != "Hello" {
		t.Errorf("payloads = %+v", ts.notifier.payloads)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.do(t, http.MethodGet, "/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	if resp["index"] != "memory" {
		t.Errorf("index = %v", resp["index"])
	}
	if resp["degraded_geo"] != false {
		t.Errorf("degraded_geo = %v", resp["degraded_geo"])
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, 0.001)
	path := "/api/v1/places/nearby?latitude=0&longitude=0"
	if got := ts.do(t, http.MethodGet, path, "", nil).Code; got != http.StatusOK {
		t.Fatalf("first request status = %d", got)
	}
	rec := ts.do(t, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := ts.do(t, http.MethodGet, path, ts.userToken, nil).Code; got != http.StatusOK {
		t.Errorf("authenticated caller has its own bucket: status = %d", got)
	}
}
