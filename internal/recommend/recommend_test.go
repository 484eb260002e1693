package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/notify"
	"github.com/hyperjump/shopassist/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	checkIns  int64
	since     time.Time
	templates map[string]*models.Recommendation
	saved     []*models.Recommendation
}

func (f *fakeStore) CountCheckInsSince(ctx context.Context, userEmail, placeID string, since time.Time) (int64, error) {
	f.since = since
	return f.checkIns, nil
}

func (f *fakeStore) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	if r, ok := f.templates[id]; ok {
		return r, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) SaveRecommendation(ctx context.Context, r *models.Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, r)
	return nil
}

type fakeNotifier struct {
	payloads []notify.Payload
}

func (f *fakeNotifier) Send(ctx context.Context, payload notify.Payload) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func template(title string) map[string]*models.Recommendation {
	return map[string]*models.Recommendation{
		"template1": {
			ID:          "template1",
			Title:       title,
			Description: "Was $%d, now $%d",
			ImageURL:    "http://img/%d.png",
		},
	}
}

func newGenerator(store *fakeStore, n *fakeNotifier, opts ...GeneratorOption) *Generator {
	cfg := config.RecommendationsConfig{Expiration: 2 * time.Minute, TemplateID: "template1"}
	opts = append([]GeneratorOption{WithClock(func() time.Time { return now })}, opts...)
	return NewGenerator(store, n, cfg, opts...)
}

func TestGenerate(t *testing.T) {
	store := &fakeStore{checkIns: 1, templates: template("Lower prices;Coffee beans")}
	n := &fakeNotifier{}
	g := newGenerator(store, n)

	ok, err := g.Generate(context.Background(), Job{PlaceID: "7", UserEmail: "ann@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-2*time.Minute), store.since)

	require.Len(t, store.saved, 2)
	assert.NotEqual(t, store.saved[0].ID, store.saved[1].ID)
	for _, r := range store.saved {
		assert.Equal(t, "Lower prices", r.Title)
		assert.Equal(t, now.Add(2*time.Minute), r.Expiration)
		assert.Regexp(t, `^Was \$1\d\d, now \$[89]\d$`, r.Description)
		assert.Regexp(t, `^http://img/[3-8]\.png$`, r.ImageURL)
	}

	require.Len(t, n.payloads, 1)
	assert.Equal(t, notify.Payload{
		"NotificationKind": "PriceCheckLowerPrices1",
		"ProductCount":     "2",
		"ProductName":      "Coffee beans",
	}, n.payloads[0])
}

func TestGenerate_RandomBounds(t *testing.T) {
	store := &fakeStore{checkIns: 1, templates: template("A;B")}
	high := func(n int) int { return n - 1 }
	g := newGenerator(store, &fakeNotifier{}, WithRandom(high))

	_, err := g.Generate(context.Background(), Job{PlaceID: "1", UserEmail: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, "Was $199, now $99", store.saved[0].Description)
	assert.Equal(t, "http://img/8.png", store.saved[0].ImageURL)
}

func TestGenerate_Skips(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"repeat check-in", &fakeStore{checkIns: 2, templates: template("A;B")}},
		{"missing template", &fakeStore{checkIns: 1}},
		{"one-part title", &fakeStore{checkIns: 1, templates: template("Lower prices")}},
		{"three-part title", &fakeStore{checkIns: 1, templates: template("A;B;C")}},
		{"bad description", &fakeStore{checkIns: 1, templates: map[string]*models.Recommendation{
			"template1": {Title: "A;B", Description: "%s %s %s"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			ok, err := newGenerator(tt.store, n).Generate(context.Background(), Job{PlaceID: "1", UserEmail: "a@b.c"})
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, tt.store.saved)
			assert.Empty(t, n.payloads)
		})
	}
}

func TestGenerate_DelayHonoursContext(t *testing.T) {
	store := &fakeStore{checkIns: 1, templates: template("A;B")}
	cfg := config.RecommendationsConfig{Expiration: time.Minute, GenerationDelay: time.Hour}
	g := NewGenerator(store, &fakeNotifier{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, Job{PlaceID: "1", UserEmail: "a@b.c"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, store.saved)
}

func TestHandleRecordsOutcome(t *testing.T) {
	var results []string
	rec := WithResultRecorder(func(r string) { results = append(results, r) })

	g := newGenerator(&fakeStore{checkIns: 1, templates: template("A;B")}, &fakeNotifier{}, rec)
	require.NoError(t, g.Handle(context.Background(), Job{PlaceID: "1"}))
	g = newGenerator(&fakeStore{checkIns: 5}, &fakeNotifier{}, rec)
	require.NoError(t, g.Handle(context.Background(), Job{PlaceID: "1"}))

	assert.Equal(t, []string{"generated", "skipped"}, results)
}

func TestQueue_RunsJobs(t *testing.T) {
	var handled atomic.Int32
	q := NewQueue(10, 2, func(ctx context.Context, job Job) error {
		handled.Add(1)
		if job.PlaceID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, nil)
	q.Start(context.Background())

	for _, id := range []string{"1", "2", "bad", "4"} {
		require.NoError(t, q.Enqueue(Job{PlaceID: id}))
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(4), handled.Load())
	assert.ErrorIs(t, q.Enqueue(Job{PlaceID: "late"}), ErrQueueClosed)
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(1, 1, func(ctx context.Context, job Job) error { return nil }, nil)
	// Workers not started, so the single slot stays occupied.
	require.NoError(t, q.Enqueue(Job{PlaceID: "1"}))
	assert.ErrorIs(t, q.Enqueue(Job{PlaceID: "2"}), ErrQueueFull)
}

func TestQueue_CloseTimeoutCancelsJobs(t *testing.T) {
	started := make(chan struct{})
	q := NewQueue(1, 1, func(ctx context.Context, job Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{PlaceID: "1"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}

func TestFormatTemplate(t *testing.T) {
	s, ok := formatTemplate("http://img/static.png", 4)
	assert.True(t, ok)
	assert.Equal(t, "http://img/static.png", s)

	s, ok = formatTemplate("%d-%d", 1, 2)
	assert.True(t, ok)
	assert.Equal(t, "1-2", s)

	_, ok = formatTemplate("%d %d %d", 1, 2)
	assert.False(t, ok)
	_, ok = formatTemplate("%s", 1)
	assert.False(t, ok)
}
