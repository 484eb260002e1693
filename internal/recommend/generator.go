package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/notify"
	"github.com/hyperjump/shopassist/internal/storage"
	"github.com/hyperjump/shopassist/pkg/utils"
)

// NotificationKind tells clients how to render the lower-prices notification.
const NotificationKind = "PriceCheckLowerPrices1"

// Store is the subset of storage the generator uses.
type Store interface {
	CountCheckInsSince(ctx context.Context, userEmail, placeID string, since time.Time) (int64, error)
	GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error)
	SaveRecommendation(ctx context.Context, r *models.Recommendation) error
}

// Notifier delivers a payload to registered devices.
type Notifier interface {
	Send(ctx context.Context, payload notify.Payload) error
}

// Generator turns a check-in into two recommendations derived from a template.
type Generator struct {
	store      Store
	notifier   Notifier
	templateID string
	expiration time.Duration
	delay      time.Duration
	logger     *zap.Logger
	now        func() time.Time
	intn       func(n int) int
	record     func(result string)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the random source used for prices and images.
func WithRandom(intn func(n int) int) GeneratorOption {
	return func(g *Generator) { g.intn = intn }
}

// WithResultRecorder sets a callback invoked with "generated", "skipped" or "failed" per job.
func WithResultRecorder(r func(result string)) GeneratorOption {
	return func(g *Generator) { g.record = r }
}

// NewGenerator creates a Generator from the recommendations config.
func NewGenerator(store Store, notifier Notifier, cfg config.RecommendationsConfig, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store:      store,
		notifier:   notifier,
		templateID: cfg.TemplateID,
		expiration: cfg.Expiration,
		delay:      cfg.GenerationDelay,
		logger:     zap.NewNop(),
		now:        time.Now,
		intn:       rand.Intn,
		record:     func(string) {},
	}
	if g.templateID == "" {
		g.templateID = "template1"
	}
	if g.expiration <= 0 {
		g.expiration = 2 * time.Minute
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle is a queue Handler that records the job outcome.
func (g *Generator) Handle(ctx context.Context, job Job) error {
	generated, err := g.Generate(ctx, job)
	switch {
	case err != nil:
		g.record("failed")
	case generated:
		g.record("generated")
	default:
		g.record("skipped")
	}
	return err
}

// Generate saves two recommendations for job and notifies devices. It reports false
// without error when the job is skipped: a repeat check-in within the expiration
// window, a missing template, or a malformed template.
func (g *Generator) Generate(ctx context.Context, job Job) (bool, error) {
	log := g.logger.With(zap.String("user", job.UserEmail), zap.String("place_id", job.PlaceID))

	// The current check-in is already stored, so one match is expected.
	n, err := g.store.CountCheckInsSince(ctx, job.UserEmail, job.PlaceID, g.now().Add(-g.expiration))
	if err != nil {
		return false, fmt.Errorf("failed to count check-ins: %w", err)
	}
	if n > 1 {
		log.Info("skipping recommendations for repeat check-in")
		return false, nil
	}
	log.Info("generating recommendations")

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	tmpl, err := g.store.GetRecommendation(ctx, g.templateID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("no recommendation template found, skipping", zap.String("template_id", g.templateID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load template: %w", err)
	}

	parts := utils.SplitTrim(tmpl.Title, ";")
	if len(parts) != 2 {
		log.Warn("template title must have two parts separated by a semicolon, skipping",
			zap.String("title", tmpl.Title))
		return false, nil
	}

	expiration := g.now().Add(g.expiration)
	recs := make([]*models.Recommendation, 2)
	for i := range recs {
		desc, okDesc := formatTemplate(tmpl.Description, 110+g.intn(90), 80+g.intn(20))
		image, okImage := formatTemplate(tmpl.ImageURL, 3+g.intn(6))
		if !okDesc || !okImage {
			log.Warn("template description or image url has an invalid format, skipping")
			return false, nil
		}
		recs[i] = &models.Recommendation{
			ID:          uuid.NewString(),
			Title:       parts[0],
			Description: desc,
			ImageURL:    image,
			Expiration:  expiration,
		}
	}
	for _, r := range recs {
		if err := g.store.SaveRecommendation(ctx, r); err != nil {
			return false, fmt.Errorf("failed to save recommendation: %w", err)
		}
	}

	payload := notify.Payload{
		"NotificationKind": NotificationKind,
		"ProductCount":     strconv.Itoa(len(recs)),
		"ProductName":      parts[1],
	}
	if err := g.notifier.Send(ctx, payload); err != nil {
		log.Info("failed to send push notification", zap.Error(err))
	}
	return true, nil
}

// formatTemplate applies args to format. Unused arguments are ignored; a bad verb
// or a missing argument reports false.
func formatTemplate(format string, args ...interface{}) (string, bool) {
	s := fmt.Sprintf(format, args...)
	if i := strings.Index(s, "%!(EXTRA "); i >= 0 {
		s = s[:i]
	}
	return s, !strings.Contains(s, "%!")
}
