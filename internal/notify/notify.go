// Package notify delivers push payloads to registered devices and keeps the
// registration table in step with what the delivery service reports.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/models"
)

// ErrNotRegistered is reported by a Sender when a device ID is no longer valid.
var ErrNotRegistered = errors.New("device not registered")

// Payload is the key/value data delivered to devices.
type Payload map[string]string

// Result is the outcome of delivering to one device.
type Result struct {
	MessageID string
	// CanonicalID is set when the delivery service knows the device under a newer ID.
	CanonicalID string
	Err         error
}

// Sender delivers a payload to one device, retrying up to retries times.
type Sender interface {
	Send(ctx context.Context, payload Payload, regID string, retries int) Result
}

// Registrations is the subset of storage used by the Dispatcher.
type Registrations interface {
	ListRegistrations(ctx context.Context, limit int) ([]*models.Registration, error)
	UpdateRegistration(ctx context.Context, r *models.Registration) error
	DeleteRegistration(ctx context.Context, regID string) error
}

// Recorder receives one outcome per device: "sent", "updated", "removed" or "failed".
type Recorder func(result string)

// Dispatcher fans a payload out to registered devices.
type Dispatcher struct {
	sender     Sender
	regs       Registrations
	maxDevices int
	maxRetries int
	logger     *zap.Logger
	record     Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder sets a callback invoked for every delivery outcome.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.record = r }
}

// NewDispatcher creates a Dispatcher sending to at most maxDevices devices.
func NewDispatcher(sender Sender, regs Registrations, maxDevices, maxRetries int, opts ...Option) *Dispatcher {
	if maxDevices <= 0 {
		maxDevices = 10
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	d := &Dispatcher{
		sender:     sender,
		regs:       regs,
		maxDevices: maxDevices,
		maxRetries: maxRetries,
		logger:     zap.NewNop(),
		record:     func(string) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers payload to the first registered devices. An empty payload is skipped.
// Per-device failures are logged; only loading the registrations can fail the call.
func (d *Dispatcher) Send(ctx context.Context, payload Payload) error {
	if len(payload) == 0 {
		d.logger.Warn("not sending message because payload is empty")
		return nil
	}
	records, err := d.regs.ListRegistrations(ctx, d.maxDevices)
	if err != nil {
		return fmt.Errorf("failed to load registrations: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := d.sender.Send(ctx, payload, rec.RegID, d.maxRetries)
		switch {
		case res.Err == nil:
			d.logger.Info("message sent", zap.String("reg_id", rec.RegID), zap.String("message_id", res.MessageID))
			if res.CanonicalID == "" || res.CanonicalID == rec.RegID {
				d.record("sent")
				continue
			}
			d.logger.Info("registration id changed",
				zap.String("reg_id", rec.RegID),
				zap.String("canonical_id", res.CanonicalID))
			updated := &models.Registration{ID: rec.ID, RegID: res.CanonicalID}
			if err := d.regs.UpdateRegistration(ctx, updated); err != nil {
				d.logger.Warn("failed to update registration", zap.String("reg_id", rec.RegID), zap.Error(err))
				d.record("failed")
				continue
			}
			d.record("updated")
		case errors.Is(res.Err, ErrNotRegistered):
			d.logger.Warn("device no longer registered, removing", zap.String("reg_id", rec.RegID))
			if err := d.regs.DeleteRegistration(ctx, rec.RegID); err != nil {
				d.logger.Warn("failed to remove registration", zap.String("reg_id", rec.RegID), zap.Error(err))
				d.record("failed")
				continue
			}
			d.record("removed")
		default:
			d.logger.Warn("error when sending message", zap.String("reg_id", rec.RegID), zap.Error(res.Err))
			d.record("failed")
		}
	}
	return nil
}

// LogSender writes deliveries to the log instead of a push service.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender. A nil logger discards output.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the payload and reports success with a fresh message ID.
func (s *LogSender) Send(ctx context.Context, payload Payload, regID string, retries int) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}
	id := uuid.NewString()
	s.logger.Info("push notification",
		zap.String("reg_id", regID),
		zap.String("message_id", id),
		zap.Any("payload", map[string]string(payload)))
	return Result{MessageID: id}
}
