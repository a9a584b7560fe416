package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging for the service layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// =============================================================================
// OUTER COLLABORATORS
// =============================================================================

// PhotoStore keeps the punch photo and returns an opaque reference.
type PhotoStore interface {
	SavePhoto(ctx context.Context, worker WorkerID, takenAt time.Time, data []byte) (string, error)
}

// Geocoder resolves a GPS fix to a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, loc Location) (string, error)
}

// NopGeocoder never resolves anything.
type NopGeocoder struct{}

func (NopGeocoder) Reverse(context.Context, Location) (string, error) { return "", nil }

// Alert is what the scanner hands to a Notifier.
type Alert struct {
	Kind    AlertKind
	Worker  Worker
	Company *Company
	Date    Date
	PunchID *PunchID
	Detail  string
	At      time.Time
}

// Notifier delivers alerts. Delivery mechanics live outside the engine.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }
