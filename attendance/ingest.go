package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AddressUnknown labels punches whose location could not be resolved.
const AddressUnknown = "location not detected"

// IngestRequest is a punch as it arrives from a device.
type IngestRequest struct {
	Kind PunchKind
	// Latitude and Longitude are nil when the device has no fix.
	Latitude  *decimal.Decimal
	Longitude *decimal.Decimal
	Photo     []byte
	// ClientTimestamp is the ISO-8601 time of an offline-queued punch.
	ClientTimestamp string
	RemoteAddr      string
	Mood            Mood
	MoodComment     string
}

// Ingestor validates device input and hands it to the ledger.
type Ingestor struct {
	ledger   *Ledger
	photos   PhotoStore
	geocoder Geocoder
	clock    Clock
	loc      *time.Location
	logger   Logger
}

func NewIngestor(ledger *Ledger, photos PhotoStore, geocoder Geocoder, clock Clock, loc *time.Location, logger Logger) *Ingestor {
	if geocoder == nil {
		geocoder = NopGeocoder{}
	}
	return &Ingestor{ledger: ledger, photos: photos, geocoder: geocoder, clock: clock, loc: loc, logger: logger}
}

// Punch records a live punch for actor. ENTRY and EXIT without a GPS fix
// or without a photo are rejected before anything is written.
func (in *Ingestor) Punch(ctx context.Context, actor Worker, req IngestRequest) (*Punch, error) {
	if err := Authorize(actor, CapPunch); err != nil {
		return nil, err
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown punch kind %q", ErrInvalidInput, req.Kind)
	}

	loc := Location{}
	if req.Latitude != nil && req.Longitude != nil {
		loc = NewLocation(*req.Latitude, *req.Longitude)
	}

	if req.Kind.RequiresHardware() {
		var missing []string
		if loc.IsZero() {
			missing = append(missing, "gps")
		}
		if len(req.Photo) == 0 {
			missing = append(missing, "photo")
		}
		if len(missing) > 0 {
			return nil, &HardwareValidationError{Kind: req.Kind, Missing: missing}
		}
	}

	ts := in.timestamp(req.ClientTimestamp)

	var photoRef string
	if len(req.Photo) > 0 {
		ref, err := in.photos.SavePhoto(ctx, actor.ID, ts, req.Photo)
		if err != nil {
			return nil, fmt.Errorf("storing photo: %w", err)
		}
		photoRef = ref
	}

	address := AddressUnknown
	if !loc.IsZero() {
		resolved, err := in.geocoder.Reverse(ctx, loc)
		if err != nil {
			in.logger.Warn("reverse geocoding failed", "worker", actor.ID, "location", loc.String(), "error", err)
		} else if resolved != "" {
			address = resolved
		}
	}

	return in.ledger.Record(ctx, PunchInput{
		WorkerID:    actor.ID,
		Kind:        req.Kind,
		Timestamp:   ts,
		Location:    loc,
		Address:     address,
		RemoteAddr:  req.RemoteAddr,
		PhotoRef:    photoRef,
		Mood:        req.Mood,
		MoodComment: strings.TrimSpace(req.MoodComment),
	})
}

// timestamp honours an offline client time when it parses; naive times are
// read in the deployment location. Anything else falls back to now.
func (in *Ingestor) timestamp(client string) time.Time {
	now := in.clock.Now()
	client = strings.TrimSpace(client)
	if client == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339Nano, client); err == nil {
		return t
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, client, in.loc); err == nil {
			return t
		}
	}
	in.logger.Warn("unparseable client timestamp, using server time", "value", client)
	return now
}
