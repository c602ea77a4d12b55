package backfill

import (
	"context"
	"time"
)

// RecordStore lists and updates rows of the external tabular store.
type RecordStore interface {
	// List returns every record in the configured view, following pagination.
	List(ctx context.Context) ([]Record, error)
	// UpdateLogo replaces the logo field of one record.
	UpdateLogo(ctx context.Context, recordID string, logo []Attachment) error
}

// LogoLookup fetches a logo candidate for a domain key.
type LogoLookup interface {
	Lookup(ctx context.Context, domain string) (Image, error)
}

// ImageHost re-hosts image bytes and returns a public URL.
type ImageHost interface {
	Upload(ctx context.Context, img Image, name string) (string, error)
}

// Sleeper pauses the run between records.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// OutcomeRecorder keeps an audit trail of a run.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
	RecordSummary(ctx context.Context, summary Summary) error
}

// Publisher pushes logo-updated events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
