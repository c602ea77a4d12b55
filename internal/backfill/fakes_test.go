package backfill

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	records []Record
	listErr error
	// updateErrs maps record IDs to the error UpdateLogo should return.
	updateErrs map[string]error
	updates    map[string][]Attachment
}

func newFakeStore(records ...Record) *fakeStore {
	return &fakeStore{
		records:    records,
		updateErrs: map[string]error{},
		updates:    map[string][]Attachment{},
	}
}

func (s *fakeStore) List(context.Context) ([]Record, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]Record(nil), s.records...), nil
}

func (s *fakeStore) UpdateLogo(_ context.Context, recordID string, logo []Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErrs[recordID]; err != nil {
		return err
	}
	s.updates[recordID] = append([]Attachment(nil), logo...)
	return nil
}

type fakeLookup struct {
	images map[string]Image
	errs   map[string]error
	calls  []string
}

func (l *fakeLookup) Lookup(_ context.Context, domain string) (Image, error) {
	l.calls = append(l.calls, domain)
	if err := l.errs[domain]; err != nil {
		return Image{}, err
	}
	img, ok := l.images[domain]
	if !ok {
		return Image{}, &StatusError{Service: ServiceLookup, StatusCode: 404}
	}
	return img, nil
}

type fakeHost struct {
	err     error
	uploads []string
}

func (h *fakeHost) Upload(_ context.Context, _ Image, name string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	h.uploads = append(h.uploads, name)
	return "https://i.ibb.co/" + name + ".png", nil
}

type fakeSleeper struct {
	delays []time.Duration
	err    error
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDGen struct {
	id  string
	err error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.id, nil
}

type fakeRecorder struct {
	outcomes  []Outcome
	summaries []Summary
	err       error
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, outcome Outcome) error {
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

func (r *fakeRecorder) RecordSummary(_ context.Context, summary Summary) error {
	r.summaries = append(r.summaries, summary)
	return r.err
}

type fakePublisher struct {
	messages []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, payload)
	return "msg-1", nil
}

var errBoom = errors.New("boom")

func pngImage() Image {
	return Image{Body: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png"}
}

func record(id, website string, logo ...string) Record {
	fields := map[string]any{}
	if website != "" {
		fields["Website"] = website
	}
	if len(logo) > 0 {
		list := make([]any, 0, len(logo))
		for _, u := range logo {
			list = append(list, map[string]any{"url": u})
		}
		fields["Logo"] = list
	}
	return Record{ID: id, Fields: fields}
}
