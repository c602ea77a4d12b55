package backfill

import (
	"reflect"
	"strings"
	"time"
)

// Stage names a step of the per-record pipeline.
type Stage string

// Pipeline stages in the order a record moves through them.
const (
	StageEligible    Stage = "eligible"
	StageFetching    Stage = "fetching"
	StageValidating  Stage = "validating"
	StageUploading   Stage = "uploading"
	StageWritingBack Stage = "writing_back"
	StageDone        Stage = "done"
)

// FailureKind classifies why a record failed.
type FailureKind string

// Failure kinds reported in logs, metrics and audit rows.
const (
	FailureNone        FailureKind = ""
	FailureNotFound    FailureKind = "not_found"
	FailureRateLimited FailureKind = "rate_limited"
	FailureNotImage    FailureKind = "not_image"
	FailureNoDomain    FailureKind = "no_domain"
	FailureOther       FailureKind = "other"
)

// FieldNames maps the job's two fields onto table column names.
type FieldNames struct {
	Website string
	Logo    string
}

// DefaultFieldNames returns the column names used by the directory table.
func DefaultFieldNames() FieldNames {
	return FieldNames{Website: "Website", Logo: "Logo"}
}

// Attachment is one element of an attachment-list field.
type Attachment struct {
	URL string `json:"url"`
}

// Record is an opaque row of the tabular store.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// String returns the named field when it holds a string, and "" otherwise.
func (r Record) String(field string) string {
	if r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[field].(string)
	return s
}

// HasValue reports whether the named field holds anything. Slices, maps and strings
// count only when non-empty; any other non-nil value counts.
func (r Record) HasValue(field string) bool {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len() > 0
	default:
		return true
	}
}

// Attachments decodes the named attachment-list field for reading URLs.
// Elements without a URL are dropped.
func (r Record) Attachments(field string) []Attachment {
	if r.Fields == nil {
		return nil
	}
	switch v := r.Fields[field].(type) {
	case []Attachment:
		return v
	case []map[string]any:
		out := make([]Attachment, 0, len(v))
		for _, m := range v {
			if u, ok := m["url"].(string); ok && u != "" {
				out = append(out, Attachment{URL: u})
			}
		}
		return out
	case []any:
		out := make([]Attachment, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if u, ok := m["url"].(string); ok && u != "" {
				out = append(out, Attachment{URL: u})
			}
		}
		return out
	default:
		return nil
	}
}

// Image is a fetched logo candidate.
type Image struct {
	Body        []byte
	ContentType string
	SourceURL   string
}

// IsImage reports whether the declared content type is an image type.
func (i Image) IsImage() bool {
	return strings.Contains(strings.ToLower(i.ContentType), "image")
}

// Summary holds the counters for one run. It is never persisted by the runner itself.
type Summary struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Skipped    int       `json:"skipped"`
	Processed  int       `json:"processed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Outcome describes how a single eligible record finished.
type Outcome struct {
	RunID      string
	RecordID   string
	Domain     string
	Stage      Stage
	Succeeded  bool
	Failure    FailureKind
	HostedURL  string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// ErrorText returns the failure message, or "" on success.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
