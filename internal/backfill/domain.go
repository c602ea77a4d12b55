package backfill

import (
	"net/url"
	"strings"
)

// DeriveKey returns the lowercase host of rawURL with a leading "www." removed.
// It returns "" when the URL does not parse or carries no host.
func DeriveKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsEligible reports whether rec has a website and no logo yet. Any non-empty logo
// value, even attachments without a URL, makes the record ineligible.
func IsEligible(rec Record, fields FieldNames) bool {
	if rec.String(fields.Website) == "" {
		return false
	}
	return !rec.HasValue(fields.Logo)
}
