// Package directory turns Airtable product records into the public product listing.
package directory

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/product-directory/internal/backfill"
)

// AllCategories is the catch-all category that is always listed first.
const AllCategories = "all"

// DefaultCategory is used for products without a Category field.
const DefaultCategory = "Dental Technology"

const placeholderImage = "https://via.placeholder.com/400x320?text="

var (
	tldSuffix  = regexp.MustCompile(`\.(com|io|co|net|org|ai|app|dev).*$`)
	wordSplits = regexp.MustCompile(`[.-]`)

	defaultCategories = []string{
		"Practice Management",
		"Clinical Software",
		"Imaging & Diagnostics",
		"Patient Communication",
		"Billing & Insurance",
		"Marketing & Analytics",
		"Supplies & Equipment",
		"Laboratory Services",
	}
)

// Fields names the record fields the listing reads.
type Fields struct {
	Website  string
	Logo     string
	Category string
	Email    string
	Phone    string
	Address  string
	Rating   string
}

// DefaultFields matches the product table layout.
func DefaultFields() Fields {
	return Fields{
		Website:  "Website",
		Logo:     "Logo",
		Category: "Category",
		Email:    "Email",
		Phone:    "Phone",
		Address:  "Address",
		Rating:   "Rating",
	}
}

// Product is one listing entry.
type Product struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Manufacturer        string   `json:"manufacturer"`
	Category            string   `json:"category"`
	BasicDescription    string   `json:"basicDescription"`
	DetailedDescription string   `json:"detailedDescription"`
	Website             string   `json:"website"`
	Email               string   `json:"email"`
	Phone               string   `json:"phone"`
	Address             string   `json:"address"`
	Rating              *float64 `json:"rating"`
	Logo                *string  `json:"logo"`
	Image               string   `json:"image"`
}

// Lister returns the raw records behind the listing.
type Lister interface {
	List(ctx context.Context) ([]backfill.Record, error)
}

// Filter narrows a product listing.
type Filter struct {
	// Category matches exactly; empty or AllCategories keeps everything.
	Category string
	// Query is a case-insensitive substring match on name or manufacturer.
	Query string
}

// Service reads records through a Lister and shapes them for the API.
type Service struct {
	lister Lister
	fields Fields
}

// NewService returns a Service.
func NewService(lister Lister, fields Fields) *Service {
	return &Service{lister: lister, fields: fields}
}

// Products lists and filters products.
func (s *Service) Products(ctx context.Context, filter Filter) ([]Product, error) {
	records, err := s.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return Apply(Products(records, s.fields), filter), nil
}

// Categories lists the product categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	records, err := s.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return Categories(records, s.fields), nil
}

// CompanyName derives a display name from a website URL, e.g.
// "https://www.smile-direct.com" becomes "Smile Direct". It returns "" when
// no name can be derived.
func CompanyName(website string) string {
	if website == "" {
		return ""
	}
	u, err := url.Parse(website)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = tldSuffix.ReplaceAllString(host, "")

	words := wordSplits.Split(host, -1)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// Products keeps records with a website and a derivable name and maps them to Products.
func Products(records []backfill.Record, fields Fields) []Product {
	out := make([]Product, 0, len(records))
	for _, rec := range records {
		website := rec.String(fields.Website)
		name := CompanyName(website)
		if website == "" || name == "" {
			continue
		}
		category := rec.String(fields.Category)
		if category == "" {
			category = DefaultCategory
		}
		p := Product{
			ID:                  rec.ID,
			Name:                name,
			Manufacturer:        name,
			Category:            category,
			BasicDescription:    "Professional dental solutions from " + name,
			DetailedDescription: name + " provides innovative dental technology and services to enhance patient care and practice efficiency.",
			Website:             website,
			Email:               rec.String(fields.Email),
			Phone:               rec.String(fields.Phone),
			Address:             rec.String(fields.Address),
			Rating:              number(rec.Fields[fields.Rating]),
			Image:               placeholderImage + url.PathEscape(name),
		}
		if logos := rec.Attachments(fields.Logo); len(logos) > 0 && logos[0].URL != "" {
			logo := logos[0].URL
			p.Logo = &logo
		}
		out = append(out, p)
	}
	return out
}

func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return nil
	}
	if f == 0 {
		return nil
	}
	return &f
}

// Categories returns "all" followed by every distinct record category in first-seen
// order, or the default category list when no record has one.
func Categories(records []backfill.Record, fields Fields) []string {
	out := []string{AllCategories}
	seen := map[string]struct{}{AllCategories: {}}
	for _, rec := range records {
		c := rec.String(fields.Category)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 1 {
		out = append(out, defaultCategories...)
	}
	return out
}

// Apply returns the products matching filter.
func Apply(products []Product, filter Filter) []Product {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if filter.Category != "" && filter.Category != AllCategories && p.Category != filter.Category {
			continue
		}
		if query != "" && !matches(p, query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matches(p Product, query string) bool {
	for _, field := range []string{p.Name, p.Manufacturer} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
