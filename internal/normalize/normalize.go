// Package normalize cleans extracted values before they are merged and
// generates listing identifiers.
package normalize

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// Phone formats raw as E.164 when it parses as a valid number for region.
// Anything else is returned unchanged.
func Phone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if region == "" {
		region = "GB"
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Coordinate rounds a latitude or longitude to 5 decimal places (about 1m).
func Coordinate(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// Slug builds a URL-friendly slug: "Manchester Tennis & Sports Club" ->
// "manchester-tennis-sports-club".
func Slug(name string) string {
	s := strings.ToLower(name)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DirSlug is the directory name used for an entity's debug snapshots.
func DirSlug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "_", "/", "_", "'", "").Replace(s)
	return s
}

var listingPrefixes = map[string]string{
	"venue": "VEN",
}

// ListingID returns a time-ordered prefixed ID such as "VEN-018e12345678abcd".
func ListingID(entityType string) string {
	prefix, ok := listingPrefixes[strings.ToLower(entityType)]
	if !ok {
		prefix = "LST"
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	short := strings.ReplaceAll(id.String(), "-", "")[:16]
	return prefix + "-" + short
}
