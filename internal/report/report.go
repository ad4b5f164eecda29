// Package report renders the stored directory as a markdown document, one
// section per canonical category, with low-confidence fields flagged for
// review.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"venuefinds/internal/domain"
)

const uncategorised = "uncategorised"

// Entry is one listing with its entity record.
type Entry struct {
	Listing domain.Listing
	Entity  domain.EntityRecord
}

type Options struct {
	Title string
	// ReviewBelow flags fields whose confidence is under this value.
	ReviewBelow float64
}

// RenderMarkdown groups entries by canonical category. A listing with
// several categories appears under each of them.
func RenderMarkdown(entries []Entry, opts Options) string {
	byCategory := make(map[string][]Entry)
	for _, e := range entries {
		cats := e.Listing.CanonicalCategories
		if len(cats) == 0 {
			cats = []string{uncategorised}
		}
		for _, c := range cats {
			byCategory[c] = append(byCategory[c], e)
		}
	}
	names := make([]string, 0, len(byCategory))
	for c := range byCategory {
		if c != uncategorised {
			names = append(names, c)
		}
	}
	sort.Strings(names)
	if _, ok := byCategory[uncategorised]; ok {
		names = append(names, uncategorised)
	}

	var buf strings.Builder
	if title := strings.TrimSpace(opts.Title); title != "" {
		buf.WriteString("### " + title + "\n\n")
	}
	for _, cat := range names {
		items := byCategory[cat]
		sort.Slice(items, func(i, j int) bool { return items[i].Listing.EntityName < items[j].Listing.EntityName })
		buf.WriteString(fmt.Sprintf("#### %s\n\n", categoryHeading(cat)))
		for _, e := range items {
			buf.WriteString("- " + formatEntry(e) + "\n")
			if review := reviewFields(e, opts.ReviewBelow); len(review) > 0 {
				buf.WriteString("  - review: " + strings.Join(review, ", ") + "\n")
			}
		}
		buf.WriteString("\n")
	}
	return strings.TrimSpace(buf.String()) + "\n"
}

func categoryHeading(cat string) string {
	cat = strings.ReplaceAll(cat, "_", " ")
	if cat == "" {
		return cat
	}
	return strings.ToUpper(cat[:1]) + cat[1:]
}

func formatEntry(e Entry) string {
	l := e.Listing
	var details []string
	if s := stringField(l.Fields, "city"); s != "" {
		details = append(details, s)
	}
	if s := stringField(l.Fields, "phone"); s != "" {
		details = append(details, s)
	}
	if s := stringField(l.Fields, "website_url"); s != "" {
		details = append(details, s)
	}
	out := fmt.Sprintf("**%s** [%s]", l.EntityName, l.ListingID)
	if len(details) > 0 {
		out += " - " + strings.Join(details, " | ")
	}
	return out
}

func stringField(fields domain.FieldValues, name string) string {
	s, _ := fields[name].(string)
	return strings.TrimSpace(s)
}

// reviewFields lists "field (0.40)" for every stored field under the cutoff.
func reviewFields(e Entry, below float64) []string {
	if below <= 0 {
		return nil
	}
	var out []string
	collect := func(conf domain.Confidences) {
		for field, c := range conf {
			if c < below {
				out = append(out, fmt.Sprintf("%s (%.2f)", field, c))
			}
		}
	}
	collect(e.Listing.FieldConfidence)
	collect(e.Entity.FieldConfidence)
	sort.Strings(out)
	return out
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}

// WriteReportFile writes content to <outputDir>/<name>_<yyyymmdd>.md.
func WriteReportFile(content, outputDir string, reportDate time.Time, name string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.md", sanitizeFilename(name), reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0o644)
}
