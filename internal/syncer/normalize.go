package syncer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/S1monlol/notionCanvas/internal/models"
)

// ErrMalformedEvent marks an event that lacks a usable summary or start time.
var ErrMalformedEvent = errors.New("malformed event")

// instantLayout is the canonical due-date form, e.g. 2024-03-01T23:59:00.000Z.
const instantLayout = "2006-01-02T15:04:05.000Z"

// trailingTag matches a bracketed tag anchored at the end of a summary,
// e.g. " [ENGL-103-H_25/FA]".
var trailingTag = regexp.MustCompile(`\s*\[[^\[\]]*\]\s*$`)

// Normalize extracts the fields reconciliation needs from a calendar event.
// The category is left unset; see MatchCategory.
func Normalize(ev models.CalendarEvent) (models.NormalizedAssignment, error) {
	if strings.TrimSpace(ev.Summary) == "" {
		return models.NormalizedAssignment{}, fmt.Errorf("%w: missing summary", ErrMalformedEvent)
	}
	if ev.StartTime.IsZero() {
		return models.NormalizedAssignment{}, fmt.Errorf("%w: missing start time", ErrMalformedEvent)
	}
	return models.NormalizedAssignment{
		Title:     ev.Summary,
		BaseTitle: BaseTitle(ev.Summary),
		DueDate:   FormatInstant(ev.StartTime),
		Link:      strings.TrimSpace(ev.URL),
	}, nil
}

// BaseTitle strips a trailing bracketed category tag and the whitespace around it.
// Titles without such a tag, or consisting only of a tag, are returned unchanged.
func BaseTitle(title string) string {
	loc := trailingTag.FindStringIndex(title)
	if loc == nil {
		return title
	}
	base := strings.TrimSpace(title[:loc[0]])
	if base == "" {
		return title
	}
	return base
}

// FormatInstant renders t as a canonical UTC instant.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}

// CanonicalInstant re-renders a stored date value in canonical form so that
// "2024-03-01T23:59:00.000+00:00" and "2024-03-01T23:59:00.000Z" compare equal.
// Date-only values are taken as UTC midnight. Unparsable values are returned as-is.
func CanonicalInstant(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return FormatInstant(t)
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return FormatInstant(t)
	}
	return raw
}
