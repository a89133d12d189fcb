package models

import "time"

// CalendarEvent represents a single event read from a calendar feed.
// This is an internal representation, independent of the parser that produced it.
type CalendarEvent struct {
	UID         string    // The iCalendar UID, informational only
	Summary     string    // Summary or title of the event, verbatim
	Description string    // Detailed description of the event
	StartTime   time.Time // Start time of the event; zero if missing or unparsable
	URL         string    // Link back to the assignment, if any
}

// Category is a user-defined grouping (e.g. a course) matched against event summaries.
// ID is the relation target when the database links categories as pages; otherwise it
// is simply the category name.
type Category struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
}

// CategoriesFromNames builds categories whose ID is their own name.
func CategoriesFromNames(names []string) []Category {
	out := make([]Category, 0, len(names))
	for _, name := range names {
		out = append(out, Category{Name: name, ID: name})
	}
	return out
}

// NormalizedAssignment is the canonical form of a calendar event used for reconciliation.
type NormalizedAssignment struct {
	Title     string    // Event summary, verbatim
	BaseTitle string    // Title without its trailing bracketed category tag; the dedup key
	Category  *Category // Matched category, nil when nothing matched
	DueDate   string    // Canonical ISO-8601 UTC instant
	Link      string    // Event URL, empty when absent
}

// ExistingRecord is a row already present in the target database.
type ExistingRecord struct {
	PageID     string
	Title      string
	BaseTitle  string
	DueDate    string   // Canonical instant, empty when the row has no due date
	Categories []string // Raw category-field values (relation ids or option/text names)
}
