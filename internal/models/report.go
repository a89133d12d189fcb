package models

// ReportEntry describes what happened to one calendar event during a run.
type ReportEntry struct {
	Summary string `json:"summary,omitempty"`
	Class   string `json:"class,omitempty"`
	DueDate string `json:"due_date,omitempty"`
	PageID  string `json:"page_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Report is the full outcome of an import run. Partial success is always
// visible through the created/updated/skipped lists.
type Report struct {
	OK           bool          `json:"ok"`
	RunID        string        `json:"run_id"`
	DryRun       bool          `json:"dry_run,omitempty"`
	CreatedCount int           `json:"created_count"`
	UpdatedCount int           `json:"updated_count"`
	SkippedCount int           `json:"skipped_count"`
	TotalEvents  int           `json:"total_events"`
	Created      []ReportEntry `json:"created"`
	Updated      []ReportEntry `json:"updated"`
	Skipped      []ReportEntry `json:"skipped"`
}

// NewReport returns an empty report with non-nil lists so they encode as [].
func NewReport(runID string, dryRun bool) *Report {
	return &Report{
		OK:      true,
		RunID:   runID,
		DryRun:  dryRun,
		Created: []ReportEntry{},
		Updated: []ReportEntry{},
		Skipped: []ReportEntry{},
	}
}

// AddCreated appends a created entry and keeps the counters in sync.
func (r *Report) AddCreated(e ReportEntry) {
	r.Created = append(r.Created, e)
	r.CreatedCount = len(r.Created)
}

// AddUpdated appends an updated entry.
func (r *Report) AddUpdated(e ReportEntry) {
	r.Updated = append(r.Updated, e)
	r.UpdatedCount = len(r.Updated)
}

// AddSkipped appends a skipped entry.
func (r *Report) AddSkipped(e ReportEntry) {
	r.Skipped = append(r.Skipped, e)
	r.SkippedCount = len(r.Skipped)
}

// ResetReport is the outcome of a bulk archive.
type ResetReport struct {
	RunID    string        `json:"run_id"`
	Scanned  int           `json:"scanned"`
	Archived []ReportEntry `json:"archived"`
	Failed   []ReportEntry `json:"failed"`
}
