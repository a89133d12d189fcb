package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/S1monlol/notionCanvas/internal/calendar"
	"github.com/S1monlol/notionCanvas/internal/models"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

// PageService is the slice of the page/database service a run needs.
type PageService interface {
	RetrieveDatabase(ctx context.Context, databaseID string) (*notion.Database, error)
	QueryDatabase(ctx context.Context, databaseID, cursor string) (*notion.QueryResult, error)
	CreatePage(ctx context.Context, databaseID string, props notion.Properties) (*notion.Page, error)
	UpdatePage(ctx context.Context, pageID string, update notion.PageUpdate) (*notion.Page, error)
}

// CalendarFetcher returns the raw iCalendar text behind a URL.
type CalendarFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type Options struct {
	// DryRun decides everything but issues no writes.
	DryRun bool
	Schema SchemaOptions
}

// Syncer orchestrates the synchronization from a calendar feed to a database.
// A Syncer holds one credential's client and is built per run or per request.
type Syncer struct {
	logger     *slog.Logger
	pages      PageService
	fetcher    CalendarFetcher
	dryRun     bool
	schemaOpts SchemaOptions
}

// NewSyncer creates a new Syncer.
func NewSyncer(logger *slog.Logger, pages PageService, fetcher CalendarFetcher, opts Options) (*Syncer, error) {
	if pages == nil {
		return nil, errors.New("page service is required")
	}
	if fetcher == nil {
		return nil, errors.New("calendar fetcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		logger:     logger,
		pages:      pages,
		fetcher:    fetcher,
		dryRun:     opts.DryRun,
		schemaOpts: opts.Schema,
	}, nil
}

// ImportRequest is one import run's input.
type ImportRequest struct {
	CalendarURL string
	DatabaseID  string
	Categories  []models.Category
}

// Import performs a full reconciliation run. Preconditions that fail abort the
// run with an *Error; once events are being processed every event ends up in
// the report and the run always completes.
func (s *Syncer) Import(ctx context.Context, req ImportRequest) (*models.Report, error) {
	calendarURL := strings.TrimSpace(req.CalendarURL)
	databaseID := strings.TrimSpace(req.DatabaseID)
	if calendarURL == "" || databaseID == "" {
		return nil, newError(KindBadRequest, "missing_fields", "Required fields: calendarUrl, databaseId", nil)
	}
	categories := cleanCategories(req.Categories)
	if len(categories) == 0 {
		return nil, newError(KindBadRequest, "no_classes", "No classes found. Please add classes in the setup page.", nil)
	}

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "database_id", databaseID)
	logger.Info("Starting import run.", "calendar", calendar.RedactURL(calendarURL), "classes", len(categories), "dry_run", s.dryRun)

	schema, err := s.loadSchema(ctx, logger, databaseID)
	if err != nil {
		return nil, err
	}
	categories = s.resolveCategoryIDs(ctx, logger, schema, categories)

	body, err := s.fetcher.Fetch(ctx, calendarURL)
	if err != nil {
		return nil, upstreamError("calendar_fetch", "Failed to fetch calendar URL", err)
	}
	events, err := calendar.Parse(body)
	if err != nil {
		return nil, newError(KindBadRequest, "calendar_parse", "Failed to parse ICS calendar", err)
	}

	index, err := FetchIndex(ctx, s.pages, databaseID, schema)
	if err != nil {
		return nil, upstreamError("database_query", "Failed to query database", err)
	}
	logger.Info("Loaded existing records.", "events", len(events), "records", index.Len())

	report := models.NewReport(runID, s.dryRun)
	report.TotalEvents = len(events)
	rec := NewReconciler(index)
	writer := NewWriter(s.pages, databaseID, schema)
	for _, ev := range events {
		s.processEvent(ctx, logger, ev, categories, rec, writer, report)
	}

	logger.Info("Import run finished.",
		"created", report.CreatedCount,
		"updated", report.UpdatedCount,
		"skipped", report.SkippedCount,
		"total", report.TotalEvents)
	return report, nil
}

func (s *Syncer) loadSchema(ctx context.Context, logger *slog.Logger, databaseID string) (*Schema, error) {
	db, err := s.pages.RetrieveDatabase(ctx, databaseID)
	if err != nil {
		return nil, upstreamError("database_metadata", "Failed to fetch database metadata", err)
	}
	schema, err := ResolveSchema(db, s.schemaOpts)
	switch {
	case errors.Is(err, ErrMissingDueDate):
		e := newError(KindBadRequest, "missing_due_date", "Your Notion database is missing a 'Due Date' property.", nil)
		e.Details = "Add a column named 'Due Date' (type: Date) to the database, then import again."
		return nil, e
	case err != nil:
		return nil, newError(KindBadRequest, "invalid_schema", "Unsupported database schema", err)
	}
	if schema.CategoryMissing {
		logger.Warn("Database has no category property, writing it as text.", "property", schema.CategoryProperty)
	}
	logger.Debug("Resolved database schema.",
		"title", schema.TitleProperty,
		"due_date", schema.DueDateProperty,
		"category", schema.CategoryProperty,
		"category_type", schema.CategoryType,
		"link", schema.LinkProperty)
	return schema, nil
}

// resolveCategoryIDs maps category names to page ids when the category column
// is a relation and a category carries no id of its own. Unresolved categories
// keep their name as id; rows created for them fail individually.
func (s *Syncer) resolveCategoryIDs(ctx context.Context, logger *slog.Logger, schema *Schema, categories []models.Category) []models.Category {
	if schema.CategoryType != notion.TypeRelation || schema.CategoryRelationDB == "" {
		return categories
	}
	pending := false
	for _, c := range categories {
		if c.ID == c.Name {
			pending = true
			break
		}
	}
	if !pending {
		return categories
	}

	byTitle := make(map[string]string)
	err := scanDatabase(ctx, s.pages, schema.CategoryRelationDB, func(p notion.Page) {
		title := strings.TrimSpace(p.Title())
		if p.Archived || title == "" {
			return
		}
		if _, ok := byTitle[title]; !ok {
			byTitle[title] = p.ID
		}
	})
	if err != nil {
		logger.Warn("Could not read related class database.", "database_id", schema.CategoryRelationDB, "error", err)
		return categories
	}

	out := make([]models.Category, 0, len(categories))
	for _, c := range categories {
		if c.ID == c.Name {
			if id, ok := byTitle[c.Name]; ok {
				c.ID = id
			} else {
				logger.Warn("No related page found for class.", "class", c.Name)
			}
		}
		out = append(out, c)
	}
	return out
}

// processEvent is the single per-event failure boundary: nothing it does,
// panics included, escapes into the run.
func (s *Syncer) processEvent(ctx context.Context, logger *slog.Logger, ev models.CalendarEvent, categories []models.Category, rec *Reconciler, w *Writer, report *models.Report) {
	entry := models.ReportEntry{Summary: ev.Summary}
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while processing event.", "title", ev.Summary, "action", ActionSkipFailed, "panic", r)
			if !recorded {
				entry.Reason = fmt.Sprintf("Event processing error: %v", r)
				report.AddSkipped(entry)
			}
		}
	}()

	a, err := Normalize(ev)
	if err != nil {
		logger.Debug("Skipping malformed event.", "uid", ev.UID, "error", err)
		entry.Reason = "Invalid event: " + err.Error()
		report.AddSkipped(entry)
		recorded = true
		return
	}
	a.Category = MatchCategory(a.Title, categories)
	d := rec.Decide(a)

	entry.DueDate = a.DueDate
	if a.Category != nil {
		entry.Class = a.Category.Name
	}
	if d.Existing != nil {
		entry.PageID = d.Existing.PageID
	}

	switch d.Action {
	case ActionCreate:
		if s.dryRun {
			logger.Info("[DRY RUN] Would create page.", "title", a.Title, "class", entry.Class, "due", a.DueDate)
			report.AddCreated(entry)
			recorded = true
			return
		}
		pageID, err := w.Create(ctx, a)
		if err != nil {
			logger.Error("Failed to create page.", "title", a.Title, "action", ActionSkipFailed, "error", err)
			entry.Reason = "Failed to create: " + err.Error()
			report.AddSkipped(entry)
			recorded = true
			return
		}
		entry.PageID = pageID
		logger.Info("Created page.", "title", a.Title, "page_id", pageID)
		report.AddCreated(entry)
		recorded = true

	case ActionUpdateDueDate:
		if s.dryRun {
			logger.Info("[DRY RUN] Would update due date.", "title", a.Title, "page_id", d.Existing.PageID, "from", d.Existing.DueDate, "to", a.DueDate)
			report.AddUpdated(entry)
			recorded = true
			return
		}
		if err := w.UpdateDueDate(ctx, d.Existing.PageID, a.DueDate); err != nil {
			logger.Error("Failed to update due date.", "title", a.Title, "page_id", d.Existing.PageID, "action", ActionSkipFailed, "error", err)
			entry.Reason = "Failed to update: " + err.Error()
			report.AddSkipped(entry)
			recorded = true
			return
		}
		logger.Info("Updated due date.", "title", a.Title, "page_id", d.Existing.PageID, "from", d.Existing.DueDate, "to", a.DueDate)
		report.AddUpdated(entry)
		recorded = true

	default:
		logger.Debug("Skipping event.", "title", a.Title, "action", d.Action.String())
		entry.Reason = d.Reason
		report.AddSkipped(entry)
		recorded = true
	}
}

// cleanCategories trims names, drops blanks, and gives id-less categories
// their name as id.
func cleanCategories(in []models.Category) []models.Category {
	out := make([]models.Category, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			c.ID = c.Name
		}
		out = append(out, c)
	}
	return out
}
