package syncer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/S1monlol/notionCanvas/internal/models"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

// Reset archives every row whose category value belongs to one of the given
// categories. Other rows are left alone. There is no undo.
func (s *Syncer) Reset(ctx context.Context, databaseID string, categories []models.Category) (*models.ResetReport, error) {
	databaseID = strings.TrimSpace(databaseID)
	if databaseID == "" {
		return nil, newError(KindBadRequest, "missing_fields", "Required field: databaseId", nil)
	}
	categories = cleanCategories(categories)
	if len(categories) == 0 {
		return nil, newError(KindBadRequest, "no_classes", "No classes found. Please add classes in the setup page.", nil)
	}

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "database_id", databaseID)
	logger.Warn("Starting reset run.", "classes", len(categories), "dry_run", s.dryRun)

	schema, err := s.loadSchema(ctx, logger, databaseID)
	if err != nil {
		return nil, err
	}
	categories = s.resolveCategoryIDs(ctx, logger, schema, categories)
	managed := managedValues(schema, categories)

	report := &models.ResetReport{RunID: runID, Archived: []models.ReportEntry{}, Failed: []models.ReportEntry{}}
	var targets []models.ReportEntry
	err = scanDatabase(ctx, s.pages, databaseID, func(p notion.Page) {
		report.Scanned++
		if p.Archived {
			return
		}
		for _, v := range schema.CategoryValues(p) {
			if class, ok := managed[categoryKey(schema, v)]; ok {
				targets = append(targets, models.ReportEntry{Summary: schema.TitleOf(p), Class: class, PageID: p.ID})
				return
			}
		}
	})
	if err != nil {
		return nil, upstreamError("database_query", "Failed to query database", err)
	}

	writer := NewWriter(s.pages, databaseID, schema)
	for _, t := range targets {
		if s.dryRun {
			logger.Info("[DRY RUN] Would archive page.", "title", t.Summary, "page_id", t.PageID)
			report.Archived = append(report.Archived, t)
			continue
		}
		if err := writer.Archive(ctx, t.PageID); err != nil {
			logger.Error("Failed to archive page.", "title", t.Summary, "page_id", t.PageID, "error", err)
			t.Reason = err.Error()
			report.Failed = append(report.Failed, t)
			continue
		}
		logger.Info("Archived page.", "title", t.Summary, "page_id", t.PageID)
		report.Archived = append(report.Archived, t)
	}

	logger.Info("Reset run finished.", "scanned", report.Scanned, "archived", len(report.Archived), "failed", len(report.Failed))
	return report, nil
}

// managedValues maps the category values this service writes to class names.
func managedValues(schema *Schema, categories []models.Category) map[string]string {
	out := make(map[string]string, len(categories))
	for _, c := range categories {
		if schema.CategoryType == notion.TypeRelation {
			out[categoryKey(schema, c.ID)] = c.Name
			continue
		}
		out[c.Name] = c.Name
	}
	return out
}

// categoryKey normalizes relation ids, which come back hyphenated and
// lowercase while users may store them compact.
func categoryKey(schema *Schema, v string) string {
	if schema.CategoryType != notion.TypeRelation {
		return v
	}
	return strings.ToLower(strings.ReplaceAll(v, "-", ""))
}
