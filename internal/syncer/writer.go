package syncer

import (
	"context"
	"fmt"

	"github.com/S1monlol/notionCanvas/internal/models"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

type pageWriter interface {
	CreatePage(ctx context.Context, databaseID string, props notion.Properties) (*notion.Page, error)
	UpdatePage(ctx context.Context, pageID string, update notion.PageUpdate) (*notion.Page, error)
}

// Writer translates decisions into single create/update calls. It knows
// nothing about matching.
type Writer struct {
	pages      pageWriter
	databaseID string
	schema     *Schema
}

func NewWriter(pages pageWriter, databaseID string, schema *Schema) *Writer {
	return &Writer{pages: pages, databaseID: databaseID, schema: schema}
}

// Create adds a row and returns its page id.
func (w *Writer) Create(ctx context.Context, a models.NormalizedAssignment) (string, error) {
	page, err := w.pages.CreatePage(ctx, w.databaseID, w.schema.CreateProperties(a))
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	return page.ID, nil
}

// UpdateDueDate sets a row's due date.
func (w *Writer) UpdateDueDate(ctx context.Context, pageID, due string) error {
	_, err := w.pages.UpdatePage(ctx, pageID, notion.PageUpdate{Properties: w.schema.DueDateProperties(due)})
	if err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}
	return nil
}

// Archive soft-deletes a row.
func (w *Writer) Archive(ctx context.Context, pageID string) error {
	archived := true
	if _, err := w.pages.UpdatePage(ctx, pageID, notion.PageUpdate{Archived: &archived}); err != nil {
		return fmt.Errorf("archive page %s: %w", pageID, err)
	}
	return nil
}
