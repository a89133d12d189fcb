package syncer

import (
	"context"
	"fmt"

	"github.com/S1monlol/notionCanvas/internal/models"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

// Index is a read-only snapshot of the target database taken at run start.
type Index struct {
	records []models.ExistingRecord
	byBase  map[string]int
}

// NewIndex builds an index. When several records share a base title the first
// one wins lookups.
func NewIndex(records []models.ExistingRecord) *Index {
	idx := &Index{records: records, byBase: make(map[string]int, len(records))}
	for i, r := range records {
		if _, ok := idx.byBase[r.BaseTitle]; !ok {
			idx.byBase[r.BaseTitle] = i
		}
	}
	return idx
}

// Lookup returns the first record with the given base title.
func (idx *Index) Lookup(baseTitle string) (*models.ExistingRecord, bool) {
	i, ok := idx.byBase[baseTitle]
	if !ok {
		return nil, false
	}
	r := idx.records[i]
	return &r, true
}

func (idx *Index) Len() int { return len(idx.records) }

type databaseQuerier interface {
	QueryDatabase(ctx context.Context, databaseID, cursor string) (*notion.QueryResult, error)
}

// scanDatabase calls fn for every row, following cursors until the end. Any
// failed page fails the whole scan.
func scanDatabase(ctx context.Context, q databaseQuerier, databaseID string, fn func(notion.Page)) error {
	cursor := ""
	for page := 1; ; page++ {
		res, err := q.QueryDatabase(ctx, databaseID, cursor)
		if err != nil {
			return fmt.Errorf("query database page %d: %w", page, err)
		}
		for _, p := range res.Results {
			fn(p)
		}
		if !res.HasMore {
			return nil
		}
		if res.NextCursor == "" {
			return fmt.Errorf("query database page %d: has_more without a cursor", page)
		}
		cursor = res.NextCursor
	}
}

// FetchIndex reads every row of the target database. Rows without a title and
// archived rows are left out.
func FetchIndex(ctx context.Context, q databaseQuerier, databaseID string, schema *Schema) (*Index, error) {
	var records []models.ExistingRecord
	err := scanDatabase(ctx, q, databaseID, func(p notion.Page) {
		if p.Archived {
			return
		}
		title := schema.TitleOf(p)
		if title == "" {
			return
		}
		records = append(records, models.ExistingRecord{
			PageID:     p.ID,
			Title:      title,
			BaseTitle:  BaseTitle(title),
			DueDate:    schema.DueOf(p),
			Categories: schema.CategoryValues(p),
		})
	})
	if err != nil {
		return nil, err
	}
	return NewIndex(records), nil
}
