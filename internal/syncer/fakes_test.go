package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/S1monlol/notionCanvas/internal/notion"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePages is an in-memory stand-in for the page service. Writes are applied
// to the stored rows so a second run sees the first run's results, and dates
// are echoed back with a +00:00 offset the way the real service does.
type fakePages struct {
	databases map[string]*notion.Database
	rows      map[string][]notion.Page
	pageSize  int
	// failQueryPage makes the n-th query call (1-based) for the main database fail.
	failQueryPage int
	dbErr         error
	failCreate    map[string]bool
	failUpdate    map[string]bool

	queryCalls int
	created    []notion.Properties
	updates    []pageUpdateCall
	nextID     int
}

type pageUpdateCall struct {
	PageID string
	Update notion.PageUpdate
}

func newFakePages(db *notion.Database) *fakePages {
	return &fakePages{
		databases:  map[string]*notion.Database{db.ID: db},
		rows:       map[string][]notion.Page{},
		pageSize:   100,
		failCreate: map[string]bool{},
		failUpdate: map[string]bool{},
	}
}

func (f *fakePages) RetrieveDatabase(_ context.Context, databaseID string) (*notion.Database, error) {
	if f.dbErr != nil {
		return nil, f.dbErr
	}
	db, ok := f.databases[databaseID]
	if !ok {
		return nil, &notion.APIError{Status: 404, Code: "object_not_found", Message: "not found", Body: `{"code":"object_not_found"}`}
	}
	return db, nil
}

func (f *fakePages) QueryDatabase(_ context.Context, databaseID, cursor string) (*notion.QueryResult, error) {
	if _, ok := f.databases[databaseID]; !ok {
		return nil, &notion.APIError{Status: 404, Code: "object_not_found", Message: "not found"}
	}
	f.queryCalls++
	if f.failQueryPage > 0 && f.queryCalls == f.failQueryPage {
		return nil, &notion.APIError{Status: 500, Code: "internal_server_error", Message: "boom"}
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", cursor)
		}
		offset = n
	}
	rows := f.rows[databaseID]
	end := offset + f.pageSize
	if end > len(rows) {
		end = len(rows)
	}
	res := &notion.QueryResult{Results: append([]notion.Page(nil), rows[offset:end]...)}
	if end < len(rows) {
		res.HasMore = true
		res.NextCursor = strconv.Itoa(end)
	}
	return res, nil
}

func (f *fakePages) CreatePage(_ context.Context, databaseID string, props notion.Properties) (*notion.Page, error) {
	f.created = append(f.created, props)
	db := f.databases[databaseID]
	title := ""
	for _, v := range props {
		if len(v.Title) > 0 {
			title = notion.PlainText(v.Title)
		}
	}
	if f.failCreate[title] {
		return nil, &notion.APIError{Status: 400, Code: "validation_error", Message: "bad property"}
	}
	f.nextID++
	page := notion.Page{
		Object:     "page",
		ID:         fmt.Sprintf("page-%d", f.nextID),
		Parent:     notion.Parent{Type: "database_id", DatabaseID: databaseID},
		Properties: echo(db, props),
	}
	f.rows[databaseID] = append(f.rows[databaseID], page)
	return &page, nil
}

func (f *fakePages) UpdatePage(_ context.Context, pageID string, update notion.PageUpdate) (*notion.Page, error) {
	f.updates = append(f.updates, pageUpdateCall{PageID: pageID, Update: update})
	if f.failUpdate[pageID] {
		return nil, &notion.APIError{Status: 409, Code: "conflict_error", Message: "conflict"}
	}
	for dbID, rows := range f.rows {
		for i := range rows {
			if rows[i].ID != pageID {
				continue
			}
			for name, v := range echo(f.databases[dbID], update.Properties) {
				rows[i].Properties[name] = v
			}
			if update.Archived != nil {
				rows[i].Archived = *update.Archived
			}
			page := rows[i]
			return &page, nil
		}
	}
	return nil, &notion.APIError{Status: 404, Code: "object_not_found", Message: "no page"}
}

// echo turns write-shaped values into read-shaped ones.
func echo(db *notion.Database, props notion.Properties) notion.Properties {
	out := notion.Properties{}
	for name, v := range props {
		if db != nil {
			v.Type = db.Properties[name].Type
		}
		if v.Date != nil {
			v.Date = &notion.DateValue{Start: strings.Replace(v.Date.Start, "Z", "+00:00", 1)}
		}
		out[name] = v
	}
	return out
}

type fakeFetcher struct {
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

const (
	testDatabaseID = "db-assignments"
	testClassesDB  = "db-classes"
)

func testDatabase(categoryType string) *notion.Database {
	props := map[string]notion.PropertySchema{
		"Name":     {ID: "title", Name: "Name", Type: notion.TypeTitle},
		"Due Date": {ID: "due", Name: "Due Date", Type: notion.TypeDate},
		"Link":     {ID: "link", Name: "Link", Type: notion.TypeRichText},
	}
	if categoryType != "" {
		schema := notion.PropertySchema{ID: "class", Name: "Class", Type: categoryType}
		if categoryType == notion.TypeRelation {
			schema.Relation = &notion.RelationSchema{DatabaseID: testClassesDB}
		}
		props["Class"] = schema
	}
	return &notion.Database{Object: "database", ID: testDatabaseID, Properties: props}
}

func titleProp(text string) notion.PropertyValue {
	return notion.PropertyValue{Type: notion.TypeTitle, Title: []notion.RichText{{Type: "text", PlainText: text}}}
}

func existingRow(id, title, due string, class notion.PropertyValue) notion.Page {
	props := notion.Properties{"Name": titleProp(title)}
	if due != "" {
		props["Due Date"] = notion.PropertyValue{Type: notion.TypeDate, Date: &notion.DateValue{Start: due}}
	}
	if class.Type != "" {
		props["Class"] = class
	}
	return notion.Page{Object: "page", ID: id, Properties: props}
}

func vevent(uid, summary, dtstart string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VEVENT\r\n")
	b.WriteString("UID:" + uid + "\r\n")
	b.WriteString("DTSTAMP:20240220T120000Z\r\n")
	if dtstart != "" {
		b.WriteString("DTSTART:" + dtstart + "\r\n")
	}
	b.WriteString("SUMMARY:" + summary + "\r\n")
	b.WriteString("URL:https://canvas.example/assignments/" + uid + "\r\n")
	b.WriteString("END:VEVENT\r\n")
	return b.String()
}

func feed(events ...string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Test//EN\r\n" + strings.Join(events, "") + "END:VCALENDAR\r\n"
}
