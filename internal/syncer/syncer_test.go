package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/S1monlol/notionCanvas/internal/calendar"
	"github.com/S1monlol/notionCanvas/internal/models"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

func newTestSyncer(t *testing.T, pages PageService, fetcher CalendarFetcher, dryRun bool) *Syncer {
	t.Helper()
	s, err := NewSyncer(testLogger(), pages, fetcher, Options{DryRun: dryRun})
	if err != nil {
		t.Fatalf("new syncer: %v", err)
	}
	return s
}

func importRequest(names ...string) ImportRequest {
	return ImportRequest{
		CalendarURL: "https://canvas.example/feeds/calendars/user_abc.ics",
		DatabaseID:  testDatabaseID,
		Categories:  models.CategoriesFromNames(names),
	}
}

func TestImportCreatesMatchedAssignment(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	fetcher := &fakeFetcher{body: feed(vevent("a1", "Quiz 2 [MATH-201]", "20240301T235900Z"))}

	report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !report.OK || report.CreatedCount != 1 || report.SkippedCount != 0 || report.TotalEvents != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if len(pages.created) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(pages.created))
	}
	props := pages.created[0]
	if got := notion.PlainText(props["Name"].Title); got != "Quiz 2 [MATH-201]" {
		t.Fatalf("unexpected title %q", got)
	}
	if sel := props["Class"].Select; sel == nil || sel.Name != "MATH-201" {
		t.Fatalf("unexpected class value %+v", props["Class"])
	}
	if due := props["Due Date"].Date; due == nil || due.Start != "2024-03-01T23:59:00.000Z" {
		t.Fatalf("unexpected due date %+v", props["Due Date"])
	}
	if link := props["Link"].RichText; len(link) != 1 || link[0].Text.Link == nil || link[0].Text.Content != "Quiz 2" {
		t.Fatalf("unexpected link %+v", props["Link"])
	}
	entry := report.Created[0]
	if entry.Class != "MATH-201" || entry.PageID == "" || entry.DueDate != "2024-03-01T23:59:00.000Z" {
		t.Fatalf("unexpected report entry %+v", entry)
	}
}

func TestImportCategoryValueForEachColumnType(t *testing.T) {
	cases := []struct {
		typ   string
		check func(notion.PropertyValue) bool
	}{
		{notion.TypeMultiSelect, func(v notion.PropertyValue) bool {
			return len(v.MultiSelect) == 1 && v.MultiSelect[0].Name == "MATH-201"
		}},
		{notion.TypeRichText, func(v notion.PropertyValue) bool { return notion.PlainText(v.RichText) == "MATH-201" }},
		{"", func(v notion.PropertyValue) bool { return notion.PlainText(v.RichText) == "MATH-201" }},
		{notion.TypeRelation, func(v notion.PropertyValue) bool {
			return len(v.Relation) == 1 && v.Relation[0].ID == "class-page-1"
		}},
	}
	for _, tc := range cases {
		pages := newFakePages(testDatabase(tc.typ))
		pages.databases[testClassesDB] = &notion.Database{ID: testClassesDB}
		pages.rows[testClassesDB] = []notion.Page{
			{ID: "class-page-0", Properties: notion.Properties{"Name": titleProp("HIST-100")}},
			{ID: "class-page-1", Properties: notion.Properties{"Name": titleProp("MATH-201")}},
		}
		fetcher := &fakeFetcher{body: feed(vevent("a1", "Quiz 2 [MATH-201]", "20240301T235900Z"))}

		report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
		if err != nil {
			t.Fatalf("%q: import failed: %v", tc.typ, err)
		}
		if report.CreatedCount != 1 || len(pages.created) != 1 {
			t.Fatalf("%q: expected one create, got %+v", tc.typ, report)
		}
		if !tc.check(pages.created[0]["Class"]) {
			t.Fatalf("%q: unexpected class value %+v", tc.typ, pages.created[0]["Class"])
		}
	}
}

func TestImportIsIdempotent(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	fetcher := &fakeFetcher{body: feed(
		vevent("a1", "Quiz 2 [MATH-201]", "20240301T235900Z"),
		vevent("a2", "Essay 1 [ENGL-103-H_25/FA]", "20240305T140000Z"),
		vevent("a3", "Club meeting", "20240306T180000Z"),
	)}
	s := newTestSyncer(t, pages, fetcher, false)
	req := importRequest("MATH-201", "ENGL-103")

	first, err := s.Import(context.Background(), req)
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	if first.CreatedCount != 2 || first.SkippedCount != 1 {
		t.Fatalf("unexpected first report %+v", first)
	}

	second, err := s.Import(context.Background(), req)
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if second.CreatedCount != 0 || second.UpdatedCount != 0 || second.SkippedCount != 3 {
		t.Fatalf("expected a no-op second run, got %+v", second)
	}
	if len(pages.created) != 2 || len(pages.updates) != 0 {
		t.Fatalf("unexpected writes: %d creates, %d updates", len(pages.created), len(pages.updates))
	}
	for _, e := range second.Skipped {
		if e.Summary != "Club meeting" && e.Reason != reasonUnchanged {
			t.Fatalf("unexpected skip %+v", e)
		}
	}
}

func TestImportUpdatesChangedDueDate(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	pages.rows[testDatabaseID] = []notion.Page{
		existingRow("page-old", "Quiz 2 [MATH-201]", "2024-02-28T23:59:00.000+00:00", notion.PropertyValue{}),
	}
	fetcher := &fakeFetcher{body: feed(vevent("a1", "Quiz 2 [MATH-201]", "20240301T235900Z"))}

	report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.UpdatedCount != 1 || report.CreatedCount != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(pages.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(pages.updates))
	}
	call := pages.updates[0]
	if call.PageID != "page-old" {
		t.Fatalf("expected update of page-old, got %s", call.PageID)
	}
	if due := call.Update.Properties["Due Date"].Date; due == nil || due.Start != "2024-03-01T23:59:00.000Z" {
		t.Fatalf("unexpected update body %+v", call.Update)
	}
	if len(call.Update.Properties) != 1 || call.Update.Archived != nil {
		t.Fatalf("update should only touch the due date: %+v", call.Update)
	}
}

func TestImportSkipsUnmatchedAndMalformedEvents(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	fetcher := &fakeFetcher{body: feed(
		vevent("a1", "Lecture notes", "20240301T235900Z"),
		vevent("a2", "Quiz 2 [MATH-201]", ""),
	)}

	report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.SkippedCount != 2 || report.CreatedCount != 0 || len(pages.created) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Skipped[0].Reason != reasonUnmatched {
		t.Fatalf("unexpected reason %q", report.Skipped[0].Reason)
	}
	if !strings.HasPrefix(report.Skipped[1].Reason, "Invalid event") {
		t.Fatalf("unexpected reason %q", report.Skipped[1].Reason)
	}
}

func TestImportSkipsDuplicateBaseTitles(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	fetcher := &fakeFetcher{body: feed(
		vevent("a1", "Essay 1 [ENGL-103]", "20240301T235900Z"),
		vevent("a2", "Essay 1 [ENGL-104]", "20240302T235900Z"),
	)}

	report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("ENGL"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.CreatedCount != 1 || report.SkippedCount != 1 || report.Skipped[0].Reason != reasonDuplicate {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestImportRecordsWriteFailuresAndContinues(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	pages.failCreate["Quiz 1 [MATH-201]"] = true
	fetcher := &fakeFetcher{body: feed(
		vevent("a1", "Quiz 1 [MATH-201]", "20240301T235900Z"),
		vevent("a2", "Quiz 2 [MATH-201]", "20240308T235900Z"),
	)}

	report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.CreatedCount != 1 || report.SkippedCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !strings.HasPrefix(report.Skipped[0].Reason, "Failed to create") {
		t.Fatalf("unexpected reason %q", report.Skipped[0].Reason)
	}
	if len(pages.created) != 2 {
		t.Fatalf("expected a single attempt per event, got %d", len(pages.created))
	}
}

func TestImportDryRunIssuesNoWrites(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	pages.rows[testDatabaseID] = []notion.Page{
		existingRow("page-old", "Quiz 2 [MATH-201]", "2024-02-28T23:59:00.000Z", notion.PropertyValue{}),
	}
	fetcher := &fakeFetcher{body: feed(
		vevent("a1", "Quiz 1 [MATH-201]", "20240301T235900Z"),
		vevent("a2", "Quiz 2 [MATH-201]", "20240308T235900Z"),
	)}

	report, err := newTestSyncer(t, pages, fetcher, true).Import(context.Background(), importRequest("MATH-201"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !report.DryRun || report.CreatedCount != 1 || report.UpdatedCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(pages.created) != 0 || len(pages.updates) != 0 {
		t.Fatalf("dry run wrote: %d creates, %d updates", len(pages.created), len(pages.updates))
	}
}

func TestImportFailsWhenALaterIndexPageFails(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	for i := 0; i < 150; i++ {
		pages.rows[testDatabaseID] = append(pages.rows[testDatabaseID],
			existingRow(fmt.Sprintf("p%d", i), fmt.Sprintf("Task %d", i), "2024-01-01T00:00:00.000Z", notion.PropertyValue{}))
	}
	pages.failQueryPage = 2
	fetcher := &fakeFetcher{body: feed(vevent("a1", "Task 120 [MATH-201]", "20240301T235900Z"))}

	_, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
	if err == nil {
		t.Fatalf("expected the run to fail")
	}
	if ErrorKind(err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(pages.created) != 0 {
		t.Fatalf("a truncated index must not lead to creates")
	}
}

func TestImportReadsEveryIndexPage(t *testing.T) {
	pages := newFakePages(testDatabase(notion.TypeSelect))
	pages.pageSize = 2
	for i := 0; i < 5; i++ {
		pages.rows[testDatabaseID] = append(pages.rows[testDatabaseID],
			existingRow(fmt.Sprintf("p%d", i), fmt.Sprintf("Task %d [MATH-201]", i), "2024-03-01T23:59:00.000Z", notion.PropertyValue{}))
	}
	fetcher := &fakeFetcher{body: feed(vevent("a1", "Task 4 [MATH-201]", "20240301T235900Z"))}

	report, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), importRequest("MATH-201"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.SkippedCount != 1 || report.Skipped[0].PageID != "p4" {
		t.Fatalf("expected the last-page row to match, got %+v", report)
	}
	if pages.queryCalls != 3 {
		t.Fatalf("expected 3 query calls, got %d", pages.queryCalls)
	}
}

func TestImportPreconditionErrors(t *testing.T) {
	goodFeed := feed(vevent("a1", "Quiz 2 [MATH-201]", "20240301T235900Z"))
	noDueDate := testDatabase(notion.TypeSelect)
	delete(noDueDate.Properties, "Due Date")

	cases := []struct {
		name    string
		db      *notion.Database
		dbErr   error
		fetcher *fakeFetcher
		req     ImportRequest
		kind    Kind
		code    string
	}{
		{name: "missing fields", req: ImportRequest{DatabaseID: testDatabaseID, Categories: models.CategoriesFromNames([]string{"X"})}, kind: KindBadRequest, code: "missing_fields"},
		{name: "no classes", req: importRequest(), kind: KindBadRequest, code: "no_classes"},
		{name: "blank classes", req: importRequest(" ", ""), kind: KindBadRequest, code: "no_classes"},
		{name: "missing due date", db: noDueDate, req: importRequest("MATH-201"), kind: KindBadRequest, code: "missing_due_date"},
		{name: "bad credential", dbErr: &notion.APIError{Status: 401, Code: "unauthorized", Message: "invalid token"}, req: importRequest("MATH-201"), kind: KindUnauthorized},
		{name: "calendar unreachable", fetcher: &fakeFetcher{err: &calendar.FetchError{Status: 404, Body: "missing"}}, req: importRequest("MATH-201"), kind: KindUpstream, code: "calendar_fetch"},
		{name: "invalid calendar url", fetcher: &fakeFetcher{err: fmt.Errorf("%w: bad scheme", calendar.ErrInvalidURL)}, req: importRequest("MATH-201"), kind: KindBadRequest},
		{name: "unparsable calendar", fetcher: &fakeFetcher{body: "not a calendar"}, req: importRequest("MATH-201"), kind: KindBadRequest, code: "calendar_parse"},
	}
	for _, tc := range cases {
		db := tc.db
		if db == nil {
			db = testDatabase(notion.TypeSelect)
		}
		pages := newFakePages(db)
		pages.dbErr = tc.dbErr
		fetcher := tc.fetcher
		if fetcher == nil {
			fetcher = &fakeFetcher{body: goodFeed}
		}

		_, err := newTestSyncer(t, pages, fetcher, false).Import(context.Background(), tc.req)
		var runErr *Error
		if !errors.As(err, &runErr) {
			t.Fatalf("%s: expected *Error, got %v", tc.name, err)
		}
		if runErr.Kind != tc.kind {
			t.Fatalf("%s: expected kind %s, got %s (%v)", tc.name, tc.kind, runErr.Kind, err)
		}
		if tc.code != "" && runErr.Code != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, runErr.Code)
		}
		if len(pages.created) != 0 || len(pages.updates) != 0 {
			t.Fatalf("%s: precondition failure must not write", tc.name)
		}
	}
}

func TestUpstreamErrorCarriesDetails(t *testing.T) {
	err := upstreamError("database_metadata", "Failed to fetch database metadata",
		fmt.Errorf("wrapped: %w", &notion.APIError{Status: 404, Body: `{"code":"object_not_found"}`}))
	if err.Kind != KindUpstream || err.Details != `{"code":"object_not_found"}` {
		t.Fatalf("unexpected error %+v", err)
	}
	if ErrorKind(errors.New("plain")) != KindInternal {
		t.Fatalf("expected plain errors to be internal")
	}
}

func TestNewSyncerRequiresCollaborators(t *testing.T) {
	if _, err := NewSyncer(testLogger(), nil, &fakeFetcher{}, Options{}); err == nil {
		t.Fatalf("expected error without page service")
	}
	if _, err := NewSyncer(testLogger(), newFakePages(testDatabase("")), nil, Options{}); err == nil {
		t.Fatalf("expected error without fetcher")
	}
}
