package syncer

import (
	"errors"
	"sort"
	"strings"

	"github.com/S1monlol/notionCanvas/internal/models"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

var (
	ErrMissingTitle   = errors.New("database has no title property")
	ErrMissingDueDate = errors.New("database is missing a due date property")
)

// SchemaOptions names the properties a run prefers. Empty fields fall back to
// the defaults below.
type SchemaOptions struct {
	TitleProperty    string
	CategoryProperty string
	DueDateProperty  string
	LinkProperties   []string
}

const (
	DefaultCategoryProperty = "Class"
	DefaultDueDateProperty  = "Due Date"
)

// DefaultLinkProperties are tried in order when looking for a link column.
var DefaultLinkProperties = []string{"Link", "URL", "link", "url"}

// Schema is the target database layout resolved once per run.
type Schema struct {
	TitleProperty      string
	DueDateProperty    string
	CategoryProperty   string
	CategoryType       string
	CategoryRelationDB string
	// CategoryMissing is set when the database has no category column; values
	// are still sent as rich text under CategoryProperty.
	CategoryMissing bool
	LinkProperty    string
	LinkType        string
}

// ResolveSchema inspects a database definition.
func ResolveSchema(db *notion.Database, opts SchemaOptions) (*Schema, error) {
	if db == nil {
		return nil, errors.New("nil database")
	}
	s := &Schema{}

	s.TitleProperty = resolveTitle(db.Properties, opts.TitleProperty)
	if s.TitleProperty == "" {
		return nil, ErrMissingTitle
	}

	s.DueDateProperty = resolveDueDate(db.Properties, firstNonEmpty(opts.DueDateProperty, DefaultDueDateProperty))
	if s.DueDateProperty == "" {
		return nil, ErrMissingDueDate
	}

	s.CategoryProperty = firstNonEmpty(opts.CategoryProperty, DefaultCategoryProperty)
	if prop, ok := db.Properties[s.CategoryProperty]; ok {
		s.CategoryType = prop.Type
		if prop.Type == notion.TypeRelation && prop.Relation != nil {
			s.CategoryRelationDB = prop.Relation.DatabaseID
		}
	} else {
		s.CategoryType = notion.TypeRichText
		s.CategoryMissing = true
	}

	candidates := opts.LinkProperties
	if len(candidates) == 0 {
		candidates = DefaultLinkProperties
	}
	for _, name := range candidates {
		if prop, ok := db.Properties[name]; ok {
			s.LinkProperty = name
			s.LinkType = prop.Type
			break
		}
	}
	return s, nil
}

func resolveTitle(props map[string]notion.PropertySchema, preferred string) string {
	if preferred != "" {
		if p, ok := props[preferred]; ok && p.Type == notion.TypeTitle {
			return preferred
		}
	}
	for name, p := range props {
		if p.Type == notion.TypeTitle {
			return name
		}
	}
	return ""
}

func resolveDueDate(props map[string]notion.PropertySchema, preferred string) string {
	if p, ok := props[preferred]; ok && p.Type == notion.TypeDate {
		return preferred
	}
	var dates []string
	for name, p := range props {
		if p.Type != notion.TypeDate {
			continue
		}
		if strings.EqualFold(name, "deadline") {
			return name
		}
		dates = append(dates, name)
	}
	if len(dates) == 0 {
		return ""
	}
	sort.Strings(dates)
	return dates[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func textValue(content string) []notion.RichText {
	return []notion.RichText{{Type: "text", Text: &notion.TextContent{Content: content}}}
}

// CategoryValue builds the category property value for the declared column type.
func (s *Schema) CategoryValue(c models.Category) notion.PropertyValue {
	switch s.CategoryType {
	case notion.TypeRelation:
		return notion.PropertyValue{Relation: []notion.RelationRef{{ID: c.ID}}}
	case notion.TypeSelect:
		return notion.PropertyValue{Select: &notion.SelectOption{Name: c.Name}}
	case notion.TypeMultiSelect:
		return notion.PropertyValue{MultiSelect: []notion.SelectOption{{Name: c.Name}}}
	default:
		return notion.PropertyValue{RichText: textValue(c.Name)}
	}
}

// LinkValue builds the link property value, or reports false when the database
// has no link column or there is no link.
func (s *Schema) LinkValue(a models.NormalizedAssignment) (notion.PropertyValue, bool) {
	if s.LinkProperty == "" || a.Link == "" {
		return notion.PropertyValue{}, false
	}
	if s.LinkType == notion.TypeURL {
		link := a.Link
		return notion.PropertyValue{URL: &link}, true
	}
	return notion.PropertyValue{RichText: []notion.RichText{{
		Type: "text",
		Text: &notion.TextContent{Content: a.BaseTitle, Link: &notion.TextLink{URL: a.Link}},
	}}}, true
}

// DueDateProperties is the patch body of a due-date update.
func (s *Schema) DueDateProperties(due string) notion.Properties {
	return notion.Properties{
		s.DueDateProperty: {Date: &notion.DateValue{Start: due}},
	}
}

// CreateProperties is the full property set for a new row.
func (s *Schema) CreateProperties(a models.NormalizedAssignment) notion.Properties {
	props := s.DueDateProperties(a.DueDate)
	props[s.TitleProperty] = notion.PropertyValue{Title: textValue(a.Title)}
	if a.Category != nil {
		props[s.CategoryProperty] = s.CategoryValue(*a.Category)
	}
	if link, ok := s.LinkValue(a); ok {
		props[s.LinkProperty] = link
	}
	return props
}

// TitleOf returns a row's title text.
func (s *Schema) TitleOf(p notion.Page) string {
	if prop, ok := p.Properties[s.TitleProperty]; ok {
		return notion.PlainText(prop.Title)
	}
	return p.Title()
}

// DueOf returns a row's due date in canonical form, or "" when unset.
func (s *Schema) DueOf(p notion.Page) string {
	prop, ok := p.Properties[s.DueDateProperty]
	if !ok || prop.Date == nil {
		return ""
	}
	return CanonicalInstant(prop.Date.Start)
}

// CategoryValues returns the raw category values on a row: relation ids for
// relation columns, option or text names otherwise.
func (s *Schema) CategoryValues(p notion.Page) []string {
	prop, ok := p.Properties[s.CategoryProperty]
	if !ok {
		return nil
	}
	var out []string
	switch prop.Type {
	case notion.TypeRelation:
		for _, r := range prop.Relation {
			out = append(out, r.ID)
		}
	case notion.TypeSelect:
		if prop.Select != nil {
			out = append(out, prop.Select.Name)
		}
	case notion.TypeMultiSelect:
		for _, o := range prop.MultiSelect {
			out = append(out, o.Name)
		}
	case notion.TypeTitle:
		out = append(out, notion.PlainText(prop.Title))
	default:
		if text := notion.PlainText(prop.RichText); text != "" {
			out = append(out, text)
		}
	}
	return out
}
