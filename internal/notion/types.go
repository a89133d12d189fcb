package notion

import (
	"encoding/json"
	"strings"
)

// Property types used by this package.
const (
	TypeTitle       = "title"
	TypeRichText    = "rich_text"
	TypeDate        = "date"
	TypeRelation    = "relation"
	TypeSelect      = "select"
	TypeMultiSelect = "multi_select"
	TypeURL         = "url"
)

type TextLink struct {
	URL string `json:"url"`
}

type TextContent struct {
	Content string    `json:"content"`
	Link    *TextLink `json:"link,omitempty"`
}

// RichText is one rich-text segment. Only the fields this service reads or writes are modelled.
type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
	Href      string       `json:"href,omitempty"`
}

// PlainText joins the plain text of every segment, falling back to text content.
func PlainText(segments []RichText) string {
	var b strings.Builder
	for _, s := range segments {
		switch {
		case s.PlainText != "":
			b.WriteString(s.PlainText)
		case s.Text != nil:
			b.WriteString(s.Text.Content)
		}
	}
	return b.String()
}

type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type RelationRef struct {
	ID string `json:"id"`
}

type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// PropertyValue is a page property value. On reads Type names the populated field;
// on writes Type is left empty and only the populated field is sent.
type PropertyValue struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type,omitempty"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Date        *DateValue     `json:"date,omitempty"`
	Relation    []RelationRef  `json:"relation,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	URL         *string        `json:"url,omitempty"`
}

// Properties maps property names to values.
type Properties map[string]PropertyValue

type Parent struct {
	Type       string `json:"type,omitempty"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
}

type Page struct {
	Object     string     `json:"object"`
	ID         string     `json:"id"`
	Archived   bool       `json:"archived"`
	Parent     Parent     `json:"parent"`
	URL        string     `json:"url,omitempty"`
	Properties Properties `json:"properties"`
}

// Title returns the plain text of the page's title-typed property.
func (p Page) Title() string {
	for _, prop := range p.Properties {
		if prop.Type == TypeTitle {
			return PlainText(prop.Title)
		}
	}
	return ""
}

type OptionsSchema struct {
	Options []SelectOption `json:"options"`
}

type RelationSchema struct {
	DatabaseID string `json:"database_id"`
}

// PropertySchema is a database column definition.
type PropertySchema struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Select      *OptionsSchema  `json:"select,omitempty"`
	MultiSelect *OptionsSchema  `json:"multi_select,omitempty"`
	Relation    *RelationSchema `json:"relation,omitempty"`
}

type Database struct {
	Object     string                    `json:"object"`
	ID         string                    `json:"id"`
	Title      []RichText                `json:"title"`
	Properties map[string]PropertySchema `json:"properties"`
}

// QueryResult is one page of a database query.
type QueryResult struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// SearchResult is one page of a search. Results hold pages and databases,
// so both shapes are decoded into a single loose struct.
type SearchResult struct {
	Results    []SearchObject `json:"results"`
	HasMore    bool           `json:"has_more"`
	NextCursor string         `json:"next_cursor"`
}

type SearchObject struct {
	Object string     `json:"object"`
	ID     string     `json:"id"`
	Title  []RichText `json:"title,omitempty"`
	// Database properties are schemas while page properties are values, so
	// they are kept raw and decoded on demand.
	Properties json.RawMessage `json:"properties,omitempty"`
}

// DisplayTitle returns the database title or the page's title property.
func (o SearchObject) DisplayTitle() string {
	if o.Object == "database" {
		return PlainText(o.Title)
	}
	var props Properties
	if len(o.Properties) == 0 || json.Unmarshal(o.Properties, &props) != nil {
		return ""
	}
	return Page{Properties: props}.Title()
}

type ChildDatabase struct {
	Title string `json:"title"`
}

type Block struct {
	Object        string         `json:"object"`
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	HasChildren   bool           `json:"has_children"`
	ChildDatabase *ChildDatabase `json:"child_database,omitempty"`
}

type BlockChildren struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

type PersonUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BotOwner struct {
	Type string      `json:"type"`
	User *PersonUser `json:"user,omitempty"`
}

type Bot struct {
	Owner         BotOwner `json:"owner"`
	WorkspaceName string   `json:"workspace_name,omitempty"`
}

// User is the response of /v1/users/me. Integrations are bot users owned by a person.
type User struct {
	Object string `json:"object"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Bot    *Bot   `json:"bot,omitempty"`
}

// OwnerID returns the id of the person owning a bot, or the user's own id.
func (u User) OwnerID() string {
	if u.Bot != nil && u.Bot.Owner.User != nil && u.Bot.Owner.User.ID != "" {
		return u.Bot.Owner.User.ID
	}
	return u.ID
}

// PageUpdate is the body of a page patch.
type PageUpdate struct {
	Properties Properties `json:"properties,omitempty"`
	Archived   *bool      `json:"archived,omitempty"`
}
