package httpapi

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/S1monlol/notionCanvas/internal/notion"
)

// The discovery routes are pass-throughs authenticated by the caller's own
// token; no stored user is required.

type namedObject struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Server) passThroughToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header", "")
	}
	return token, ok
}

func (s *Server) searchAll(r *http.Request, client *notion.Client, req notion.SearchRequest) ([]notion.SearchObject, error) {
	var out []notion.SearchObject
	for {
		res, err := client.Search(r.Context(), req)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Results...)
		if !res.HasMore || res.NextCursor == "" {
			return out, nil
		}
		req.StartCursor = res.NextCursor
	}
}

func titled(objects []notion.SearchObject, kind, untitled string) []namedObject {
	out := []namedObject{}
	for _, o := range objects {
		if o.Object != kind {
			continue
		}
		title := o.DisplayTitle()
		if title == "" {
			title = untitled
		}
		out = append(out, namedObject{ID: o.ID, Title: title})
	}
	return out
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	token, ok := s.passThroughToken(w, r)
	if !ok {
		return
	}
	results, err := s.searchAll(r, s.notionClient(token), notion.SearchRequest{
		Filter: &notion.SearchFilter{Property: "object", Value: "database"},
		Sort:   &notion.SearchSort{Direction: "ascending", Timestamp: "last_edited_time"},
	})
	if err != nil {
		s.writeUpstreamError(w, r, "Failed to fetch databases", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": titled(results, "database", "(Untitled)")})
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	token, ok := s.passThroughToken(w, r)
	if !ok {
		return
	}
	results, err := s.searchAll(r, s.notionClient(token), notion.SearchRequest{
		Filter: &notion.SearchFilter{Property: "object", Value: "page"},
	})
	if err != nil {
		s.writeUpstreamError(w, r, "Failed to fetch Notion pages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": titled(results, "page", "(Untitled Page)")})
}

func (s *Server) handlePageDatabases(w http.ResponseWriter, r *http.Request) {
	token, ok := s.passThroughToken(w, r)
	if !ok {
		return
	}
	pageID := mux.Vars(r)["pageId"]
	client := s.notionClient(token)

	dbs := []namedObject{}
	cursor := ""
	for {
		res, err := client.BlockChildren(r.Context(), pageID, cursor)
		if err != nil {
			s.writeUpstreamError(w, r, "Failed to fetch block children", err)
			return
		}
		for _, b := range res.Results {
			if b.Type != "child_database" || b.ChildDatabase == nil {
				continue
			}
			title := b.ChildDatabase.Title
			if title == "" {
				title = "(Untitled DB)"
			}
			dbs = append(dbs, namedObject{ID: b.ID, Title: title})
		}
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": dbs})
}

type propertyInfo struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Type    string                `json:"type"`
	Options []notion.SelectOption `json:"options,omitempty"`
}

func (s *Server) handleDatabaseProperties(w http.ResponseWriter, r *http.Request) {
	token, ok := s.passThroughToken(w, r)
	if !ok {
		return
	}
	db, err := s.notionClient(token).RetrieveDatabase(r.Context(), mux.Vars(r)["databaseId"])
	if err != nil {
		s.writeUpstreamError(w, r, "Failed to fetch database info", err)
		return
	}

	props := make([]propertyInfo, 0, len(db.Properties))
	for name, p := range db.Properties {
		info := propertyInfo{ID: p.ID, Name: name, Type: p.Type}
		switch {
		case p.Type == notion.TypeSelect && p.Select != nil:
			info.Options = p.Select.Options
		case p.Type == notion.TypeMultiSelect && p.MultiSelect != nil:
			info.Options = p.MultiSelect.Options
		}
		props = append(props, info)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}
