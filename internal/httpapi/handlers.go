package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/S1monlol/notionCanvas/internal/store"
	"github.com/S1monlol/notionCanvas/internal/syncer"
)

type importRequest struct {
	CalendarURL string `json:"calendarUrl"`
	DatabaseID  string `json:"databaseId"`
	DryRun      bool   `json:"dryRun"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	user, token, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req importRequest
	if !s.readBody(w, r, s.importSchema, &req) {
		return
	}

	logger := s.requestLogger(r).With("user_id", user.ID)
	runner, err := syncer.NewSyncer(logger, s.notionClient(token), s.cfg.Fetcher, syncer.Options{
		DryRun: req.DryRun,
		Schema: s.cfg.Schema,
	})
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	report, err := runner.Import(r.Context(), syncer.ImportRequest{
		CalendarURL: req.CalendarURL,
		DatabaseID:  req.DatabaseID,
		Categories:  user.Categories(),
	})
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type settingsData struct {
	CanvasCalendarURL  string   `json:"canvasCalendarUrl"`
	SelectedDatabaseID string   `json:"selectedDatabaseId"`
	Classes            []string `json:"classes"`
}

type settingsResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    settingsData `json:"data"`
}

func settingsFromUser(u *store.User) settingsData {
	classes := u.Classes
	if classes == nil {
		classes = []string{}
	}
	return settingsData{CanvasCalendarURL: u.CalendarURL, SelectedDatabaseID: u.DatabaseID, Classes: classes}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Data: settingsFromUser(user)})
}

// optionalString tells an absent field apart from one sent as null or "".
type optionalString struct {
	set   bool
	value string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.set = true
	if string(data) == "null" {
		o.value = ""
		return nil
	}
	return json.Unmarshal(data, &o.value)
}

func (o optionalString) ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

type settingsRequest struct {
	CanvasCalendarURL  optionalString `json:"canvasCalendarUrl"`
	SelectedDatabaseID optionalString `json:"selectedDatabaseId"`
	Classes            *[]string      `json:"classes"`
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if !s.readBody(w, r, s.settingsSchema, &req) {
		return
	}

	updated, err := s.store.UpdateSettings(r.Context(), user.ID, store.SettingsUpdate{
		CalendarURL: req.CanvasCalendarURL.ptr(),
		DatabaseID:  req.SelectedDatabaseID.ptr(),
		Classes:     req.Classes,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token", "")
		return
	}
	if err != nil {
		s.requestLogger(r).Error("Failed to save settings.", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Server error", "")
		return
	}
	s.requestLogger(r).Info("Saved settings.", "user_id", user.ID, "classes", len(updated.Classes))
	writeJSON(w, http.StatusOK, settingsResponse{
		Success: true,
		Message: "Settings saved successfully",
		Data:    settingsFromUser(updated),
	})
}
