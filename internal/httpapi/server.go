package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/S1monlol/notionCanvas/internal/notion"
	"github.com/S1monlol/notionCanvas/internal/store"
	"github.com/S1monlol/notionCanvas/internal/syncer"
)

const defaultMaxBodyBytes = 1 << 20

// ServerConfig wires the handler to the page service and calendar fetcher.
type ServerConfig struct {
	NotionBaseURL    string
	NotionAPIVersion string
	NotionMaxRetries int
	// NotionHTTPClient is shared by the per-request clients.
	NotionHTTPClient *http.Client
	Fetcher          syncer.CalendarFetcher
	// OAuth is optional; without it the /auth routes answer 503.
	OAuth        *notion.OAuth
	Schema       syncer.SchemaOptions
	MaxBodyBytes int64
	// SetupPath is where the OAuth callback page sends the browser.
	SetupPath string
}

type Server struct {
	logger *slog.Logger
	store  store.Store
	cfg    ServerConfig
	router *mux.Router

	importSchema   *jsonschema.Schema
	settingsSchema *jsonschema.Schema
}

func NewServer(logger *slog.Logger, st store.Store, cfg ServerConfig) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("calendar fetcher is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.SetupPath == "" {
		cfg.SetupPath = "/setup"
	}
	importSchema, err := compileSchema("import.json", importSchemaJSON)
	if err != nil {
		return nil, err
	}
	settingsSchema, err := compileSchema("settings.json", settingsSchemaJSON)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:         logger,
		store:          st,
		cfg:            cfg,
		importSchema:   importSchema,
		settingsSchema: settingsSchema,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter().StrictSlash(true)
	r.Use(s.withCorrelationID, s.withRequestLog)

	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.handleHealth)
	r.Methods(http.MethodPost).Path("/import").HandlerFunc(s.handleImport)
	r.Methods(http.MethodGet).Path("/settings").HandlerFunc(s.handleGetSettings)
	r.Methods(http.MethodPost).Path("/settings").HandlerFunc(s.handlePostSettings)

	n := r.PathPrefix("/notion").Subrouter()
	n.Methods(http.MethodGet).Path("/databases").HandlerFunc(s.handleListDatabases)
	n.Methods(http.MethodGet).Path("/databases/{databaseId}/properties").HandlerFunc(s.handleDatabaseProperties)
	n.Methods(http.MethodGet).Path("/pages").HandlerFunc(s.handleListPages)
	n.Methods(http.MethodGet).Path("/pages/{pageId}/databases").HandlerFunc(s.handlePageDatabases)

	r.Methods(http.MethodGet).Path("/auth/notion").HandlerFunc(s.handleAuthRedirect)
	r.Methods(http.MethodGet).Path("/auth/notion/callback").HandlerFunc(s.handleAuthCallback)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", "")
	})
	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type correlationKey struct{}

func (s *Server) withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Correlation-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func correlationID(r *http.Request) string {
	id, _ := r.Context().Value(correlationKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Handled request.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"correlation_id", correlationID(r))
	})
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	return s.logger.With("correlation_id", correlationID(r))
}

// bearerToken extracts the credential from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// authenticate resolves the bearer token to a stored user, writing a 401 when
// it cannot.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*store.User, string, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization Bearer token", "")
		return nil, "", false
	}
	user, err := s.store.UserByAccessToken(r.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token", "")
		return nil, "", false
	}
	if err != nil {
		s.requestLogger(r).Error("Failed to look up user.", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Server error", "")
		return nil, "", false
	}
	return user, token, true
}

func (s *Server) notionClient(token string) *notion.Client {
	return notion.NewClient(notion.ClientOptions{
		BaseURL:    s.cfg.NotionBaseURL,
		Token:      token,
		HTTPClient: s.cfg.NotionHTTPClient,
		APIVersion: s.cfg.NotionAPIVersion,
		MaxRetries: s.cfg.NotionMaxRetries,
	})
}

// readBody reads a JSON body and validates it against schema. It writes the
// error response itself and reports false on failure.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", "")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", "")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing JSON body", "")
		return false
	}
	if err := validateBody(schema, body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, errorBody{Error: message, Code: code, Details: details})
}

// statusForKind maps run error kinds to HTTP statuses.
func statusForKind(k syncer.Kind) int {
	switch k {
	case syncer.KindBadRequest:
		return http.StatusBadRequest
	case syncer.KindUnauthorized:
		return http.StatusUnauthorized
	case syncer.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var runErr *syncer.Error
	if !errors.As(err, &runErr) {
		s.requestLogger(r).Error("Unexpected run failure.", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Server error", err.Error())
		return
	}
	s.requestLogger(r).Warn("Run aborted.", "kind", runErr.Kind.String(), "code", runErr.Code, "error", err)
	writeError(w, statusForKind(runErr.Kind), runErr.Code, runErr.Message, runErr.Details)
}

// writeUpstreamError answers a failed pass-through call.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, message string, err error) {
	s.requestLogger(r).Warn(message, "error", err)
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.Status == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
		writeError(w, status, "upstream", message, apiErr.Body)
		return
	}
	writeError(w, http.StatusBadGateway, "upstream", message, err.Error())
}
