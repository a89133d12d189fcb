package httpapi

import (
	"html/template"
	"net/http"

	"github.com/S1monlol/notionCanvas/internal/notion"
	"github.com/S1monlol/notionCanvas/internal/store"
)

var callbackPage = template.Must(template.New("callback").Parse(`<html>
  <head>
    <meta http-equiv="refresh" content="0; url='{{.Redirect}}'" />
    <title>Setting up Notion Integration...</title>
  </head>
  <body>
    <script>
      window.localStorage.setItem("notion_oauth_access_token", {{.Token}});
      window.localStorage.setItem("notion_user_id", {{.UserID}});
      window.location.replace({{.Redirect}});
    </script>
    <p>Setting up your Notion integration... If you are not redirected, <a href="{{.Redirect}}">click here</a>.</p>
  </body>
</html>
`))

var errorPage = template.Must(template.New("error").Parse(`<h2>Error: {{.Title}}</h2>{{if .Detail}}<pre>{{.Detail}}</pre>{{end}}
`))

func writeHTMLError(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = errorPage.Execute(w, struct{ Title, Detail string }{title, detail})
}

func (s *Server) handleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OAuth == nil {
		writeError(w, http.StatusServiceUnavailable, "oauth_disabled", "NOTION_CLIENT_ID, NOTION_CLIENT_SECRET or NOTION_REDIRECT_URI not set", "")
		return
	}
	http.Redirect(w, r, s.cfg.OAuth.AuthCodeURL(r.URL.Query().Get("state")), http.StatusFound)
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OAuth == nil {
		writeHTMLError(w, http.StatusServiceUnavailable, "OAuth is not configured", "")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeHTMLError(w, http.StatusBadRequest, "Missing code", "The Notion OAuth callback did not provide a code.")
		return
	}
	logger := s.requestLogger(r)

	grant, err := s.cfg.OAuth.Exchange(r.Context(), code)
	if err != nil {
		logger.Warn("Failed to exchange authorization code.", "error", err)
		writeHTMLError(w, http.StatusBadGateway, "Could not exchange authorization code", err.Error())
		return
	}
	me, err := s.notionClient(grant.AccessToken).Me(r.Context())
	if err != nil {
		logger.Warn("Failed to fetch user info.", "error", err)
		writeHTMLError(w, http.StatusBadGateway, "Could not fetch user information", err.Error())
		return
	}

	user, err := s.store.FindOrCreateUser(r.Context(), identityFromGrant(grant, me))
	if err != nil {
		logger.Error("Failed to store user.", "error", err)
		writeHTMLError(w, http.StatusInternalServerError, "Could not save user data", "")
		return
	}
	logger.Info("Linked workspace.", "user_id", user.ID, "workspace", user.WorkspaceName)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = callbackPage.Execute(w, struct{ Token, UserID, Redirect string }{grant.AccessToken, user.ID, s.cfg.SetupPath})
}

// identityFromGrant keys users by the person who owns the integration, so
// re-authorizing replaces the token instead of creating a second user.
func identityFromGrant(grant *notion.Grant, me *notion.User) store.Identity {
	name := grant.WorkspaceName
	if name == "" {
		name = me.Name
	}
	return store.Identity{
		NotionUserID:  me.OwnerID(),
		AccessToken:   grant.AccessToken,
		WorkspaceID:   grant.WorkspaceID,
		WorkspaceName: name,
	}
}
