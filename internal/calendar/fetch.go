package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxFeedBytes = 16 << 20

// ErrInvalidURL is returned for empty, unparsable, or unsupported feed URLs.
var ErrInvalidURL = errors.New("invalid calendar URL")

// FetchError is a non-2xx reply from the calendar host.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("calendar fetch failed: status=%d", e.Status)
}

// FetcherOptions configures a Fetcher. Username/Password are only used for CalDAV sources.
type FetcherOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	Username   string
	Password   string
}

// Fetcher resolves a calendar URL to raw iCalendar text.
//
// Supported schemes:
//   - http, https: plain ICS subscription feeds
//   - webcal, webcals: fetched over https
//   - caldav+http, caldav+https: a CalDAV calendar collection, merged into one calendar
type Fetcher struct {
	logger    *slog.Logger
	client    *http.Client
	userAgent string
	username  string
	password  string
}

// NewFetcher creates a new Fetcher.
func NewFetcher(logger *slog.Logger, opts FetcherOptions) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "notioncanvas/1.0"
	}
	return &Fetcher{
		logger:    logger,
		client:    client,
		userAgent: userAgent,
		username:  opts.Username,
		password:  opts.Password,
	}
}

// Fetch downloads the calendar behind rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	case "webcal", "webcals":
		u.Scheme = "https"
		return f.fetchHTTP(ctx, u)
	case "caldav+http", "caldav+https":
		u.Scheme = strings.TrimPrefix(strings.ToLower(u.Scheme), "caldav+")
		return f.fetchCalDAV(ctx, u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.Debug("Fetching calendar feed.", "url", RedactURL(u.String()))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read calendar body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	f.logger.Info("Fetched calendar feed.", "url", RedactURL(u.String()), "bytes", len(body))
	return body, nil
}

// RedactURL hides the path and query of a feed URL for logging; LMS feed
// URLs embed a private token.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
