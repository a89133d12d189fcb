package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/S1monlol/notionCanvas/internal/models"
)

// ErrMalformedCalendar is returned when a payload is not a readable iCalendar stream.
var ErrMalformedCalendar = errors.New("malformed calendar")

// Parse decodes every VCALENDAR in body and returns its VEVENTs in feed order.
// Events with missing fields are still returned; rejecting them is left to
// the caller so one bad event cannot fail the whole feed.
func Parse(body []byte) ([]models.CalendarEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedCalendar)
	}

	dec := ical.NewDecoder(bytes.NewReader(body))
	var events []models.CalendarEvent
	calendars := 0
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCalendar, err)
		}
		calendars++
		for _, ev := range cal.Events() {
			events = append(events, eventFromComponent(ev))
		}
	}
	if calendars == 0 {
		return nil, fmt.Errorf("%w: no VCALENDAR found", ErrMalformedCalendar)
	}
	if events == nil {
		events = []models.CalendarEvent{}
	}
	return events, nil
}

// eventFromComponent is the only place that reads raw VEVENT properties.
func eventFromComponent(ev ical.Event) models.CalendarEvent {
	out := models.CalendarEvent{
		UID:         propText(ev.Component, ical.PropUID),
		Summary:     propText(ev.Component, ical.PropSummary),
		Description: propText(ev.Component, ical.PropDescription),
		URL:         strings.TrimSpace(propText(ev.Component, ical.PropURL)),
	}
	if ev.Props.Get(ical.PropDateTimeStart) != nil {
		if start, err := ev.DateTimeStart(time.UTC); err == nil {
			out.StartTime = start
		}
	}
	return out
}

func propText(c *ical.Component, name string) string {
	p := c.Props.Get(name)
	if p == nil {
		return ""
	}
	if text, err := p.Text(); err == nil {
		return text
	}
	return p.Value
}
