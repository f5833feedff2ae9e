// Package calendar reads events from a CalDAV server.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"valet/internal/httpkit"
)

// Event is a calendar entry within a queried window.
type Event struct {
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
	Calendar string
}

// Client queries a CalDAV account. Discovery (principal, home set,
// calendar list) runs once on first use; a discovery failure is
// cached and returned to every caller rather than retried per call.
type Client struct {
	endpoint string
	username string
	password string
	logger   *slog.Logger

	once      sync.Once
	cli       *caldav.Client
	calendars []caldav.Calendar
	initErr   error
}

// New creates a lazily initialized CalDAV client.
func New(endpoint, username, password string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		username: username,
		password: password,
		logger:   logger,
	}
}

func (c *Client) init(ctx context.Context) error {
	c.once.Do(func() {
		httpClient := httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
		var web webdav.HTTPClient = httpClient
		if c.username != "" {
			web = webdav.HTTPClientWithBasicAuth(httpClient, c.username, c.password)
		}

		cli, err := caldav.NewClient(web, c.endpoint)
		if err != nil {
			c.initErr = fmt.Errorf("caldav client: %w", err)
			return
		}

		principal, err := cli.FindCurrentUserPrincipal(ctx)
		if err != nil {
			c.initErr = fmt.Errorf("find principal: %w", err)
			return
		}
		homeSet, err := cli.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			c.initErr = fmt.Errorf("find calendar home set: %w", err)
			return
		}
		calendars, err := cli.FindCalendars(ctx, homeSet)
		if err != nil {
			c.initErr = fmt.Errorf("find calendars: %w", err)
			return
		}

		c.cli = cli
		c.calendars = calendars
		c.logger.Info("caldav connected", "endpoint", c.endpoint, "calendars", len(calendars))
	})
	return c.initErr
}

// Events returns all events across the account's calendars that fall
// in [from, to), sorted by start time.
func (c *Client) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from,
				End:   to,
			}},
		},
	}

	var events []Event
	for _, cal := range c.calendars {
		objects, err := c.cli.QueryCalendar(ctx, cal.Path, query)
		if err != nil {
			c.logger.Warn("calendar query failed", "calendar", cal.Name, "error", err)
			continue
		}
		for _, obj := range objects {
			for _, ev := range obj.Data.Events() {
				parsed, ok := parseEvent(ev, cal.Name)
				if ok {
					events = append(events, parsed)
				}
			}
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func parseEvent(ev ical.Event, calendar string) (Event, bool) {
	start, err := ev.DateTimeStart(time.Local)
	if err != nil {
		return Event{}, false
	}
	end, err := ev.DateTimeEnd(time.Local)
	if err != nil {
		end = start
	}

	out := Event{
		Start:    start,
		End:      end,
		Calendar: calendar,
	}
	if p := ev.Props.Get(ical.PropSummary); p != nil {
		out.Summary = p.Value
	}
	if p := ev.Props.Get(ical.PropLocation); p != nil {
		out.Location = p.Value
	}
	return out, true
}
