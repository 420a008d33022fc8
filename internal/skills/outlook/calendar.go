package outlook

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/msgraph"
)

const (
	// graphTime is the zone-less layout Graph uses inside dateTimeTimeZone.
	graphTime = "2006-01-02T15:04:05"

	maxEvents = 100
	// slotMinutes is the availability view granularity for getSchedule.
	slotMinutes = 30
)

type dateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

func utcTime(t time.Time) dateTimeTimeZone {
	return dateTimeTimeZone{DateTime: t.UTC().Format(graphTime), TimeZone: "UTC"}
}

// local renders a UTC dateTimeTimeZone in the local zone.
func (d dateTimeTimeZone) local() string {
	t, err := time.ParseInLocation(graphTime, trimFraction(d.DateTime), time.UTC)
	if err != nil {
		return d.DateTime
	}
	return t.Local().Format("2006-01-02 15:04")
}

// date returns the calendar date as Graph stored it. All-day events are
// pinned to midnight and are never zone-converted.
func (d dateTimeTimeZone) date() string {
	if len(d.DateTime) < len("2006-01-02") {
		return d.DateTime
	}
	return d.DateTime[:len("2006-01-02")]
}

// trimFraction drops the seven-digit fractional seconds Graph appends.
func trimFraction(s string) string {
	if len(s) > len(graphTime) {
		return s[:len(graphTime)]
	}
	return s
}

type location struct {
	DisplayName string `json:"displayName"`
}

type event struct {
	Subject   string           `json:"subject"`
	Start     dateTimeTimeZone `json:"start"`
	End       dateTimeTimeZone `json:"end"`
	IsAllDay  bool             `json:"isAllDay"`
	Location  location         `json:"location"`
	Organizer recipient        `json:"organizer"`
}

func events(ctx context.Context, env *cli.Env, a *args.Args) error {
	days, err := a.Int("days", 7)
	if err != nil {
		return err
	}
	if days <= 0 {
		return cli.Usagef("--days must be positive")
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	now := env.Clock()
	q := url.Values{
		"startDateTime": {now.UTC().Format(time.RFC3339)},
		"endDateTime":   {now.AddDate(0, 0, days).UTC().Format(time.RFC3339)},
		"$orderby":      {"start/dateTime"},
		"$select":       {"subject,start,end,isAllDay,location,organizer"},
		"$top":          {"50"},
	}
	var page msgraph.Page[event]
	var evs []event
	next := "/me/calendarView"
	for next != "" && len(evs) < maxEvents {
		page = msgraph.Page[event]{}
		req := msgraph.Request{
			Method: http.MethodGet,
			Path:   next,
			Query:  q,
			Header: http.Header{"Prefer": {`outlook.timezone="UTC"`}},
		}
		if err := c.Do(ctx, req, &page); err != nil {
			return err
		}
		evs = append(evs, page.Value...)
		next, q = page.NextLink, nil
	}

	res := &format.Result{Columns: []string{"start", "end", "subject", "location", "organizer"}}
	for _, e := range evs {
		start, end := e.Start.local(), e.End.local()
		if e.IsAllDay {
			start, end = e.Start.date(), "all day"
		}
		res.Rows = append(res.Rows, []any{start, end, e.Subject, e.Location.DisplayName, e.Organizer.String()})
	}
	return format.Write(env.Stdout, mode, res)
}

type scheduleRequest struct {
	Schedules                []string         `json:"schedules"`
	StartTime                dateTimeTimeZone `json:"startTime"`
	EndTime                  dateTimeTimeZone `json:"endTime"`
	AvailabilityViewInterval int              `json:"availabilityViewInterval"`
}

type scheduleInfo struct {
	ScheduleID    string `json:"scheduleId"`
	ScheduleItems []struct {
		Status  string           `json:"status"`
		Subject string           `json:"subject"`
		Start   dateTimeTimeZone `json:"start"`
		End     dateTimeTimeZone `json:"end"`
	} `json:"scheduleItems"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func freebusy(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("email"); err != nil {
		return err
	}
	hours, err := a.Int("hours", 8)
	if err != nil {
		return err
	}
	if hours <= 0 {
		return cli.Usagef("--hours must be positive")
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	c, err := tool.Client(ctx, env, a)
	if err != nil {
		return err
	}

	now := env.Clock()
	body := &scheduleRequest{
		Schedules:                a.Positional,
		StartTime:                utcTime(now),
		EndTime:                  utcTime(now.Add(time.Duration(hours) * time.Hour)),
		AvailabilityViewInterval: slotMinutes,
	}
	var out msgraph.Page[scheduleInfo]
	if err := c.Post(ctx, "/me/calendar/getSchedule", body, &out); err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"email", "status", "start", "end", "subject"}}
	for _, s := range out.Value {
		switch {
		case s.Error != nil:
			res.Rows = append(res.Rows, []any{s.ScheduleID, "unknown", "", "", s.Error.Message})
		case len(s.ScheduleItems) == 0:
			res.Rows = append(res.Rows, []any{s.ScheduleID, "free", body.StartTime.local(), body.EndTime.local(), ""})
		default:
			for _, item := range s.ScheduleItems {
				res.Rows = append(res.Rows, []any{s.ScheduleID, item.Status, item.Start.local(), item.End.local(), item.Subject})
			}
		}
	}
	return format.Write(env.Stdout, mode, res)
}
