package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// ICSExporter renders weekly sessions as an iCalendar feed.
type ICSExporter struct {
	now func() time.Time
}

// NewICSExporter constructs an iCalendar exporter.
func NewICSExporter() *ICSExporter {
	return &ICSExporter{now: time.Now}
}

// ContentType is the MIME type of the rendered output.
func (e *ICSExporter) ContentType() string {
	return "text/calendar"
}

// Render writes one VEVENT per session, repeating weekly when Weeks > 1.
func (e *ICSExporter) Render(name, timezone string, events []Event) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//campus-timetable-api//timetable export//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}
	if timezone != "" {
		cal.SetXWRTimezone(timezone)
	}

	stamp := e.now().UTC()
	for _, evt := range events {
		if !evt.End.After(evt.Start) {
			return nil, fmt.Errorf("event %s ends before it starts", evt.UID)
		}
		vevent := cal.AddEvent(evt.UID)
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(evt.Start)
		vevent.SetEndAt(evt.End)
		vevent.SetSummary(evt.Summary)
		if evt.Location != "" {
			vevent.SetLocation(evt.Location)
		}
		if evt.Description != "" {
			vevent.SetDescription(evt.Description)
		}
		if evt.Weeks > 1 {
			vevent.SetProperty(ics.ComponentPropertyRrule, fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", evt.Weeks))
		}
	}
	return []byte(cal.Serialize()), nil
}
