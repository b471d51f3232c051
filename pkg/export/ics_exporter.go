package export

import (
	"fmt"

	ical "github.com/arran4/golang-ical"
)

// ICSExporter renders a roster as an iCalendar feed so staff can subscribe to their day.
type ICSExporter struct {
	prodID string
}

// NewICSExporter constructs an ICS exporter.
func NewICSExporter() *ICSExporter {
	return &ICSExporter{prodID: "-//salon-scheduler//roster//EN"}
}

func (e *ICSExporter) Format() string      { return "ics" }
func (e *ICSExporter) ContentType() string { return "text/calendar" }

// Render emits one VEVENT per booking, keyed by booking id.
func (e *ICSExporter) Render(roster Roster) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(e.prodID)
	cal.SetName(roster.Title())

	for _, entry := range roster.Entries {
		if entry.BookingID == "" {
			return nil, fmt.Errorf("roster entry without booking id")
		}
		event := cal.AddEvent(entry.BookingID + "@salon-scheduler")
		event.SetDtStampTime(roster.GeneratedAt)
		event.SetStartAt(entry.Start)
		event.SetEndAt(entry.End)
		summary := entry.Service
		if entry.Component != "" {
			summary = fmt.Sprintf("%s (%s)", entry.Service, entry.Component)
		}
		event.SetSummary(summary)
		event.SetDescription(fmt.Sprintf("customer %s, status %s", entry.CustomerID, entry.Status))
		if entry.Status == "tentative" {
			event.SetStatus(ical.ObjectStatusTentative)
		} else {
			event.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return []byte(cal.Serialize()), nil
}
