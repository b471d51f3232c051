package export

import (
	"fmt"
	"time"
)

// RosterEntry is one booking line on a resource-day roster.
type RosterEntry struct {
	BookingID  string
	CustomerID string
	Service    string
	Component  string
	Status     string
	Start      time.Time
	End        time.Time
}

// Roster is the printable calendar of a single resource on a single date.
type Roster struct {
	ResourceID   string
	ResourceName string
	Date         string
	Entries      []RosterEntry
	GeneratedAt  time.Time
}

// Title is the human readable heading for the roster.
func (r Roster) Title() string {
	name := r.ResourceName
	if name == "" {
		name = r.ResourceID
	}
	return fmt.Sprintf("%s - %s", name, r.Date)
}

// FileName is the flat file name used when the roster is stored for download.
func (r Roster) FileName(ext string) string {
	return fmt.Sprintf("%s_%s_%d.%s", r.ResourceID, r.Date, r.GeneratedAt.Unix(), ext)
}

// Exporter renders a roster into one output format.
type Exporter interface {
	Format() string
	ContentType() string
	Render(Roster) ([]byte, error)
}

var rosterHeaders = []string{"Start", "End", "Service", "Customer", "Status", "Booking"}

func rosterRow(e RosterEntry) []string {
	service := e.Service
	if e.Component != "" {
		service = fmt.Sprintf("%s (%s)", e.Service, e.Component)
	}
	return []string{
		e.Start.Format("15:04"),
		e.End.Format("15:04"),
		service,
		e.CustomerID,
		e.Status,
		e.BookingID,
	}
}
