package periods

import "time"

// FiscalYear represents a named fiscal year window.
type FiscalYear struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Disabled  bool
}

// Contains reports whether date falls inside the fiscal year, inclusive.
func (fy FiscalYear) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(fy.StartDate.Truncate(24*time.Hour)) && !d.After(fy.EndDate.Truncate(24*time.Hour))
}
