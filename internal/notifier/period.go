package notifier

import (
	"fmt"
	"time"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// PreviousWindow returns the last complete period before now in loc:
// yesterday, last Monday-Sunday, or last calendar month. The end is the last
// second of the period, so both bounds are inclusive.
func PreviousWindow(freq models.Frequency, now time.Time, loc *time.Location) (models.Window, error) {
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var start, next time.Time
	switch freq {
	case models.FrequencyDaily:
		start = today.AddDate(0, 0, -1)
		next = today
	case models.FrequencyWeekly:
		sinceMonday := (int(today.Weekday()) + 6) % 7
		next = today.AddDate(0, 0, -sinceMonday)
		start = next.AddDate(0, 0, -7)
	case models.FrequencyMonthly:
		next = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		start = next.AddDate(0, -1, 0)
	default:
		return models.Window{}, fmt.Errorf("unknown frequency %q", freq)
	}

	return models.Window{
		Frequency: freq,
		Start:     start,
		End:       next.Add(-time.Second),
	}, nil
}
