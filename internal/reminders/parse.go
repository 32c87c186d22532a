// Package reminders schedules and delivers stored reminders. A cron job
// wakes every minute, loads due rows, renders each one in the owner's
// persona voice and hands it to the originating channel.
package reminders

import (
	"fmt"
	"strings"
	"time"
)

// maxLead caps how far out a reminder may be scheduled.
const maxLead = 365 * 24 * time.Hour

// Parse reads durations like "30m", "2h", "1d" or combined forms like
// "1h30m" and "1d2h". Units are s, m, h and d; case and surrounding
// whitespace are ignored.
func Parse(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var total time.Duration
	var value int64
	digits := false

	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			value = value*10 + int64(c-'0')
			digits = true
		case c == 's' || c == 'm' || c == 'h' || c == 'd':
			if !digits {
				return 0, fmt.Errorf("missing number before %q in %q", string(c), s)
			}
			switch c {
			case 's':
				total += time.Duration(value) * time.Second
			case 'm':
				total += time.Duration(value) * time.Minute
			case 'h':
				total += time.Duration(value) * time.Hour
			case 'd':
				total += time.Duration(value) * 24 * time.Hour
			}
			value = 0
			digits = false
		default:
			return 0, fmt.Errorf("unrecognized character %q in duration %q", string(c), s)
		}
	}
	if digits {
		return 0, fmt.Errorf("trailing number without a unit in %q", s)
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	if total > maxLead {
		return 0, fmt.Errorf("duration exceeds the one year maximum")
	}
	return total, nil
}

// FormatLead renders a duration the way /reminders displays it:
// "2d", "1h30m", "45m", "30s".
func FormatLead(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	secs := d / time.Second

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if mins > 0 {
		fmt.Fprintf(&b, "%dm", mins)
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", secs)
	}
	return b.String()
}
