package contact

import "time"

// Transition moves c to next. Any status may move to any other status; the
// lifecycle is driven by external events, not an enforced graph. Re-sending
// the current status is a no-op and must not reset the stamp.
func Transition(c Contact, next Status, now time.Time) Contact {
	if next == c.Status {
		return c
	}
	c.Status = next
	c.StatusChangedAt = now.Truncate(24 * time.Hour)
	return c
}

// Metrics are derived from stamps on every read, never stored independently.
type Metrics struct {
	DaysAtCurrentStatus  int
	DaysSinceLastContact int
	EverContacted        bool
}

func DeriveMetrics(c Contact, today time.Time) Metrics {
	m := Metrics{
		DaysAtCurrentStatus: daysBetween(c.StatusChangedAt, today),
	}
	if !c.LastContactDate.IsZero() {
		m.EverContacted = true
		m.DaysSinceLastContact = daysBetween(c.LastContactDate, today)
	}
	return m
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() {
		return 0
	}
	days := int(to.Truncate(24*time.Hour).Sub(from.Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ApplyOutreachSent records an outbound message: last contact date is always
// stamped and the contact counter incremented, but the status only advances
// to contacted when the contact was waiting to be reached.
func ApplyOutreachSent(c Contact, now time.Time) Contact {
	if c.Status == StatusNeedToContact {
		c = Transition(c, StatusContacted, now)
	}
	c.LastContactDate = now.Truncate(24 * time.Hour)
	c.ContactCount++
	return c
}

// ApplyMeetingScheduled forces scheduled regardless of prior status.
func ApplyMeetingScheduled(c Contact, when, now time.Time) Contact {
	c = Transition(c, StatusScheduled, now)
	if !when.IsZero() {
		c.NextFollowupDate = when.Truncate(24 * time.Hour)
	}
	return c
}

func ApplyCallLogged(c Contact, now time.Time) Contact {
	c.CallCount++
	return c
}

func ApplyFollowupSent(c Contact, now time.Time) Contact {
	c.LastContactDate = now.Truncate(24 * time.Hour)
	c.FollowupCount++
	return c
}
