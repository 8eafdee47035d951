package usage

import "time"

const (
	// DefaultLimit is the number of rewrites allowed per period.
	DefaultLimit = 10
	// Period is the length of a quota window.
	Period = 7 * 24 * time.Hour
)

func defaultUsage(limit int, now time.Time) Usage {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return Usage{
		Limit:    limit,
		Used:     0,
		ResetsAt: now.Add(Period),
	}
}

// rollover starts a new window when the current one has ended.
func rollover(u Usage, now time.Time) (Usage, bool) {
	if now.Before(u.ResetsAt) {
		return u, false
	}
	u.Used = 0
	u.ResetsAt = now.Add(Period)
	return u, true
}
