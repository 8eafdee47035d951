package usage

import "time"

// Usage is an identity's rewrite consumption for the current window.
type Usage struct {
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resets_at"`
}

// Remaining never goes below zero, even if the limit was lowered mid-window.
func (u Usage) Remaining() int {
	if r := u.Limit - u.Used; r > 0 {
		return r
	}
	return 0
}
