package domain

import (
	"slices"
)

// SortByDateDesc orders applications newest first. Equal dates keep their
// input order so repeated snapshots do not reshuffle the list.
func SortByDateDesc(apps []JobApplication) {
	slices.SortStableFunc(apps, func(a, b JobApplication) int {
		return b.Date.Compare(a.Date)
	})
}

// Counts is the dashboard summary derived from an application list.
type Counts struct {
	Total      int `json:"total"`
	PendingBot int `json:"pending_bot"`
	Applied    int `json:"applied"`
	NeedsInput int `json:"needs_input"`
	Failed     int `json:"failed"`
}

// Summarize counts applications per status.
func Summarize(apps []JobApplication) Counts {
	c := Counts{Total: len(apps)}
	for _, a := range apps {
		switch a.Status() {
		case StatusPendingBot:
			c.PendingBot++
		case StatusApplied:
			c.Applied++
		case StatusNeedsInput:
			c.NeedsInput++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// FilterByStatus returns the applications with the given status, preserving order.
func FilterByStatus(apps []JobApplication, status Status) []JobApplication {
	out := make([]JobApplication, 0, len(apps))
	for _, a := range apps {
		if a.Status() == status {
			out = append(out, a)
		}
	}
	return out
}
