package models

import (
	"fmt"

	"nexops/pkg/domain"
)

// FormatTimeDelta renders a minute count the way operators read it:
// "just now", "45 min", "1 hr 30 min", "2 hr", "1 day", "3 days".
func FormatTimeDelta(minutes int) string {
	if minutes < 1 {
		return "just now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours, mins := minutes/60, minutes%60
	if hours < 24 {
		if mins > 0 {
			return fmt.Sprintf("%d hr %d min", hours, mins)
		}
		return fmt.Sprintf("%d hr", hours)
	}
	days := hours / 24
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// Describe returns a one-line human summary of a.
func Describe(a Anomaly) string {
	delta := ""
	if a.TimeDeltaMinutes != nil {
		delta = " (" + FormatTimeDelta(*a.TimeDeltaMinutes) + ")"
	}
	switch a.Type {
	case domain.TypeShipmentDelayed:
		return a.EntityLabel + " is delayed" + delta
	case domain.TypeDriverOffline:
		return a.EntityLabel + " has been offline" + delta
	case domain.TypeInvoiceOverdue:
		return a.EntityLabel + " is overdue" + delta
	}
	return a.EntityLabel + delta
}
