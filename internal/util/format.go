package util //nolint:revive // package name util hosts shared formatting helpers for CLI output

import "time"

// FormatLastLogin renders a last-login time relative to now. Zero times render "never";
// anything older than a week renders as a date.
func FormatLastLogin(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return (age.Truncate(time.Minute)).String() + " ago"
	case age < 7*24*time.Hour:
		return (age.Truncate(time.Hour)).String() + " ago"
	default:
		return t.UTC().Format("2006-01-02")
	}
}
