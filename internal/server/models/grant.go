package models

import "time"

// AccessGrant records a requester's first access to a payload. It is keyed by
// (code, requester) and FirstAccessAt is set exactly once per delivery cycle.
type AccessGrant struct {
	Code          string    `json:"code"`
	RequesterID   string    `json:"requesterId"`
	FirstAccessAt time.Time `json:"firstAccessAt"`
}

// ExpiresAt derives the end of the requester's personal retention window.
func (g *AccessGrant) ExpiresAt(retention time.Duration) time.Time {
	return g.FirstAccessAt.Add(retention)
}

// Valid reports whether the grant is still inside its retention window.
func (g *AccessGrant) Valid(now time.Time, retention time.Duration) bool {
	return now.Before(g.ExpiresAt(retention))
}
