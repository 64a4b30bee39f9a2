// Package models defines the persisted record types shared by repositories,
// services and the snapshot bridge. JSON tags double as the snapshot wire
// format, so renaming a field is a snapshot compatibility break.
package models

import "time"

// Payload is a named, immutable bundle of content references addressable by
// an unguessable code. ContentRefs order defines delivery order.
type Payload struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ContentRefs []string  `json:"contentRefs"`
	CreatedAt   time.Time `json:"createdAt"`
}
