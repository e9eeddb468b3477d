package models

import "time"

// PushEndpoint is a registered web-push delivery target. Endpoint is the
// unique key; P256dh and Auth are the browser-generated encryption keys.
type PushEndpoint struct {
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
