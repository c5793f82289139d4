package model

import "time"

type ScreenStatus string

const (
	ScreenStatusPending   ScreenStatus = "pending"
	ScreenStatusActivated ScreenStatus = "activated"
)

type Screen struct {
	ID          string       `db:"id" json:"id"`
	PairingCode string       `db:"pairing_code" json:"pairingCode"`
	Status      ScreenStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	ExpiresAt   time.Time    `db:"expires_at" json:"expiresAt"`
	ActivatedAt *time.Time   `db:"activated_at" json:"activatedAt,omitempty"`
	LastSeenAt  *time.Time   `db:"last_seen_at" json:"lastSeenAt,omitempty"`
}

type CreateScreenParams struct {
	ID          string
	PairingCode string
	ExpiresAt   time.Time
}

// Expired reports whether the pairing window has elapsed. Activation state is
// not considered: an activated screen stays activated regardless of expiry.
func (s *Screen) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
