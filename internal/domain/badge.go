package domain

import "time"

// BadgeCredential is the value object issued at check-in. It lives only in
// the fields embedded on Visit; regenerating one revokes its predecessor.
type BadgeCredential struct {
	Number     string    `json:"number"`
	Code       string    `json:"code"`
	ValidUntil time.Time `json:"valid_until"`
}
