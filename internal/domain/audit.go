package domain

import "time"

// ActorKiosk marks audit rows written by the unauthenticated kiosk front.
const ActorKiosk = "kiosk"

type AuditRecord struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	TargetID  int64     `json:"target_id"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
