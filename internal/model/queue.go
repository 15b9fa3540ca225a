package model

// QueueStatus is the answer to a check-in or status call on the
// admission queue. When Queued is false the user is in the active set
// and may attempt booking immediately.
type QueueStatus struct {
	Queued           bool  `json:"queued"`
	Position         int64 `json:"position,omitempty"`
	EstimatedWaitSec int64 `json:"estimated_wait_seconds,omitempty"`
	CurrentUsers     int64 `json:"current_users"`
	Threshold        int64 `json:"threshold"`
}

// PromotedUser identifies one user moved from the waiting queue into
// the active set by a processor tick.
type PromotedUser struct {
	EventID uint64 `json:"event_id"`
	UserID  string `json:"user_id"`
}
