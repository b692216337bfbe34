package models

import "time"

// AuditEntry records one successful order field edit.
type AuditEntry struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	ActorID   int64     `json:"actor_id"`
	Field     string    `json:"field"`
	NewValue  string    `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}
