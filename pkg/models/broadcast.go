package models

import "time"

// BroadcastMessage pairs one fan-out delivery with the transport message
// handle needed to later edit or delete it. Rows are purged on retraction.
type BroadcastMessage struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	ChatID    int64     `json:"chat_id"`
	MessageID int       `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}
