package models

import "time"

const (
	TicketTypeBug     = "bug"
	TicketTypeSupport = "support"
)

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketClosed     = "closed"
)

type SupportTicket struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketMessage struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

var ticketTransitions = map[string][]string{
	TicketOpen:       {TicketInProgress, TicketClosed},
	TicketInProgress: {TicketClosed},
}

func CanTransitionTicket(from, to string) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
