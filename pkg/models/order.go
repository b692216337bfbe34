package models

import "time"

// Order statuses. Terminal: completed, cancelled.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusDispatched = "dispatched"
	StatusTaken      = "taken"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Tariff classes (fixed set, no reference table).
const (
	TariffEconomy  = "economy"
	TariffStandard = "standard"
	TariffComfort  = "comfort"
	TariffMinivan  = "minivan"
	TariffBusiness = "business"
)

type Order struct {
	ID           int64      `json:"id"`
	FromCity     string     `json:"from_city"`
	ToCity       string     `json:"to_city"`
	Tariff       string     `json:"tariff"`
	Passengers   int        `json:"passengers"`
	Price        *float64   `json:"price"`
	Comment      string     `json:"comment"`
	ScheduledAt  *string    `json:"scheduled_at"`
	ClientName   string     `json:"client_name"`
	ClientPhone  string     `json:"client_phone"`
	Status       string     `json:"status"`
	DriverID     *int64     `json:"driver_id"`
	DispatcherID *int64     `json:"dispatcher_id"`
	CreatedAt    time.Time  `json:"created_at"`
	TakenAt      *time.Time `json:"taken_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CancelledAt  *time.Time `json:"cancelled_at"`
	CancelledBy  *int64     `json:"cancelled_by"`

	// Operator attestation that the client/driver were called about a
	// cancellation. Recorded verbatim, never set by the system itself.
	ClientInformed bool `json:"client_informed"`
	DriverInformed bool `json:"driver_informed"`
}

var orderTransitions = map[string][]string{
	StatusNew:        {StatusProcessing, StatusDispatched, StatusTaken, StatusCancelled},
	StatusProcessing: {StatusDispatched, StatusCompleted, StatusCancelled},
	StatusDispatched: {StatusTaken, StatusCancelled},
	StatusTaken:      {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an order may move from one status to
// another. Terminal statuses have no outgoing transitions.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

func IsClaimableStatus(status string) bool {
	return status == StatusNew || status == StatusDispatched
}

var Tariffs = []string{TariffEconomy, TariffStandard, TariffComfort, TariffMinivan, TariffBusiness}

func IsValidTariff(tariff string) bool {
	for _, t := range Tariffs {
		if t == tariff {
			return true
		}
	}
	return false
}
