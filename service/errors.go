package service

import "errors"

// Failure kinds surfaced to acting callers. Delivery failures are not
// here: sends are best-effort, logged and swallowed by the coordinator.
var (
	ErrNotAuthorized     = errors.New("not authorized for this operation")
	ErrInvalidTransition = errors.New("order is not in a state that permits this transition")
	ErrAlreadyProcessed  = errors.New("order was already processed")
	ErrAlreadyTaken      = errors.New("order was already taken by another driver")
	ErrDriverBusy        = errors.New("driver already has an active order")
	ErrNotFound          = errors.New("record not found")
	ErrUserHasOrders     = errors.New("user still owns orders")
	ErrBadInput          = errors.New("invalid input")
)
