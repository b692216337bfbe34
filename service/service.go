package service

import (
	"dispatchbot/pkg/logger"
	"dispatchbot/storage"
)

type IServiceManager interface {
	User() UserService
	Order() OrderService
	Ticket() TicketService
	Broadcast() BroadcastService
}

type service struct {
	userService      UserService
	orderService     OrderService
	ticketService    TicketService
	broadcastService BroadcastService
}

func New(stg storage.IStorage, messenger Messenger, log logger.ILogger) IServiceManager {
	broadcaster := NewBroadcastService(stg, messenger, log)
	return &service{
		userService:      NewUserService(stg, log),
		orderService:     NewOrderService(stg, broadcaster, log),
		ticketService:    NewTicketService(stg, broadcaster, log),
		broadcastService: broadcaster,
	}
}

func (s *service) User() UserService           { return s.userService }
func (s *service) Order() OrderService         { return s.orderService }
func (s *service) Ticket() TicketService       { return s.ticketService }
func (s *service) Broadcast() BroadcastService { return s.broadcastService }
