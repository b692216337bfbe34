package service

import (
	"context"
	"fmt"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// TicketService runs the support workflow: a smaller state machine that
// shares the engine's conditional-update discipline.
type TicketService interface {
	Open(ctx context.Context, author *models.User, ticketType, body string) (*models.SupportTicket, error)
	TakeInProgress(ctx context.Context, ticketID int64, actor *models.User) (*models.SupportTicket, error)
	Reply(ctx context.Context, ticketID int64, sender *models.User, body string) (*models.TicketMessage, error)
	Close(ctx context.Context, ticketID int64, actor *models.User) (*models.SupportTicket, error)

	GetByID(ctx context.Context, id int64) (*models.SupportTicket, error)
	GetByAuthor(ctx context.Context, authorID int64) ([]*models.SupportTicket, error)
	GetOpen(ctx context.Context) ([]*models.SupportTicket, error)
	Thread(ctx context.Context, ticketID int64) ([]*models.TicketMessage, error)
}

type ticketService struct {
	stg         storage.IStorage
	broadcaster BroadcastService
	log         logger.ILogger
}

func NewTicketService(stg storage.IStorage, broadcaster BroadcastService, log logger.ILogger) TicketService {
	return &ticketService{stg: stg, broadcaster: broadcaster, log: log}
}

func (s *ticketService) Open(ctx context.Context, author *models.User, ticketType, body string) (*models.SupportTicket, error) {
	if author == nil {
		return nil, ErrNotAuthorized
	}
	if ticketType != models.TicketTypeBug && ticketType != models.TicketTypeSupport {
		return nil, fmt.Errorf("%w: unknown ticket type %q", ErrBadInput, ticketType)
	}
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", ErrBadInput)
	}

	ticket, err := s.stg.Ticket().Create(ctx, &models.SupportTicket{
		AuthorID: author.ID,
		Type:     ticketType,
		Status:   models.TicketOpen,
	})
	if err != nil {
		return nil, err
	}
	if err := s.stg.Ticket().AddMessage(ctx, &models.TicketMessage{
		TicketID: ticket.ID,
		SenderID: author.ID,
		Body:     body,
	}); err != nil {
		return nil, err
	}

	s.log.Info("ticket opened", logger.Int64("ticket_id", ticket.ID), logger.Int64("author_id", author.ID))
	s.notifyAdmins(ctx,
		fmt.Sprintf("📨 Обращение #%d (%s) от %s:\n%s",
			ticket.ID, models.TicketTypeLabel(ticketType), author.FullName, body),
		author.ID)
	return ticket, nil
}

func (s *ticketService) TakeInProgress(ctx context.Context, ticketID int64, actor *models.User) (*models.SupportTicket, error) {
	if actor == nil || !actor.IsApproved() || actor.Role != models.RoleAdmin {
		return nil, ErrNotAuthorized
	}
	ok, err := s.stg.Ticket().UpdateStatus(ctx, ticketID, models.TicketOpen, models.TicketInProgress)
	if err != nil {
		return nil, err
	}
	if !ok {
		ticket, err := s.stg.Ticket().GetByID(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if ticket == nil {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}
	return s.stg.Ticket().GetByID(ctx, ticketID)
}

func (s *ticketService) Reply(ctx context.Context, ticketID int64, sender *models.User, body string) (*models.TicketMessage, error) {
	if sender == nil {
		return nil, ErrNotAuthorized
	}
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", ErrBadInput)
	}
	ticket, err := s.stg.Ticket().GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ErrNotFound
	}
	if ticket.Status == models.TicketClosed {
		return nil, ErrInvalidTransition
	}
	if ticket.AuthorID != sender.ID && sender.Role != models.RoleAdmin {
		return nil, ErrNotAuthorized
	}

	msg := &models.TicketMessage{TicketID: ticketID, SenderID: sender.ID, Body: body}
	if err := s.stg.Ticket().AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Route the reply to the other side of the conversation.
	if sender.ID == ticket.AuthorID {
		s.notifyAdmins(ctx,
			fmt.Sprintf("📨 Ответ в обращении #%d от %s:\n%s", ticketID, sender.FullName, body),
			sender.ID)
	} else if author, err := s.stg.User().GetByID(ctx, ticket.AuthorID); err == nil && author != nil {
		s.broadcaster.NotifyChat(ctx, author.TelegramID,
			fmt.Sprintf("📨 Ответ поддержки по обращению #%d:\n%s", ticketID, body))
	}
	return msg, nil
}

func (s *ticketService) Close(ctx context.Context, ticketID int64, actor *models.User) (*models.SupportTicket, error) {
	if actor == nil || !actor.IsApproved() || actor.Role != models.RoleAdmin {
		return nil, ErrNotAuthorized
	}
	ticket, err := s.stg.Ticket().GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ErrNotFound
	}
	if !models.CanTransitionTicket(ticket.Status, models.TicketClosed) {
		return nil, ErrInvalidTransition
	}
	ok, err := s.stg.Ticket().UpdateStatus(ctx, ticketID, ticket.Status, models.TicketClosed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	if author, err := s.stg.User().GetByID(ctx, ticket.AuthorID); err == nil && author != nil {
		s.broadcaster.NotifyChat(ctx, author.TelegramID,
			fmt.Sprintf("✅ Обращение #%d закрыто.", ticketID))
	}
	return s.stg.Ticket().GetByID(ctx, ticketID)
}

func (s *ticketService) notifyAdmins(ctx context.Context, text string, exceptUserID int64) {
	admins, err := s.stg.User().GetApprovedByRoles(ctx, models.RoleAdmin)
	if err != nil {
		s.log.Error("failed to list admins for ticket notification", logger.Error(err))
		return
	}
	for _, a := range admins {
		if a.ID == exceptUserID {
			continue
		}
		s.broadcaster.NotifyChat(ctx, a.TelegramID, text)
	}
}

func (s *ticketService) GetByID(ctx context.Context, id int64) (*models.SupportTicket, error) {
	ticket, err := s.stg.Ticket().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ErrNotFound
	}
	return ticket, nil
}

func (s *ticketService) GetByAuthor(ctx context.Context, authorID int64) ([]*models.SupportTicket, error) {
	return s.stg.Ticket().GetByAuthor(ctx, authorID)
}

func (s *ticketService) GetOpen(ctx context.Context) ([]*models.SupportTicket, error) {
	return s.stg.Ticket().GetOpen(ctx)
}

func (s *ticketService) Thread(ctx context.Context, ticketID int64) ([]*models.TicketMessage, error) {
	return s.stg.Ticket().GetMessages(ctx, ticketID)
}
