package service

import (
	"context"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// BroadcastService maintains the invariant that no stale claim offer
// stays visible once an order leaves the claimable set. It owns the
// broadcast_messages rows; nothing else reads them.
type BroadcastService interface {
	FanOut(ctx context.Context, order *models.Order, recipients []*models.User) int
	RetractOthers(ctx context.Context, orderID, exceptChatID int64)
	RetractAll(ctx context.Context, orderID int64)
	RewriteWinner(ctx context.Context, orderID, chatID int64, msg Message)
	NotifyStaff(ctx context.Context, text string, exceptUserID int64)
	NotifyChat(ctx context.Context, chatID int64, text string)
}

type broadcastService struct {
	stg       storage.IStorage
	messenger Messenger
	log       logger.ILogger
}

func NewBroadcastService(stg storage.IStorage, messenger Messenger, log logger.ILogger) BroadcastService {
	return &broadcastService{stg: stg, messenger: messenger, log: log}
}

// FanOut delivers the claimable card to each recipient and records one
// bookkeeping row per delivery. Every send is independently best-effort:
// one blocked recipient never aborts the rest. Returns the delivered count.
func (s *broadcastService) FanOut(ctx context.Context, order *models.Order, recipients []*models.User) int {
	msg := RenderOrderOffer(order)
	sent := 0
	for _, u := range recipients {
		messageID, err := s.messenger.Send(ctx, u.TelegramID, msg)
		if err != nil {
			s.log.Warning("fan-out delivery failed",
				logger.Int64("order_id", order.ID),
				logger.Int64("chat_id", u.TelegramID),
				logger.Error(err))
			continue
		}
		err = s.stg.Broadcast().Create(ctx, &models.BroadcastMessage{
			OrderID:   order.ID,
			ChatID:    u.TelegramID,
			MessageID: messageID,
		})
		if err != nil {
			s.log.Error("failed to record fan-out delivery",
				logger.Int64("order_id", order.ID),
				logger.Int64("chat_id", u.TelegramID),
				logger.Error(err))
			continue
		}
		sent++
	}
	s.log.Info("order fan-out finished",
		logger.Int64("order_id", order.ID),
		logger.Int("recipients", len(recipients)),
		logger.Int("delivered", sent))
	return sent
}

func (s *broadcastService) RetractOthers(ctx context.Context, orderID, exceptChatID int64) {
	msgs, err := s.stg.Broadcast().GetByOrder(ctx, orderID)
	if err != nil {
		s.log.Error("failed to list broadcast messages for retraction",
			logger.Int64("order_id", orderID), logger.Error(err))
		return
	}
	for _, m := range msgs {
		if m.ChatID == exceptChatID {
			continue
		}
		// The message may already be gone or the recipient unreachable;
		// either way the offer is no longer visible, so keep going.
		if err := s.messenger.Delete(ctx, m.ChatID, m.MessageID); err != nil {
			s.log.Warning("failed to delete broadcast message",
				logger.Int64("order_id", orderID),
				logger.Int64("chat_id", m.ChatID),
				logger.Error(err))
		}
		if err := s.stg.Broadcast().Delete(ctx, m.ID); err != nil {
			s.log.Error("failed to purge broadcast row",
				logger.Int64("order_id", orderID), logger.Error(err))
		}
	}
}

func (s *broadcastService) RetractAll(ctx context.Context, orderID int64) {
	s.RetractOthers(ctx, orderID, 0)
}

// RewriteWinner edits the winner's own offer in place to reveal full
// details. When the claim came straight from a NEW order and no offer was
// ever sent, a fresh message is sent instead.
func (s *broadcastService) RewriteWinner(ctx context.Context, orderID, chatID int64, msg Message) {
	row, err := s.stg.Broadcast().GetByOrderAndChat(ctx, orderID, chatID)
	if err != nil {
		s.log.Error("failed to look up winner broadcast row",
			logger.Int64("order_id", orderID), logger.Error(err))
		return
	}
	if row == nil {
		if _, err := s.messenger.Send(ctx, chatID, msg); err != nil {
			s.log.Warning("failed to send winner message",
				logger.Int64("order_id", orderID), logger.Error(err))
		}
		return
	}
	if err := s.messenger.Edit(ctx, chatID, row.MessageID, msg); err != nil {
		s.log.Warning("failed to rewrite winner message",
			logger.Int64("order_id", orderID), logger.Error(err))
	}
	if err := s.stg.Broadcast().Delete(ctx, row.ID); err != nil {
		s.log.Error("failed to purge winner broadcast row",
			logger.Int64("order_id", orderID), logger.Error(err))
	}
}

// NotifyStaff sends a plain notice to every approved dispatcher and admin
// except the acting user.
func (s *broadcastService) NotifyStaff(ctx context.Context, text string, exceptUserID int64) {
	staff, err := s.stg.User().GetApprovedByRoles(ctx, models.RoleDispatcher, models.RoleAdmin)
	if err != nil {
		s.log.Error("failed to list staff for notification", logger.Error(err))
		return
	}
	for _, u := range staff {
		if u.ID == exceptUserID {
			continue
		}
		if _, err := s.messenger.Send(ctx, u.TelegramID, Message{Text: text}); err != nil {
			s.log.Warning("staff notification failed",
				logger.Int64("chat_id", u.TelegramID), logger.Error(err))
		}
	}
}

func (s *broadcastService) NotifyChat(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if _, err := s.messenger.Send(ctx, chatID, Message{Text: text}); err != nil {
		s.log.Warning("notification failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}
