package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/pkg/models"
	"dispatchbot/service"
)

func driverOfferMarkup(orderID int64) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("✅ Взять заказ", "claim", fmt.Sprint(orderID))))
	return menu
}

func driverActiveMarkup(orderID int64) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("🏁 Завершить", "complete", fmt.Sprint(orderID))))
	return menu
}

func (b *Bot) handleAvailableOrders(c tele.Context) error {
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() || !user.CanDrive() {
		return c.Send("Недостаточно прав.")
	}

	orders, err := b.Svc.Order().GetByStatus(context.Background(), models.StatusDispatched)
	if err != nil {
		return c.Send("❌ Не удалось загрузить заказы.")
	}
	if len(orders) == 0 {
		return c.Send("📭 Свободных заказов сейчас нет.")
	}
	for _, o := range orders {
		msg := service.RenderOrderOffer(o)
		c.Send(msg.Text, driverOfferMarkup(o.ID))
	}
	return nil
}

func (b *Bot) handleClaim(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil {
		return c.Respond()
	}

	order, err := b.Svc.Order().Claim(context.Background(), orderID, user)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}

	c.Respond(&tele.CallbackResponse{Text: "Заказ ваш!"})
	msg := service.RenderOrderFull(order)
	return c.Edit(msg.Text, driverActiveMarkup(order.ID))
}

func (b *Bot) handleMyOrders(c tele.Context) error {
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() {
		return c.Send("Недостаточно прав.")
	}
	ctx := context.Background()

	if user.CanDrive() {
		active, err := b.Svc.Order().GetActiveDriverOrder(ctx, user.ID)
		if err != nil {
			return c.Send("❌ Не удалось загрузить заказы.")
		}
		if active != nil {
			msg := service.RenderOrderFull(active)
			return c.Send(msg.Text, driverActiveMarkup(active.ID))
		}
		if user.Role == models.RoleDriver {
			return c.Send("🚕 У вас нет активного заказа.")
		}
	}

	if user.CanManageOrders() {
		orders, err := b.Svc.Order().GetDispatcherOrders(ctx, user.ID)
		if err != nil {
			return c.Send("❌ Не удалось загрузить заказы.")
		}
		if len(orders) == 0 {
			return c.Send("📭 У вас пока нет заказов.")
		}
		shown := 0
		for _, o := range orders {
			if shown == 10 {
				break
			}
			c.Send(renderStaffOrder(o), staffOrderMarkup(o))
			shown++
		}
	}
	return nil
}
