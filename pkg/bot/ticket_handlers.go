package bot

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/pkg/models"
)

func renderTicket(t *models.SupportTicket, authorName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎫 Обращение #%d — %s\n", t.ID, models.TicketStatusLabel(t.Status))
	fmt.Fprintf(&b, "Тип: %s\n", models.TicketTypeLabel(t.Type))
	if authorName != "" {
		fmt.Fprintf(&b, "Автор: %s\n", authorName)
	}
	fmt.Fprintf(&b, "Создано: %s", t.CreatedAt.Format("02.01.2006 15:04"))
	return b.String()
}

func ticketAdminMarkup(t *models.SupportTicket) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	id := fmt.Sprint(t.ID)
	var row tele.Row
	if t.Status == models.TicketOpen {
		row = append(row, menu.Data("⏳ В работу", "tkwork", id))
	}
	if t.Status != models.TicketClosed {
		row = append(row,
			menu.Data("💬 Ответить", "tkreply", id),
			menu.Data("✅ Закрыть", "tkclose", id),
		)
	}
	menu.Inline(menu.Row(row...))
	return menu
}

// --- authoring a ticket ----------------------------------------------------

func (b *Bot) handleTicketStart(c tele.Context) error {
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() {
		return c.Send("Сначала зарегистрируйтесь: /start")
	}
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("🐞 Сообщить об ошибке", "tkt", models.TicketTypeBug)),
		menu.Row(menu.Data("🆘 Вопрос в поддержку", "tkt", models.TicketTypeSupport)),
	)
	return c.Send("О чём хотите сообщить?", menu)
}

func (b *Bot) handleTicketType(c tele.Context) error {
	ticketType := c.Data()
	if ticketType != models.TicketTypeBug && ticketType != models.TicketTypeSupport {
		return c.Respond()
	}
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	session.State = StateTicketBody
	session.TicketType = ticketType
	c.Respond()
	return c.Send("✍️ Опишите проблему одним сообщением:")
}

func (b *Bot) handleTicketBody(c tele.Context, session *Session) error {
	user := b.currentUser(c)
	if user == nil {
		return nil
	}
	ticketType := session.TicketType
	b.Sessions.Reset(c.Sender().ID)

	ticket, err := b.Svc.Ticket().Open(context.Background(), user, ticketType, strings.TrimSpace(c.Text()))
	if err != nil {
		return c.Send("❌ " + errorReply(err))
	}
	return c.Send(fmt.Sprintf("✅ Обращение #%d принято. Мы ответим здесь же.", ticket.ID))
}

// --- admin side ------------------------------------------------------------

func (b *Bot) handleAdminTickets(c tele.Context) error {
	if b.requireAdmin(c) == nil {
		return nil
	}
	ctx := context.Background()
	tickets, err := b.Svc.Ticket().GetOpen(ctx)
	if err != nil {
		return c.Send("❌ Не удалось загрузить обращения.")
	}
	if len(tickets) == 0 {
		return c.Send("📭 Открытых обращений нет.")
	}
	for _, t := range tickets {
		authorName := ""
		if author, err := b.Svc.User().GetByID(ctx, t.AuthorID); err == nil && author != nil {
			authorName = author.FullName
		}
		text := renderTicket(t, authorName)
		if thread, err := b.Svc.Ticket().Thread(ctx, t.ID); err == nil && len(thread) > 0 {
			text += "\n\n💬 " + thread[0].Body
		}
		c.Send(text, ticketAdminMarkup(t))
	}
	return nil
}

func (b *Bot) handleTicketWork(c tele.Context) error {
	ticketID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	actor := b.currentUser(c)
	if actor == nil {
		return c.Respond()
	}
	ticket, err := b.Svc.Ticket().TakeInProgress(context.Background(), ticketID, actor)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "В работе"})
	return c.Edit(renderTicket(ticket, ""), ticketAdminMarkup(ticket))
}

func (b *Bot) handleTicketReplyStart(c tele.Context) error {
	ticketID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	session.State = StateTicketReply
	session.ReplyTicketID = ticketID
	c.Respond()
	return c.Send(fmt.Sprintf("✍️ Ответ по обращению #%d:", ticketID))
}

func (b *Bot) handleTicketReplyBody(c tele.Context, session *Session) error {
	user := b.currentUser(c)
	if user == nil {
		return nil
	}
	ticketID := session.ReplyTicketID
	b.Sessions.Reset(c.Sender().ID)

	if _, err := b.Svc.Ticket().Reply(context.Background(), ticketID, user, strings.TrimSpace(c.Text())); err != nil {
		return c.Send("❌ " + errorReply(err))
	}
	return c.Send("✅ Ответ отправлен.")
}

func (b *Bot) handleTicketClose(c tele.Context) error {
	ticketID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	actor := b.currentUser(c)
	if actor == nil {
		return c.Respond()
	}
	ticket, err := b.Svc.Ticket().Close(context.Background(), ticketID, actor)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "Закрыто"})
	return c.Edit(renderTicket(ticket, ""))
}
