package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/pkg/export"
	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)

func renderUserCard(u *models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s — %s, %s\n", u.FullName, models.RoleLabel(u.Role), models.UserStatusLabel(u.Status))
	if u.Phone != "" {
		fmt.Fprintf(&b, "📞 %s\n", u.Phone)
	}
	if u.Username != "" {
		fmt.Fprintf(&b, "✈️ @%s\n", u.Username)
	}
	fmt.Fprintf(&b, "🆔 %d, с %s", u.ID, u.CreatedAt.Format("02.01.2006"))
	return b.String()
}

func userAdminMarkup(u *models.User) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	id := fmt.Sprint(u.ID)
	var rows []tele.Row

	if u.Status == models.UserBanned {
		rows = append(rows, menu.Row(menu.Data("♻️ Разблокировать", "unban", id)))
	} else {
		rows = append(rows, menu.Row(menu.Data("🚫 Заблокировать", "ban", id)))
	}
	rows = append(rows, menu.Row(
		menu.Data("🚕 Водитель", "mkrole", models.RoleDriver, id),
		menu.Data("🎧 Диспетчер", "mkrole", models.RoleDispatcher, id),
	))
	rows = append(rows, menu.Row(menu.Data("🗑 Удалить", "purge", id)))
	menu.Inline(rows...)
	return menu
}

func (b *Bot) requireAdmin(c tele.Context) *models.User {
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() || user.Role != models.RoleAdmin {
		c.Send("Недостаточно прав.")
		return nil
	}
	return user
}

func (b *Bot) handleAdminUsers(c tele.Context) error {
	if b.requireAdmin(c) == nil {
		return nil
	}
	users, err := b.Svc.User().GetAll(context.Background())
	if err != nil {
		return c.Send("❌ Не удалось загрузить пользователей.")
	}
	if len(users) == 0 {
		return c.Send("Пользователей пока нет.")
	}
	for _, u := range users {
		if u.Role == models.RoleAdmin {
			c.Send(renderUserCard(u))
			continue
		}
		c.Send(renderUserCard(u), userAdminMarkup(u))
	}
	return nil
}

func (b *Bot) handleAdminPending(c tele.Context) error {
	if b.requireAdmin(c) == nil {
		return nil
	}
	users, err := b.Svc.User().GetPending(context.Background())
	if err != nil {
		return c.Send("❌ Не удалось загрузить заявки.")
	}
	if len(users) == 0 {
		return c.Send("✅ Новых заявок нет.")
	}
	for _, u := range users {
		menu := &tele.ReplyMarkup{}
		id := fmt.Sprint(u.ID)
		menu.Inline(menu.Row(
			menu.Data("✅ Одобрить", "approve", id),
			menu.Data("❌ Отклонить", "reject", id),
		))
		c.Send(renderUserCard(u), menu)
	}
	return nil
}

// userIDFromCallback reads the target user id from the last payload arg,
// so it works for both "approve|7" and "mkrole|driver|7".
func userIDFromCallback(c tele.Context) (int64, bool) {
	args := c.Args()
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[len(args)-1], 10, 64)
	return id, err == nil && id > 0
}

func (b *Bot) moderateUser(c tele.Context, verb string, apply func(ctx context.Context, actor *models.User, userID int64) error, userNotice string) error {
	userID, ok := userIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	actor := b.currentUser(c)
	if actor == nil {
		return c.Respond()
	}

	ctx := context.Background()
	if err := apply(ctx, actor, userID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: verb})

	target, err := b.Svc.User().GetByID(ctx, userID)
	if err != nil || target == nil {
		return c.Edit(fmt.Sprintf("%s (пользователь #%d)", verb, userID))
	}
	if userNotice != "" {
		if _, err := b.Bot.Send(&tele.User{ID: target.TelegramID}, userNotice); err != nil {
			b.Log.Warning("moderation notice not delivered",
				logger.Int64("user_id", target.ID), logger.Error(err))
		}
	}
	return c.Edit(renderUserCard(target), userAdminMarkup(target))
}

func (b *Bot) handleApprove(c tele.Context) error {
	return b.moderateUser(c, "Одобрен", b.Svc.User().Approve,
		"✅ Ваша заявка одобрена! Нажмите /start, чтобы открыть меню.")
}

func (b *Bot) handleReject(c tele.Context) error {
	return b.moderateUser(c, "Отклонён", b.Svc.User().Reject,
		"❌ К сожалению, ваша заявка отклонена.")
}

func (b *Bot) handleBan(c tele.Context) error {
	return b.moderateUser(c, "Заблокирован", b.Svc.User().Ban,
		"🚫 Ваш доступ к системе заблокирован.")
}

func (b *Bot) handleUnban(c tele.Context) error {
	return b.moderateUser(c, "Разблокирован", b.Svc.User().Unban,
		"♻️ Доступ восстановлен. Нажмите /start.")
}

func (b *Bot) handleSetRole(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Respond()
	}
	role := args[0]
	return b.moderateUser(c, "Роль изменена",
		func(ctx context.Context, actor *models.User, userID int64) error {
			return b.Svc.User().SetRole(ctx, actor, userID, role)
		},
		fmt.Sprintf("ℹ️ Ваша роль изменена: %s.", models.RoleLabel(role)))
}

func (b *Bot) handlePurge(c tele.Context) error {
	userID, ok := userIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	actor := b.currentUser(c)
	if actor == nil {
		return c.Respond()
	}
	if err := b.Svc.User().Purge(context.Background(), actor, userID); err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "Удалён"})
	return c.Edit(fmt.Sprintf("🗑 Пользователь #%d удалён.", userID))
}

// --- statistics and export -------------------------------------------------

func (b *Bot) handleAdminStats(c tele.Context) error {
	if b.requireAdmin(c) == nil {
		return nil
	}
	ctx := context.Background()

	byStatus, err := b.Stg.Order().CountByStatus(ctx)
	if err != nil {
		return c.Send("❌ Не удалось собрать статистику.")
	}
	byTariff, err := b.Stg.Order().CountByTariff(ctx)
	if err != nil {
		return c.Send("❌ Не удалось собрать статистику.")
	}
	byMonth, err := b.Stg.Order().CountByMonth(ctx)
	if err != nil {
		return c.Send("❌ Не удалось собрать статистику.")
	}

	var sb strings.Builder
	sb.WriteString("📊 Заказы по статусам:\n")
	total := 0
	for _, status := range []string{
		models.StatusNew, models.StatusProcessing, models.StatusDispatched,
		models.StatusTaken, models.StatusCompleted, models.StatusCancelled,
	} {
		n := byStatus[status]
		total += n
		fmt.Fprintf(&sb, "• %s: %d\n", models.StatusLabel(status), n)
	}
	fmt.Fprintf(&sb, "Всего: %d\n", total)

	sb.WriteString("\n🚕 По тарифам:\n")
	for _, tariff := range models.Tariffs {
		fmt.Fprintf(&sb, "• %s: %d\n", models.TariffLabel(tariff), byTariff[tariff])
	}

	sb.WriteString("\n📅 По месяцам:\n")
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		fmt.Fprintf(&sb, "• %s: %d\n", m, byMonth[m])
	}
	return c.Send(sb.String())
}

func (b *Bot) handleAdminExport(c tele.Context) error {
	if b.requireAdmin(c) == nil {
		return nil
	}
	c.Send("⏳ Формирую выгрузку...")

	buf, err := export.Workbook(context.Background(), b.Stg)
	if err != nil {
		b.Log.Error("export failed", logger.Error(err))
		return c.Send("❌ Не удалось сформировать выгрузку.")
	}

	doc := &tele.Document{
		File:     tele.FromReader(buf),
		FileName: fmt.Sprintf("dispatch_%s.xlsx", time.Now().Format("2006-01-02")),
	}
	return c.Send(doc)
}
