package bot

import (
	tele "gopkg.in/telebot.v3"

	"dispatchbot/pkg/models"
)

// Menu button labels double as text-handler routes.
const (
	BtnNewOrder   = "➕ Новый заказ"
	BtnOrderBoard = "📋 Заказы"
	BtnMyOrders   = "📦 Мои заказы"
	BtnAvailable  = "🔔 Свободные заказы"
	BtnUsers      = "👥 Пользователи"
	BtnPending    = "🆕 Заявки"
	BtnStats      = "📊 Статистика"
	BtnExport     = "📤 Экспорт"
	BtnTickets    = "📨 Обращения"
	BtnSupport    = "🆘 Поддержка"
	BtnMainMenu   = "🏠 Главное меню"
)

// capabilitiesFor maps a role to its menu, independent of any rendering.
// Unapproved users get nothing regardless of role.
func capabilitiesFor(role, status string) []string {
	if status != models.UserApproved {
		return nil
	}
	switch role {
	case models.RoleDriver:
		return []string{BtnAvailable, BtnMyOrders, BtnSupport}
	case models.RoleDispatcher:
		return []string{BtnNewOrder, BtnOrderBoard, BtnMyOrders, BtnSupport}
	case models.RoleAdmin:
		return []string{
			BtnNewOrder, BtnOrderBoard, BtnAvailable, BtnMyOrders,
			BtnUsers, BtnPending, BtnTickets,
			BtnStats, BtnExport, BtnSupport,
		}
	default:
		return nil
	}
}

func menuFor(role, status string) *tele.ReplyMarkup {
	labels := capabilitiesFor(role, status)
	if len(labels) == 0 {
		return nil
	}
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	var rows []tele.Row
	var current []tele.Btn
	for i, label := range labels {
		current = append(current, menu.Text(label))
		if (i+1)%2 == 0 {
			rows = append(rows, menu.Row(current...))
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, menu.Row(current...))
	}
	menu.Reply(rows...)
	return menu
}
