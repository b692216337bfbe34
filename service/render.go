package service

import (
	"fmt"
	"strings"

	"dispatchbot/pkg/models"
)

func formatPrice(price *float64) string {
	if price == nil {
		return "не указана"
	}
	return fmt.Sprintf("%.0f ₽", *price)
}

func formatSchedule(scheduled *string) string {
	if scheduled == nil || *scheduled == "" {
		return "сейчас"
	}
	return *scheduled
}

// RenderOrderOffer is the fan-out card: route, tariff, seats, price and
// comment only. Client name and phone stay hidden until a claim.
func RenderOrderOffer(o *models.Order) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 ЗАКАЗ #%d\n", o.ID)
	fmt.Fprintf(&b, "📍 %s ➡️ %s\n", o.FromCity, o.ToCity)
	fmt.Fprintf(&b, "🚕 Тариф: %s\n", models.TariffLabel(o.Tariff))
	fmt.Fprintf(&b, "👥 Пассажиров: %d\n", o.Passengers)
	fmt.Fprintf(&b, "💰 Цена: %s\n", formatPrice(o.Price))
	fmt.Fprintf(&b, "🕒 Подача: %s", formatSchedule(o.ScheduledAt))
	if o.Comment != "" {
		fmt.Fprintf(&b, "\n💬 %s", o.Comment)
	}
	return Message{
		Text:    b.String(),
		Actions: []Action{{Label: "📥 Взять заказ", Token: fmt.Sprintf("claim_%d", o.ID)}},
	}
}

// RenderOrderFull is the post-claim card with the client contact and a
// complete action replacing the claim one.
func RenderOrderFull(o *models.Order) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "🚖 ЗАКАЗ #%d — ваш\n", o.ID)
	fmt.Fprintf(&b, "📍 %s ➡️ %s\n", o.FromCity, o.ToCity)
	fmt.Fprintf(&b, "🚕 Тариф: %s\n", models.TariffLabel(o.Tariff))
	fmt.Fprintf(&b, "👥 Пассажиров: %d\n", o.Passengers)
	fmt.Fprintf(&b, "💰 Цена: %s\n", formatPrice(o.Price))
	fmt.Fprintf(&b, "🕒 Подача: %s\n", formatSchedule(o.ScheduledAt))
	fmt.Fprintf(&b, "👤 Клиент: %s\n", o.ClientName)
	fmt.Fprintf(&b, "📞 Телефон: %s", o.ClientPhone)
	if o.Comment != "" {
		fmt.Fprintf(&b, "\n💬 %s", o.Comment)
	}
	return Message{
		Text:    b.String(),
		Actions: []Action{{Label: "✅ Завершить", Token: fmt.Sprintf("complete_%d", o.ID)}},
	}
}

func renderOrderTakenNotice(o *models.Order, driver *models.User) string {
	return fmt.Sprintf("🚖 Заказ #%d (%s ➡️ %s) взят водителем %s.",
		o.ID, o.FromCity, o.ToCity, driver.FullName)
}

func renderOrderInWorkNotice(o *models.Order, dispatcher *models.User) string {
	return fmt.Sprintf("⏳ Заказ #%d взят в работу диспетчером %s.", o.ID, dispatcher.FullName)
}

func renderOrderCreatedNotice(o *models.Order) string {
	return fmt.Sprintf("🆕 Новый заказ #%d: %s ➡️ %s, %s, %d чел.",
		o.ID, o.FromCity, o.ToCity, models.TariffLabel(o.Tariff), o.Passengers)
}

func renderOrderCompletedNotice(o *models.Order, completer *models.User) string {
	return fmt.Sprintf("🏁 Заказ #%d завершён (%s).", o.ID, completer.FullName)
}

// The dispatcher keeps the client contact for post-trip follow-up.
func renderOrderCompletedForDispatcher(o *models.Order, completer *models.User) string {
	return fmt.Sprintf("🏁 Заказ #%d завершён (%s).\n👤 Клиент: %s, 📞 %s",
		o.ID, completer.FullName, o.ClientName, o.ClientPhone)
}

func renderOrderCancelledNotice(o *models.Order, actor *models.User) string {
	return fmt.Sprintf("❌ Заказ #%d отменён (%s).", o.ID, actor.FullName)
}
