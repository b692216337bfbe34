package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/pkg/models"
	"dispatchbot/service"
)

func renderStaffOrder(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 ЗАКАЗ #%d — %s\n", o.ID, models.StatusLabel(o.Status))
	fmt.Fprintf(&b, "📍 %s ➡️ %s\n", o.FromCity, o.ToCity)
	fmt.Fprintf(&b, "🚕 %s | 👥 %d", models.TariffLabel(o.Tariff), o.Passengers)
	if o.Price != nil {
		fmt.Fprintf(&b, " | 💰 %.0f ₽", *o.Price)
	}
	fmt.Fprintf(&b, "\n👤 %s, 📞 %s", o.ClientName, o.ClientPhone)
	if o.ScheduledAt != nil && *o.ScheduledAt != "" {
		fmt.Fprintf(&b, "\n🕒 %s", *o.ScheduledAt)
	}
	if o.Comment != "" {
		fmt.Fprintf(&b, "\n💬 %s", o.Comment)
	}
	return b.String()
}

func staffOrderMarkup(o *models.Order) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	id := fmt.Sprint(o.ID)
	var rows []tele.Row

	switch o.Status {
	case models.StatusNew:
		rows = append(rows, menu.Row(
			menu.Data("⏳ В работу", "work", id),
			menu.Data("📢 Водителям", "dispatch", id),
		))
	case models.StatusProcessing:
		rows = append(rows, menu.Row(
			menu.Data("📢 Водителям", "dispatch", id),
			menu.Data("🏁 Завершить", "complete", id),
		))
	}
	if !models.IsTerminalStatus(o.Status) {
		rows = append(rows, menu.Row(
			menu.Data("✏️ Изменить", "edit", id),
			menu.Data("❌ Отменить", "cancel", id),
		))
	}
	rows = append(rows, menu.Row(menu.Data("🧾 История правок", "audit", id)))
	menu.Inline(rows...)
	return menu
}

// errorReply maps engine failures onto calm operator messages: claim and
// transition races are expected, not alarming.
func errorReply(err error) string {
	switch {
	case errors.Is(err, service.ErrAlreadyTaken):
		return "Заказ уже взят другим водителем."
	case errors.Is(err, service.ErrDriverBusy):
		return "Сначала завершите текущий заказ."
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrAlreadyProcessed):
		return "Статус заказа уже изменился. Обновите список."
	case errors.Is(err, service.ErrNotAuthorized):
		return "Недостаточно прав для этого действия."
	case errors.Is(err, service.ErrNotFound):
		return "Заказ не найден."
	case errors.Is(err, service.ErrBadInput):
		return "Некорректное значение. Проверьте формат и попробуйте ещё раз."
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}

// --- order creation wizard -------------------------------------------------

func (b *Bot) handleOrderWizardStart(c tele.Context) error {
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() || !user.CanManageOrders() {
		return c.Send("Недостаточно прав.")
	}
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	session.State = StateOrderFrom
	session.OrderDraft = &service.CreateOrderCommand{}
	return c.Send("📍 Откуда поедет клиент? (город)", tele.RemoveKeyboard)
}

func (b *Bot) handleOrderWizardText(c tele.Context, session *Session) error {
	draft := session.OrderDraft
	text := strings.TrimSpace(c.Text())

	switch session.State {
	case StateOrderFrom:
		if text == "" {
			return c.Send("❌ Укажите город отправления:")
		}
		draft.FromCity = text
		session.State = StateOrderTo
		return c.Send("🏁 Куда? (город)")

	case StateOrderTo:
		if text == "" {
			return c.Send("❌ Укажите город назначения:")
		}
		draft.ToCity = text
		session.State = StateOrderTariff
		menu := &tele.ReplyMarkup{}
		var rows []tele.Row
		for _, t := range models.Tariffs {
			rows = append(rows, menu.Row(menu.Data(models.TariffLabel(t), "tariff", t)))
		}
		menu.Inline(rows...)
		return c.Send("🚕 Выберите тариф:", menu)

	case StateOrderPass:
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			return c.Send("❌ Введите число пассажиров (больше нуля):")
		}
		draft.Passengers = n
		session.State = StateOrderPrice
		return c.Send("💰 Цена поездки в рублях (или «-», если пока неизвестна):")

	case StateOrderPrice:
		if text != "-" {
			f, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
			if err != nil || f < 0 {
				return c.Send("❌ Введите цену числом или «-»:")
			}
			draft.Price = &f
		}
		session.State = StateOrderName
		return c.Send("👤 Имя клиента:")

	case StateOrderName:
		if text == "" {
			return c.Send("❌ Укажите имя клиента:")
		}
		draft.ClientName = text
		session.State = StateOrderPhone
		return c.Send("📞 Телефон клиента:")

	case StateOrderPhone:
		phone, ok := service.NormalizePhone(text)
		if !ok {
			return c.Send("❌ Неверный формат номера. Пример: +79161234567:")
		}
		draft.ClientPhone = phone
		session.State = StateOrderTime
		return c.Send("🕒 Когда подать машину? (текстом, или «-» — сейчас):")

	case StateOrderTime:
		if text != "-" {
			draft.ScheduledAt = &text
		}
		session.State = StateOrderComment
		return c.Send("💬 Комментарий к заказу (или «-»):")

	case StateOrderComment:
		if text != "-" {
			draft.Comment = text
		}
		session.State = StateOrderConfirm
		preview := &models.Order{
			FromCity: draft.FromCity, ToCity: draft.ToCity, Tariff: draft.Tariff,
			Passengers: draft.Passengers, Price: draft.Price, Comment: draft.Comment,
			ScheduledAt: draft.ScheduledAt, ClientName: draft.ClientName,
			ClientPhone: draft.ClientPhone, Status: models.StatusNew,
		}
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(
			menu.Data("✅ Создать", "ordyes", "1"),
			menu.Data("❌ Отмена", "ordno", "1"),
		))
		return c.Send("Проверьте заказ:\n\n"+renderStaffOrder(preview), menu)
	}
	return nil
}

func (b *Bot) handleOrderWizardTariff(c tele.Context) error {
	session := b.Sessions.Get(c.Sender().ID)
	if session == nil || session.State != StateOrderTariff || session.OrderDraft == nil {
		return c.Respond()
	}
	tariff := c.Data()
	if !models.IsValidTariff(tariff) {
		return c.Respond(&tele.CallbackResponse{Text: "Неизвестный тариф"})
	}
	session.OrderDraft.Tariff = tariff
	session.State = StateOrderPass
	c.Respond()
	return c.Send("👥 Сколько пассажиров?")
}

func (b *Bot) handleOrderWizardConfirm(c tele.Context) error {
	session := b.Sessions.Get(c.Sender().ID)
	if session == nil || session.State != StateOrderConfirm || session.OrderDraft == nil {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil {
		return c.Respond()
	}

	order, err := b.Svc.Order().Create(context.Background(), user, *session.OrderDraft)
	b.Sessions.Reset(c.Sender().ID)
	if err != nil {
		c.Respond(&tele.CallbackResponse{Text: "Ошибка", ShowAlert: true})
		return c.Send(errorReply(err))
	}

	c.Respond(&tele.CallbackResponse{Text: "Создан"})
	c.Send(fmt.Sprintf("✅ Заказ #%d создан.", order.ID), staffOrderMarkup(order))
	return b.showMenu(c, user)
}

func (b *Bot) handleOrderWizardAbort(c tele.Context) error {
	b.Sessions.Reset(c.Sender().ID)
	c.Respond()
	c.Send("❌ Создание заказа отменено.")
	if user := b.currentUser(c); user != nil && user.IsApproved() {
		return b.showMenu(c, user)
	}
	return nil
}

// --- order board -----------------------------------------------------------

func (b *Bot) handleOrderBoard(c tele.Context) error {
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() || !user.CanManageOrders() {
		return c.Send("Недостаточно прав.")
	}

	ctx := context.Background()
	var active []*models.Order
	for _, status := range []string{models.StatusNew, models.StatusProcessing, models.StatusDispatched, models.StatusTaken} {
		orders, err := b.Svc.Order().GetByStatus(ctx, status)
		if err != nil {
			return c.Send("❌ Не удалось загрузить заказы.")
		}
		active = append(active, orders...)
	}

	if len(active) == 0 {
		return c.Send("📭 Активных заказов нет.")
	}
	for _, o := range active {
		c.Send(renderStaffOrder(o), staffOrderMarkup(o))
	}
	return nil
}

// --- lifecycle callbacks ---------------------------------------------------

func orderIDFromCallback(c tele.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Data()), 10, 64)
	return id, err == nil && id > 0
}

func (b *Bot) handleTakeIntoWork(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil {
		return c.Respond()
	}

	order, err := b.Svc.Order().TakeIntoWork(context.Background(), orderID, user)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "Взят в работу"})
	return c.Edit(renderStaffOrder(order), staffOrderMarkup(order))
}

func (b *Bot) handleDispatch(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil {
		return c.Respond()
	}

	order, err := b.Svc.Order().Dispatch(context.Background(), orderID, user)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "Разослан водителям"})
	return c.Edit(renderStaffOrder(order), staffOrderMarkup(order))
}

func (b *Bot) handleComplete(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil {
		return c.Respond()
	}

	order, err := b.Svc.Order().Complete(context.Background(), orderID, user)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "Завершён"})
	return c.Edit(fmt.Sprintf("🏁 Заказ #%d завершён. Спасибо!", order.ID))
}

// --- two-phase cancellation ------------------------------------------------

func cancelConfirmMarkup(orderID int64, client, driver bool) *tele.ReplyMarkup {
	check := func(v bool) string {
		if v {
			return "✅"
		}
		return "⬜"
	}
	id := fmt.Sprint(orderID)
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data(check(client)+" Клиенту позвонили", "cnltc", id)),
		menu.Row(menu.Data(check(driver)+" Водителю позвонили", "cnltd", id)),
		menu.Row(
			menu.Data("❌ Отменить заказ", "cnlgo", id),
			menu.Data("↩️ Назад", "cnlno", id),
		),
	)
	return menu
}

func (b *Bot) handleCancelStart(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil || !user.IsApproved() || !user.CanManageOrders() {
		return c.Respond(&tele.CallbackResponse{Text: "Недостаточно прав", ShowAlert: true})
	}

	session := b.Sessions.GetOrCreate(c.Sender().ID)
	session.CancelOrderID = orderID
	session.CancelClient = false
	session.CancelDriver = false

	c.Respond()
	return c.Edit(
		fmt.Sprintf("⚠️ Отмена заказа #%d — действие необратимо.\nОтметьте, кого вы предупредили по телефону:", orderID),
		cancelConfirmMarkup(orderID, false, false),
	)
}

func (b *Bot) handleCancelToggleClient(c tele.Context) error {
	return b.toggleCancelFlag(c, true)
}

func (b *Bot) handleCancelToggleDriver(c tele.Context) error {
	return b.toggleCancelFlag(c, false)
}

func (b *Bot) toggleCancelFlag(c tele.Context, client bool) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	if session.CancelOrderID != orderID {
		session.CancelOrderID = orderID
		session.CancelClient = false
		session.CancelDriver = false
	}
	if client {
		session.CancelClient = !session.CancelClient
	} else {
		session.CancelDriver = !session.CancelDriver
	}
	c.Respond()
	return c.Edit(
		fmt.Sprintf("⚠️ Отмена заказа #%d — действие необратимо.\nОтметьте, кого вы предупредили по телефону:", orderID),
		cancelConfirmMarkup(orderID, session.CancelClient, session.CancelDriver),
	)
}

func (b *Bot) handleCancelExecute(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	user := b.currentUser(c)
	if user == nil {
		return c.Respond()
	}
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	client, driver := session.CancelClient, session.CancelDriver
	if session.CancelOrderID != orderID {
		client, driver = false, false
	}

	order, err := b.Svc.Order().Cancel(context.Background(), orderID, user, client, driver)
	b.Sessions.Reset(c.Sender().ID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: errorReply(err), ShowAlert: true})
	}
	c.Respond(&tele.CallbackResponse{Text: "Отменён"})
	return c.Edit(fmt.Sprintf("❌ Заказ #%d отменён.", order.ID))
}

func (b *Bot) handleCancelAbort(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	b.Sessions.Reset(c.Sender().ID)
	order, err := b.Svc.Order().GetByID(context.Background(), orderID)
	if err != nil {
		return c.Respond()
	}
	c.Respond()
	return c.Edit(renderStaffOrder(order), staffOrderMarkup(order))
}

// --- field editing ---------------------------------------------------------

var editFieldLabels = []struct {
	Field string
	Label string
}{
	{"from_city", "📍 Откуда"},
	{"to_city", "🏁 Куда"},
	{"tariff", "🚕 Тариф"},
	{"passengers", "👥 Пассажиры"},
	{"price", "💰 Цена"},
	{"scheduled_at", "🕒 Время подачи"},
	{"comment", "💬 Комментарий"},
	{"client_name", "👤 Имя клиента"},
	{"client_phone", "📞 Телефон клиента"},
}

func (b *Bot) handleEditStart(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, f := range editFieldLabels {
		rows = append(rows, menu.Row(menu.Data(f.Label, "editf", f.Field, fmt.Sprint(orderID))))
	}
	menu.Inline(rows...)
	c.Respond()
	return c.Edit(fmt.Sprintf("✏️ Заказ #%d — что изменить?", orderID), menu)
}

func (b *Bot) handleEditField(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Respond()
	}
	orderID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Respond()
	}

	session := b.Sessions.GetOrCreate(c.Sender().ID)
	session.State = StateEditValue
	session.EditOrderID = orderID
	session.EditField = args[0]

	c.Respond()
	return c.Send("Введите новое значение:")
}

func (b *Bot) handleEditValue(c tele.Context, session *Session) error {
	user := b.currentUser(c)
	if user == nil {
		return nil
	}
	orderID, field := session.EditOrderID, session.EditField
	b.Sessions.Reset(c.Sender().ID)

	order, err := b.Svc.Order().EditField(context.Background(), orderID, user, field, strings.TrimSpace(c.Text()))
	if err != nil {
		return c.Send("❌ " + errorReply(err))
	}
	return c.Send("✅ Сохранено.\n\n"+renderStaffOrder(order), staffOrderMarkup(order))
}

func (b *Bot) handleAuditTrail(c tele.Context) error {
	orderID, ok := orderIDFromCallback(c)
	if !ok {
		return c.Respond()
	}
	entries, err := b.Svc.Order().AuditTrail(context.Background(), orderID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Ошибка", ShowAlert: true})
	}
	if len(entries) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "Правок не было"})
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 Правки заказа #%d:\n", orderID)
	for _, e := range entries {
		fmt.Fprintf(&sb, "• %s → %q (%s)\n", e.Field, e.NewValue, e.CreatedAt.Format("02.01 15:04"))
	}
	c.Respond()
	return c.Send(sb.String())
}
