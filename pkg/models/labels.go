package models

var statusLabels = map[string]string{
	StatusNew:        "🆕 Новый",
	StatusProcessing: "⏳ В обработке",
	StatusDispatched: "📢 Разослан водителям",
	StatusTaken:      "🚖 Взят водителем",
	StatusCompleted:  "🏁 Завершён",
	StatusCancelled:  "❌ Отменён",
}

var tariffLabels = map[string]string{
	TariffEconomy:  "Эконом",
	TariffStandard: "Стандарт",
	TariffComfort:  "Комфорт",
	TariffMinivan:  "Минивэн",
	TariffBusiness: "Бизнес",
}

var roleLabels = map[string]string{
	RoleUser:       "Пользователь",
	RoleDriver:     "Водитель",
	RoleDispatcher: "Диспетчер",
	RoleAdmin:      "Администратор",
}

var userStatusLabels = map[string]string{
	UserPending:  "На проверке",
	UserApproved: "Подтверждён",
	UserBanned:   "Заблокирован",
}

var ticketStatusLabels = map[string]string{
	TicketOpen:       "Открыта",
	TicketInProgress: "В работе",
	TicketClosed:     "Закрыта",
}

var ticketTypeLabels = map[string]string{
	TicketTypeBug:     "🐞 Ошибка",
	TicketTypeSupport: "💬 Вопрос",
}

func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

func TariffLabel(tariff string) string {
	if l, ok := tariffLabels[tariff]; ok {
		return l
	}
	return tariff
}

func RoleLabel(role string) string {
	if l, ok := roleLabels[role]; ok {
		return l
	}
	return role
}

func UserStatusLabel(status string) string {
	if l, ok := userStatusLabels[status]; ok {
		return l
	}
	return status
}

func TicketStatusLabel(status string) string {
	if l, ok := ticketStatusLabels[status]; ok {
		return l
	}
	return status
}

func TicketTypeLabel(t string) string {
	if l, ok := ticketTypeLabels[t]; ok {
		return l
	}
	return t
}
