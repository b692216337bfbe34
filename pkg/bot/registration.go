package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/service"
)

// Registration wizard: FIO → PHONE, then for drivers four document
// photos. A single user insert happens at the very end; abandoning the
// flow persists nothing.

func (b *Bot) handleRegistrationStart(c tele.Context) error {
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	session.State = StateRegRole
	session.Reg = &registrationDraft{}

	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("🚖 Я водитель", "regrole", models.RoleDriver),
		menu.Data("📞 Я диспетчер", "regrole", models.RoleDispatcher),
	))
	return c.Send("👋 Добро пожаловать! Кем вы хотите зарегистрироваться?", menu)
}

func (b *Bot) handleRegRole(c tele.Context) error {
	session := b.Sessions.GetOrCreate(c.Sender().ID)
	if session.Reg == nil {
		session.Reg = &registrationDraft{}
	}
	role := c.Data()
	if role != models.RoleDriver && role != models.RoleDispatcher {
		return c.Respond(&tele.CallbackResponse{Text: "Неизвестная роль"})
	}
	session.Reg.Role = role
	session.State = StateRegFIO
	c.Respond()
	return c.Send("👤 Введите ваши фамилию, имя и отчество:")
}

func validFullName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= 5 && n <= 100
}

func (b *Bot) handleRegistrationText(c tele.Context, session *Session) error {
	switch session.State {
	case StateRegFIO:
		name := strings.TrimSpace(c.Text())
		if !validFullName(name) {
			return c.Send("❌ Укажите полные ФИО (от 5 до 100 символов). Попробуйте ещё раз:")
		}
		session.Reg.FullName = name
		session.State = StateRegPhone
		return c.Send("📞 Введите ваш номер телефона (например, +79161234567):")

	case StateRegPhone:
		phone, ok := service.NormalizePhone(c.Text())
		if !ok {
			return c.Send("❌ Неверный формат номера. Пример: +79161234567. Попробуйте ещё раз:")
		}
		session.Reg.Phone = phone
		if session.Reg.Role == models.RoleDispatcher {
			return b.finishRegistration(c, session)
		}
		session.State = StateRegPTS
		return c.Send("📄 Пришлите фото ПТС автомобиля:")
	}
	return nil
}

func (b *Bot) handleRegistrationPhoto(c tele.Context, session *Session) error {
	photo := c.Message().Photo
	if photo == nil || photo.FileID == "" {
		return c.Send("❌ Нужна фотография. Пришлите фото:")
	}

	switch session.State {
	case StateRegPTS:
		session.Reg.PTSPhotoID = photo.FileID
		session.State = StateRegSTS
		return c.Send("📄 Пришлите фото СТС:")
	case StateRegSTS:
		session.Reg.STSPhotoID = photo.FileID
		session.State = StateRegLicense
		return c.Send("🪪 Пришлите фото водительского удостоверения:")
	case StateRegLicense:
		session.Reg.LicensePhotoID = photo.FileID
		session.State = StateRegCar
		return c.Send("🚗 Пришлите фото автомобиля:")
	case StateRegCar:
		session.Reg.CarPhotoID = photo.FileID
		return b.finishRegistration(c, session)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (b *Bot) finishRegistration(c tele.Context, session *Session) error {
	ctx := context.Background()
	draft := session.Reg

	user, err := b.Svc.User().Register(ctx, &models.User{
		TelegramID:     c.Sender().ID,
		Username:       c.Sender().Username,
		FullName:       draft.FullName,
		Phone:          draft.Phone,
		Role:           draft.Role,
		PTSPhotoID:     optional(draft.PTSPhotoID),
		STSPhotoID:     optional(draft.STSPhotoID),
		LicensePhotoID: optional(draft.LicensePhotoID),
		CarPhotoID:     optional(draft.CarPhotoID),
	})
	if err != nil {
		b.Log.Error("registration failed", logger.Error(err))
		return c.Send("❌ Не удалось сохранить заявку. Попробуйте позже.")
	}

	b.Sessions.Reset(c.Sender().ID)
	c.Send("🎉 Заявка отправлена! Администратор проверит её и откроет доступ.")

	b.notifyAdminsAboutRegistration(ctx, user)
	return nil
}

func (b *Bot) notifyAdminsAboutRegistration(ctx context.Context, user *models.User) {
	admins, err := b.Stg.User().GetApprovedByRoles(ctx, models.RoleAdmin)
	if err != nil {
		b.Log.Error("failed to list admins", logger.Error(err))
		return
	}

	docs := "—"
	if user.Role == models.RoleDriver {
		docs = "ПТС, СТС, ВУ, фото авто приложены"
	}
	text := fmt.Sprintf("🔔 НОВАЯ ЗАЯВКА\n👤 %s\n📞 %s\n🧾 Роль: %s\n📎 %s",
		user.FullName, user.Phone, models.RoleLabel(user.Role), docs)

	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("✅ Одобрить", "approve", fmt.Sprint(user.ID)),
		menu.Data("❌ Отклонить", "reject", fmt.Sprint(user.ID)),
	))

	for _, admin := range admins {
		if _, err := b.Bot.Send(&tele.User{ID: admin.TelegramID}, text, menu); err != nil {
			b.Log.Warning("failed to notify admin about registration",
				logger.Int64("admin_id", admin.TelegramID), logger.Error(err))
		}
	}
}
