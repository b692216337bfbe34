package bot

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/config"
	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/service"
	"dispatchbot/storage"
)

type Bot struct {
	Bot      *tele.Bot
	Cfg      *config.Config
	Log      logger.ILogger
	Stg      storage.IStorage
	Svc      service.IServiceManager
	Sessions *SessionStore
}

func New(cfg *config.Config, stg storage.IStorage, log logger.ILogger) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		Bot:      b,
		Cfg:      cfg,
		Log:      log,
		Stg:      stg,
		Svc:      service.New(stg, NewMessenger(b), log),
		Sessions: NewSessionStore(),
	}
	bot.registerHandlers()
	return bot, nil
}

func (b *Bot) Start() {
	b.Log.Info("🤖 Dispatch bot started...")
	b.Bot.Start()
}

func (b *Bot) Stop() {
	b.Bot.Stop()
}

func (b *Bot) registerHandlers() {
	b.Bot.Handle("/start", b.handleStart)
	b.Bot.Handle("/cancel", b.handleCancelFlow)

	b.Bot.Handle(BtnMainMenu, b.handleStart)
	b.Bot.Handle(BtnNewOrder, b.handleOrderWizardStart)
	b.Bot.Handle(BtnOrderBoard, b.handleOrderBoard)
	b.Bot.Handle(BtnAvailable, b.handleAvailableOrders)
	b.Bot.Handle(BtnMyOrders, b.handleMyOrders)
	b.Bot.Handle(BtnUsers, b.handleAdminUsers)
	b.Bot.Handle(BtnPending, b.handleAdminPending)
	b.Bot.Handle(BtnStats, b.handleAdminStats)
	b.Bot.Handle(BtnExport, b.handleAdminExport)
	b.Bot.Handle(BtnTickets, b.handleAdminTickets)
	b.Bot.Handle(BtnSupport, b.handleTicketStart)

	// Registration
	b.Bot.Handle(btn("regrole"), b.handleRegRole)

	// Order lifecycle
	b.Bot.Handle(btn("work"), b.handleTakeIntoWork)
	b.Bot.Handle(btn("dispatch"), b.handleDispatch)
	b.Bot.Handle(btn("claim"), b.handleClaim)
	b.Bot.Handle(btn("complete"), b.handleComplete)
	b.Bot.Handle(btn("cancel"), b.handleCancelStart)
	b.Bot.Handle(btn("cnltc"), b.handleCancelToggleClient)
	b.Bot.Handle(btn("cnltd"), b.handleCancelToggleDriver)
	b.Bot.Handle(btn("cnlgo"), b.handleCancelExecute)
	b.Bot.Handle(btn("cnlno"), b.handleCancelAbort)
	b.Bot.Handle(btn("edit"), b.handleEditStart)
	b.Bot.Handle(btn("editf"), b.handleEditField)
	b.Bot.Handle(btn("audit"), b.handleAuditTrail)

	// Order wizard inline steps
	b.Bot.Handle(btn("tariff"), b.handleOrderWizardTariff)
	b.Bot.Handle(btn("ordyes"), b.handleOrderWizardConfirm)
	b.Bot.Handle(btn("ordno"), b.handleOrderWizardAbort)

	// User administration
	b.Bot.Handle(btn("approve"), b.handleApprove)
	b.Bot.Handle(btn("reject"), b.handleReject)
	b.Bot.Handle(btn("ban"), b.handleBan)
	b.Bot.Handle(btn("unban"), b.handleUnban)
	b.Bot.Handle(btn("mkrole"), b.handleSetRole)
	b.Bot.Handle(btn("purge"), b.handlePurge)

	// Tickets
	b.Bot.Handle(btn("tkt"), b.handleTicketType)
	b.Bot.Handle(btn("tkwork"), b.handleTicketWork)
	b.Bot.Handle(btn("tkreply"), b.handleTicketReplyStart)
	b.Bot.Handle(btn("tkclose"), b.handleTicketClose)

	b.Bot.Handle(tele.OnText, b.handleText)
	b.Bot.Handle(tele.OnPhoto, b.handlePhoto)
}

func btn(unique string) *tele.Btn {
	return &tele.Btn{Unique: unique}
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	// Bootstrap admin is created approved on first contact.
	isBootstrap := (b.Cfg.AdminID != 0 && sender.ID == b.Cfg.AdminID) ||
		(b.Cfg.AdminUsername != "" && sender.Username == b.Cfg.AdminUsername)
	if isBootstrap {
		fullName := fmt.Sprintf("%s %s", sender.FirstName, sender.LastName)
		if _, err := b.Svc.User().EnsureBootstrapAdmin(ctx, sender.ID, sender.Username, fullName); err != nil {
			b.Log.Error("bootstrap admin failed", logger.Error(err))
		}
	}

	b.Sessions.Reset(sender.ID)

	user, err := b.Svc.User().Identify(ctx, sender.ID)
	if err != nil {
		return c.Send("❌ Ошибка. Попробуйте позже.")
	}

	if user == nil {
		return b.handleRegistrationStart(c)
	}

	switch user.Status {
	case models.UserBanned:
		return c.Send("🚫 Ваш аккаунт заблокирован.")
	case models.UserPending:
		return c.Send("⏳ Ваша заявка на проверке у администратора. Ожидайте уведомления.")
	}

	return b.showMenu(c, user)
}

func (b *Bot) showMenu(c tele.Context, user *models.User) error {
	menu := menuFor(user.Role, user.Status)
	if menu == nil {
		return c.Send("🚫 Для вашей роли нет доступных действий.")
	}
	return c.Send(fmt.Sprintf("👋 %s (%s)", user.FullName, models.RoleLabel(user.Role)), menu)
}

func (b *Bot) handleCancelFlow(c tele.Context) error {
	b.Sessions.Reset(c.Sender().ID)
	c.Send("Действие отменено.")
	user, err := b.Svc.User().Identify(context.Background(), c.Sender().ID)
	if err != nil || user == nil || !user.IsApproved() {
		return nil
	}
	return b.showMenu(c, user)
}

// handleText routes free-form input to whatever wizard the sender is in.
func (b *Bot) handleText(c tele.Context) error {
	session := b.Sessions.Get(c.Sender().ID)
	if session == nil || session.State == StateIdle {
		return nil
	}

	switch session.State {
	case StateRegFIO, StateRegPhone:
		return b.handleRegistrationText(c, session)
	case StateOrderFrom, StateOrderTo, StateOrderPass, StateOrderPrice,
		StateOrderName, StateOrderPhone, StateOrderTime, StateOrderComment:
		return b.handleOrderWizardText(c, session)
	case StateEditValue:
		return b.handleEditValue(c, session)
	case StateTicketBody:
		return b.handleTicketBody(c, session)
	case StateTicketReply:
		return b.handleTicketReplyBody(c, session)
	}
	return nil
}

func (b *Bot) handlePhoto(c tele.Context) error {
	session := b.Sessions.Get(c.Sender().ID)
	if session == nil {
		return nil
	}
	switch session.State {
	case StateRegPTS, StateRegSTS, StateRegLicense, StateRegCar:
		return b.handleRegistrationPhoto(c, session)
	}
	return nil
}

// currentUser resolves the sender; nil means unknown or not yet usable.
func (b *Bot) currentUser(c tele.Context) *models.User {
	user, err := b.Svc.User().Identify(context.Background(), c.Sender().ID)
	if err != nil {
		b.Log.Error("failed to identify sender", logger.Error(err))
		return nil
	}
	return user
}
