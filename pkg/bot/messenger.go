package bot

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"dispatchbot/service"
)

// teleMessenger adapts telebot to the service.Messenger boundary. Action
// tokens become inline callback buttons, one per row. A token of the form
// "claim_12" routes to the "claim" callback handler with "12" as payload.
type teleMessenger struct {
	bot *tele.Bot
}

func NewMessenger(b *tele.Bot) service.Messenger {
	return &teleMessenger{bot: b}
}

func markupFor(msg service.Message) *tele.ReplyMarkup {
	if len(msg.Actions) == 0 {
		return nil
	}
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, a := range msg.Actions {
		unique, payload, _ := strings.Cut(a.Token, "_")
		rows = append(rows, menu.Row(menu.Data(a.Label, unique, payload)))
	}
	menu.Inline(rows...)
	return menu
}

func (m *teleMessenger) Send(_ context.Context, chatID int64, msg service.Message) (int, error) {
	var sent *tele.Message
	var err error
	if markup := markupFor(msg); markup != nil {
		sent, err = m.bot.Send(&tele.User{ID: chatID}, msg.Text, markup)
	} else {
		sent, err = m.bot.Send(&tele.User{ID: chatID}, msg.Text)
	}
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (m *teleMessenger) Edit(_ context.Context, chatID int64, messageID int, msg service.Message) error {
	ref := &editable{chatID: chatID, messageID: messageID}
	var err error
	if markup := markupFor(msg); markup != nil {
		_, err = m.bot.Edit(ref, msg.Text, markup)
	} else {
		_, err = m.bot.Edit(ref, msg.Text)
	}
	return err
}

func (m *teleMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	return m.bot.Delete(&editable{chatID: chatID, messageID: messageID})
}

type editable struct {
	chatID    int64
	messageID int
}

func (e *editable) MessageSig() (string, int64) {
	return strconv.Itoa(e.messageID), e.chatID
}
