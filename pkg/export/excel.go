package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// Workbook renders the full operational history as an xlsx file: one
// sheet per month of orders plus flat sheets for users and tickets.
func Workbook(ctx context.Context, stg storage.IStorage) (*bytes.Buffer, error) {
	orders, err := stg.Order().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: load orders: %w", err)
	}
	users, err := stg.User().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: load users: %w", err)
	}
	tickets, err := stg.Ticket().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: load tickets: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	userNames := make(map[int64]string, len(users))
	for _, u := range users {
		userNames[u.ID] = u.FullName
	}

	if err := writeOrderSheets(f, orders, userNames); err != nil {
		return nil, err
	}
	if err := writeUserSheet(f, users); err != nil {
		return nil, err
	}
	if err := writeTicketSheet(f, tickets, userNames); err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf, nil
}

var orderHeader = []interface{}{
	"ID", "Статус", "Откуда", "Куда", "Тариф", "Пассажиры", "Цена",
	"Клиент", "Телефон", "Подача", "Комментарий", "Диспетчер", "Водитель",
	"Создан", "Взят", "Завершён", "Отменён",
}

func writeOrderSheets(f *excelize.File, orders []*models.Order, names map[int64]string) error {
	byMonth := make(map[string][]*models.Order)
	for _, o := range orders {
		key := o.CreatedAt.Format("2006-01")
		byMonth[key] = append(byMonth[key], o)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, month := range months {
		sheet := "Заказы " + month
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("export: sheet %q: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, "A1", &orderHeader); err != nil {
			return err
		}
		for i, o := range byMonth[month] {
			row := []interface{}{
				o.ID,
				models.StatusLabel(o.Status),
				o.FromCity,
				o.ToCity,
				models.TariffLabel(o.Tariff),
				o.Passengers,
				floatOrEmpty(o.Price),
				o.ClientName,
				o.ClientPhone,
				strOrEmpty(o.ScheduledAt),
				o.Comment,
				nameOrEmpty(names, o.DispatcherID),
				nameOrEmpty(names, o.DriverID),
				o.CreatedAt.Format("02.01.2006 15:04"),
				timeOrEmpty(o.TakenAt),
				timeOrEmpty(o.CompletedAt),
				timeOrEmpty(o.CancelledAt),
			}
			cell := fmt.Sprintf("A%d", i+2)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeUserSheet(f *excelize.File, users []*models.User) error {
	const sheet = "Пользователи"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("export: sheet %q: %w", sheet, err)
	}
	header := []interface{}{"ID", "ФИО", "Телефон", "Роль", "Статус", "Telegram", "Зарегистрирован"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, u := range users {
		row := []interface{}{
			u.ID,
			u.FullName,
			u.Phone,
			models.RoleLabel(u.Role),
			models.UserStatusLabel(u.Status),
			u.Username,
			u.CreatedAt.Format("02.01.2006"),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func writeTicketSheet(f *excelize.File, tickets []*models.SupportTicket, names map[int64]string) error {
	const sheet = "Обращения"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("export: sheet %q: %w", sheet, err)
	}
	header := []interface{}{"ID", "Тип", "Статус", "Автор", "Создано"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, t := range tickets {
		row := []interface{}{
			t.ID,
			models.TicketTypeLabel(t.Type),
			models.TicketStatusLabel(t.Status),
			names[t.AuthorID],
			t.CreatedAt.Format("02.01.2006 15:04"),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func floatOrEmpty(f *float64) interface{} {
	if f == nil {
		return ""
	}
	return *f
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}

func nameOrEmpty(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	return names[*id]
}
