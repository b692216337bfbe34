package service

import (
	"context"
	"strings"
	"testing"

	"dispatchbot/pkg/models"
)

func dispatchToDrivers(t *testing.T, stg *memStore, svc IServiceManager, disp *models.User, n int) (*models.Order, []*models.User) {
	t.Helper()
	var drivers []*models.User
	for i := 0; i < n; i++ {
		drivers = append(drivers, seedDriver(stg, "Водитель"))
	}
	order := mustCreate(t, svc, disp)
	if _, err := svc.Order().Dispatch(context.Background(), order.ID, disp); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return order, drivers
}

func TestFanOutDeliversToAllDrivers(t *testing.T) {
	stg, msgr, svc := newTestServices()
	disp := seedDispatcher(stg)

	order, drivers := dispatchToDrivers(t, stg, svc, disp, 3)

	for _, d := range drivers {
		msgs := msgr.visible(d.TelegramID)
		if len(msgs) != 1 {
			t.Fatalf("driver %d: %d visible messages, want 1 offer", d.ID, len(msgs))
		}
		// Offers carry no client contact before the claim.
		if strings.Contains(msgs[0].Text, "+79161234567") {
			t.Fatal("offer must not expose the client phone")
		}
	}

	rows, err := stg.Broadcast().GetByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("bookkeeping rows = %d, want 3", len(rows))
	}
}

func TestFanOutSkipsUnreachableRecipient(t *testing.T) {
	stg, msgr, svc := newTestServices()
	disp := seedDispatcher(stg)
	blocked := seedDriver(stg, "Заблокировавший")
	reachable := seedDriver(stg, "Доступный")
	msgr.failChat(blocked.TelegramID)

	order := mustCreate(t, svc, disp)
	if _, err := svc.Order().Dispatch(context.Background(), order.ID, disp); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := len(msgr.visible(reachable.TelegramID)); got != 1 {
		t.Fatalf("reachable driver got %d messages, want 1", got)
	}
	rows, _ := stg.Broadcast().GetByOrder(context.Background(), order.ID)
	if len(rows) != 1 {
		t.Fatalf("bookkeeping rows = %d, want 1 (no row for the failed send)", len(rows))
	}
}

func TestClaimRetractsLosersAndRewritesWinner(t *testing.T) {
	stg, msgr, svc := newTestServices()
	disp := seedDispatcher(stg)
	ctx := context.Background()

	order, drivers := dispatchToDrivers(t, stg, svc, disp, 4)
	winner := drivers[0]

	if _, err := svc.Order().Claim(ctx, order.ID, winner); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	for _, d := range drivers[1:] {
		if got := len(msgr.visible(d.TelegramID)); got != 0 {
			t.Fatalf("loser %d still sees %d messages", d.ID, got)
		}
	}

	winnerMsgs := msgr.visible(winner.TelegramID)
	if len(winnerMsgs) != 1 {
		t.Fatalf("winner sees %d messages, want 1 rewritten card", len(winnerMsgs))
	}
	if !winnerMsgs[0].Edited {
		t.Fatal("winner's offer must be edited in place, not resent")
	}
	if !strings.Contains(winnerMsgs[0].Text, "+79161234567") {
		t.Fatal("winner's card must reveal the client phone")
	}

	rows, _ := stg.Broadcast().GetByOrder(ctx, order.ID)
	if len(rows) != 0 {
		t.Fatalf("bookkeeping rows = %d, want 0 after the claim", len(rows))
	}
}

func TestClaimFromNewSendsFreshWinnerCard(t *testing.T) {
	stg, msgr, svc := newTestServices()
	disp := seedDispatcher(stg)
	driver := seedDriver(stg, "Водитель")

	order := mustCreate(t, svc, disp)
	if _, err := svc.Order().Claim(context.Background(), order.ID, driver); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	msgs := msgr.visible(driver.TelegramID)
	if len(msgs) != 1 {
		t.Fatalf("driver sees %d messages, want 1", len(msgs))
	}
	// No offer ever existed for this chat, so the full card is a new send.
	if msgs[0].Edited {
		t.Fatal("fresh winner card should not be an edit")
	}
}

func TestRetractionSurvivesDeleteFailures(t *testing.T) {
	stg, msgr, svc := newTestServices()
	disp := seedDispatcher(stg)
	ctx := context.Background()

	order, drivers := dispatchToDrivers(t, stg, svc, disp, 3)

	// One loser becomes unreachable between fan-out and retraction.
	msgr.failChat(drivers[2].TelegramID)

	if _, err := svc.Order().Cancel(ctx, order.ID, disp, false, false); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	for _, d := range drivers[:2] {
		if got := len(msgr.visible(d.TelegramID)); got != 0 {
			t.Fatalf("driver %d still sees %d messages", d.ID, got)
		}
	}
	// The rows are purged even where the delete could not reach the chat,
	// so a later retraction pass has nothing left to do.
	rows, _ := stg.Broadcast().GetByOrder(ctx, order.ID)
	if len(rows) != 0 {
		t.Fatalf("bookkeeping rows = %d, want 0", len(rows))
	}
}

func TestRetractAllIsIdempotent(t *testing.T) {
	stg, _, svc := newTestServices()
	disp := seedDispatcher(stg)
	ctx := context.Background()

	order, _ := dispatchToDrivers(t, stg, svc, disp, 2)

	svc.Broadcast().RetractAll(ctx, order.ID)
	svc.Broadcast().RetractAll(ctx, order.ID)

	rows, _ := stg.Broadcast().GetByOrder(ctx, order.ID)
	if len(rows) != 0 {
		t.Fatalf("bookkeeping rows = %d, want 0", len(rows))
	}
}

func TestNotifyStaffSkipsActor(t *testing.T) {
	stg, msgr, svc := newTestServices()
	actor := seedDispatcher(stg)
	other := seedDispatcher(stg)
	admin := seedAdmin(stg)

	svc.Broadcast().NotifyStaff(context.Background(), "тест", actor.ID)

	if got := len(msgr.visible(actor.TelegramID)); got != 0 {
		t.Fatalf("actor received %d notifications, want 0", got)
	}
	if got := len(msgr.visible(other.TelegramID)); got != 1 {
		t.Fatalf("other dispatcher received %d notifications, want 1", got)
	}
	if got := len(msgr.visible(admin.TelegramID)); got != 1 {
		t.Fatalf("admin received %d notifications, want 1", got)
	}
}
