package bot

import (
	"testing"

	"dispatchbot/pkg/models"
)

func contains(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func TestCapabilitiesRequireApproval(t *testing.T) {
	for _, status := range []string{models.UserPending, models.UserBanned, ""} {
		if got := capabilitiesFor(models.RoleAdmin, status); got != nil {
			t.Errorf("capabilitiesFor(admin, %q) = %v, want nil", status, got)
		}
	}
}

func TestCapabilitiesPerRole(t *testing.T) {
	driver := capabilitiesFor(models.RoleDriver, models.UserApproved)
	if !contains(driver, BtnAvailable) || !contains(driver, BtnMyOrders) {
		t.Errorf("driver menu %v misses order buttons", driver)
	}
	if contains(driver, BtnNewOrder) || contains(driver, BtnUsers) {
		t.Errorf("driver menu %v leaks staff buttons", driver)
	}

	dispatcher := capabilitiesFor(models.RoleDispatcher, models.UserApproved)
	if !contains(dispatcher, BtnNewOrder) || !contains(dispatcher, BtnOrderBoard) {
		t.Errorf("dispatcher menu %v misses order management", dispatcher)
	}
	if contains(dispatcher, BtnUsers) || contains(dispatcher, BtnExport) {
		t.Errorf("dispatcher menu %v leaks admin buttons", dispatcher)
	}

	admin := capabilitiesFor(models.RoleAdmin, models.UserApproved)
	for _, label := range []string{BtnNewOrder, BtnAvailable, BtnUsers, BtnPending, BtnStats, BtnExport, BtnTickets} {
		if !contains(admin, label) {
			t.Errorf("admin menu %v misses %q", admin, label)
		}
	}

	if got := capabilitiesFor(models.RoleUser, models.UserApproved); got != nil {
		t.Errorf("plain user menu = %v, want nil", got)
	}
}

func TestValidFullName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"Иванов Иван Иванович", true},
		{"Анна Ли", true},
		{"  Артём  ", true},
		{"Ив", false},
		{"Пётр", false},
		{"", false},
		{"    ", false},
	}
	for _, tc := range cases {
		if got := validFullName(tc.name); got != tc.ok {
			t.Errorf("validFullName(%q) = %v, want %v", tc.name, got, tc.ok)
		}
	}
}
