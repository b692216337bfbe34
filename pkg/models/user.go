package models

import "time"

const (
	RoleUser       = "user"
	RoleDriver     = "driver"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
)

const (
	UserPending  = "pending"
	UserApproved = "approved"
	UserBanned   = "banned"
)

type User struct {
	ID           int64   `json:"id"`
	TelegramID   int64   `json:"telegram_id"`
	Username     string  `json:"username"`
	FullName     string  `json:"full_name"`
	Phone        string  `json:"phone"`
	Role         string  `json:"role"`
	Status       string  `json:"status"`
	Login        *string `json:"login"`
	PasswordHash *string `json:"-"`

	// Telegram file IDs of the driver's verification documents.
	PTSPhotoID     *string `json:"pts_photo_id"`
	STSPhotoID     *string `json:"sts_photo_id"`
	LicensePhotoID *string `json:"license_photo_id"`
	CarPhotoID     *string `json:"car_photo_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsApproved() bool {
	return u.Status == UserApproved
}

// CanDrive reports whether the user may claim orders. Admins pass too:
// they receive the fan-out for visibility and may claim while testing.
func (u *User) CanDrive() bool {
	return u.Role == RoleDriver || u.Role == RoleAdmin
}

func (u *User) CanManageOrders() bool {
	return u.Role == RoleDispatcher || u.Role == RoleAdmin
}
