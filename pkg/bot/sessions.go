package bot

import (
	"sync"

	"dispatchbot/service"
)

// Wizard states. Idle sessions carry no transient data.
const (
	StateIdle = "idle"

	StateRegRole    = "reg_awaiting_role"
	StateRegFIO     = "reg_awaiting_fio"
	StateRegPhone   = "reg_awaiting_phone"
	StateRegPTS     = "reg_awaiting_pts_photo"
	StateRegSTS     = "reg_awaiting_sts_photo"
	StateRegLicense = "reg_awaiting_license_photo"
	StateRegCar     = "reg_awaiting_car_photo"

	StateOrderFrom    = "order_awaiting_from"
	StateOrderTo      = "order_awaiting_to"
	StateOrderTariff  = "order_awaiting_tariff"
	StateOrderPass    = "order_awaiting_passengers"
	StateOrderPrice   = "order_awaiting_price"
	StateOrderName    = "order_awaiting_client_name"
	StateOrderPhone   = "order_awaiting_client_phone"
	StateOrderTime    = "order_awaiting_time"
	StateOrderComment = "order_awaiting_comment"
	StateOrderConfirm = "order_awaiting_confirm"

	StateEditValue = "edit_awaiting_value"

	StateTicketBody  = "ticket_awaiting_body"
	StateTicketReply = "ticket_awaiting_reply"
)

// registrationDraft accumulates wizard input until the single user
// insert at the end of the flow.
type registrationDraft struct {
	Role           string
	FullName       string
	Phone          string
	PTSPhotoID     string
	STSPhotoID     string
	LicensePhotoID string
	CarPhotoID     string
}

// Session is per-actor transient wizard state. It is never persisted:
// abandoning a flow just leaves the map entry to be overwritten or
// dropped, which is the intended behavior.
type Session struct {
	State string

	Reg        *registrationDraft
	OrderDraft *service.CreateOrderCommand

	EditOrderID int64
	EditField   string

	CancelOrderID int64
	CancelClient  bool
	CancelDriver  bool

	TicketType    string
	ReplyTicketID int64
}

// SessionStore is the arena for wizard state, keyed by Telegram chat ID.
// telebot runs handlers on separate goroutines, hence the lock.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*Session)}
}

func (s *SessionStore) Get(chatID int64) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[chatID]
}

func (s *SessionStore) GetOrCreate(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[chatID]; ok {
		return session
	}
	session := &Session{State: StateIdle}
	s.sessions[chatID] = session
	return session
}

// Reset returns the session to idle and discards all draft data.
func (s *SessionStore) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = &Session{State: StateIdle}
}

func (s *SessionStore) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}
