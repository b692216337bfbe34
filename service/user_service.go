package service

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// UserService is the authorization gate plus the administrative user
// operations. Every state-changing entry point resolves the caller here
// before touching orders.
type UserService interface {
	// Identify resolves a chat identity without gating.
	Identify(ctx context.Context, telegramID int64) (*models.User, error)
	// Authorize requires an approved user holding one of the roles.
	Authorize(ctx context.Context, telegramID int64, roles ...string) (*models.User, error)
	EnsureBootstrapAdmin(ctx context.Context, telegramID int64, username, fullName string) (*models.User, error)
	Register(ctx context.Context, user *models.User) (*models.User, error)

	Approve(ctx context.Context, actor *models.User, userID int64) error
	Reject(ctx context.Context, actor *models.User, userID int64) error
	Ban(ctx context.Context, actor *models.User, userID int64) error
	Unban(ctx context.Context, actor *models.User, userID int64) error
	SetRole(ctx context.Context, actor *models.User, userID int64, role string) error
	// Purge hard-deletes a user; fails while the user still owns orders.
	Purge(ctx context.Context, actor *models.User, userID int64) error

	LinkCredentials(ctx context.Context, actor *models.User, userID int64, login, password string) error
	AuthenticateWeb(ctx context.Context, login, password string) (*models.User, error)

	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetAll(ctx context.Context) ([]*models.User, error)
	GetPending(ctx context.Context) ([]*models.User, error)
}

type userService struct {
	stg storage.IStorage
	log logger.ILogger
}

func NewUserService(stg storage.IStorage, log logger.ILogger) UserService {
	return &userService{stg: stg, log: log}
}

func (s *userService) Identify(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.stg.User().Get(ctx, telegramID)
}

func (s *userService) Authorize(ctx context.Context, telegramID int64, roles ...string) (*models.User, error) {
	user, err := s.stg.User().Get(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthorized
	}
	if !user.IsApproved() {
		return nil, ErrNotAuthorized
	}
	if len(roles) == 0 {
		return user, nil
	}
	for _, role := range roles {
		if user.Role == role {
			return user, nil
		}
	}
	return nil, ErrNotAuthorized
}

func (s *userService) EnsureBootstrapAdmin(ctx context.Context, telegramID int64, username, fullName string) (*models.User, error) {
	return s.stg.User().EnsureAdmin(ctx, telegramID, username, fullName)
}

func (s *userService) Register(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Status = models.UserPending
	created, err := s.stg.User().Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered",
		logger.Int64("user_id", created.ID),
		logger.String("role", created.Role))
	return created, nil
}

func (s *userService) requireAdmin(actor *models.User) error {
	if actor == nil || !actor.IsApproved() || actor.Role != models.RoleAdmin {
		return ErrNotAuthorized
	}
	return nil
}

func (s *userService) setStatus(ctx context.Context, actor *models.User, userID int64, status string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	user, err := s.stg.User().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	return s.stg.User().UpdateStatusByID(ctx, userID, status)
}

func (s *userService) Approve(ctx context.Context, actor *models.User, userID int64) error {
	return s.setStatus(ctx, actor, userID, models.UserApproved)
}

func (s *userService) Reject(ctx context.Context, actor *models.User, userID int64) error {
	return s.setStatus(ctx, actor, userID, models.UserBanned)
}

func (s *userService) Ban(ctx context.Context, actor *models.User, userID int64) error {
	return s.setStatus(ctx, actor, userID, models.UserBanned)
}

func (s *userService) Unban(ctx context.Context, actor *models.User, userID int64) error {
	return s.setStatus(ctx, actor, userID, models.UserApproved)
}

func (s *userService) SetRole(ctx context.Context, actor *models.User, userID int64, role string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	switch role {
	case models.RoleUser, models.RoleDriver, models.RoleDispatcher, models.RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrBadInput, role)
	}
	user, err := s.stg.User().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	return s.stg.User().UpdateRoleByID(ctx, userID, role)
}

func (s *userService) Purge(ctx context.Context, actor *models.User, userID int64) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	count, err := s.stg.Order().CountForUser(ctx, userID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d order(s) reference this user", ErrUserHasOrders, count)
	}
	if err := s.stg.User().Delete(ctx, userID); err != nil {
		return err
	}
	s.log.Info("user purged", logger.Int64("user_id", userID), logger.Int64("actor_id", actor.ID))
	return nil
}

func (s *userService) LinkCredentials(ctx context.Context, actor *models.User, userID int64, login, password string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if login == "" || len(password) < 6 {
		return fmt.Errorf("%w: login required, password at least 6 characters", ErrBadInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.stg.User().SetCredentials(ctx, userID, login, string(hash))
}

func (s *userService) AuthenticateWeb(ctx context.Context, login, password string) (*models.User, error) {
	user, err := s.stg.User().GetByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil || !user.IsApproved() {
		return nil, ErrNotAuthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, ErrNotAuthorized
	}
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.stg.User().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *userService) GetAll(ctx context.Context) ([]*models.User, error) {
	return s.stg.User().GetAll(ctx)
}

func (s *userService) GetPending(ctx context.Context) ([]*models.User, error) {
	return s.stg.User().GetPending(ctx)
}
