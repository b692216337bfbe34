package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

type userRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewUserRepo(db *pgxpool.Pool, log logger.ILogger) storage.IUserStorage {
	return &userRepo{db: db, log: log}
}

const userColumns = `id, telegram_id, username, full_name, phone, role, status, login, password_hash,
	pts_photo_id, sts_photo_id, license_photo_id, car_photo_id, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.FullName, &u.Phone, &u.Role, &u.Status, &u.Login, &u.PasswordHash,
		&u.PTSPhotoID, &u.STSPhotoID, &u.LicensePhotoID, &u.CarPhotoID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, full_name, phone, role, status,
			pts_photo_id, sts_photo_id, license_photo_id, car_photo_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			pts_photo_id = EXCLUDED.pts_photo_id,
			sts_photo_id = EXCLUDED.sts_photo_id,
			license_photo_id = EXCLUDED.license_photo_id,
			car_photo_id = EXCLUDED.car_photo_id,
			updated_at = NOW()
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query,
		user.TelegramID, user.Username, user.FullName, user.Phone, user.Role, user.Status,
		user.PTSPhotoID, user.STSPhotoID, user.LicensePhotoID, user.CarPhotoID,
	))
	if err != nil {
		r.log.Error("failed to create user", logger.Error(err))
		return nil, err
	}
	return u, nil
}

func (r *userRepo) EnsureAdmin(ctx context.Context, telegramID int64, username, fullName string) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, full_name, role, status)
		VALUES ($1, $2, $3, 'admin', 'approved')
		ON CONFLICT (telegram_id) DO UPDATE
		SET role = 'admin', status = 'approved', updated_at = NOW()
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, telegramID, username, fullName))
	if err != nil {
		r.log.Error("failed to ensure admin", logger.Error(err))
		return nil, err
	}
	return u, nil
}

func (r *userRepo) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get user", logger.Error(err))
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get user by id", logger.Error(err))
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE login = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, login))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get user by login", logger.Error(err))
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetAll(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	return r.scanUsers(ctx, query)
}

func (r *userRepo) GetPending(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status = 'pending' ORDER BY created_at`
	return r.scanUsers(ctx, query)
}

func (r *userRepo) GetApprovedByRoles(ctx context.Context, roles ...string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status = 'approved' AND role = ANY($1) ORDER BY created_at`
	return r.scanUsers(ctx, query, roles)
}

func (r *userRepo) scanUsers(ctx context.Context, query string, args ...interface{}) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) UpdateStatusByID(ctx context.Context, id int64, status string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET status=$1, updated_at=NOW() WHERE id=$2", status, id)
	return err
}

func (r *userRepo) UpdateRoleByID(ctx context.Context, id int64, role string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET role=$1, updated_at=NOW() WHERE id=$2", role, id)
	return err
}

func (r *userRepo) UpdatePhoneByID(ctx context.Context, id int64, phone string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET phone=$1, updated_at=NOW() WHERE id=$2", phone, id)
	return err
}

func (r *userRepo) SetCredentials(ctx context.Context, id int64, login, passwordHash string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET login=$1, password_hash=$2, updated_at=NOW() WHERE id=$3", login, passwordHash, id)
	return err
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, "DELETE FROM users WHERE id=$1", id)
	return err
}
