package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fintra/authserver/types"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, username, first_name, last_name, phone_number, image_url,
		is_phone_verified, is_email_verified, password_hash, balance, role, created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.ImageURL,
		&user.IsPhoneVerified,
		&user.IsEmailVerified,
		&user.PasswordHash,
		&user.Balance,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, username, first_name, last_name, phone_number, image_url,
			is_phone_verified, is_email_verified, password_hash, balance, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.ImageURL,
		user.IsPhoneVerified,
		user.IsEmailVerified,
		user.PasswordHash,
		user.Balance,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// SetVerification overwrites both verification flags on the user.
func (r *UserRepository) SetVerification(ctx context.Context, email string, phoneVerified, emailVerified bool) error {
	const query = `
		UPDATE users
		SET is_phone_verified = $1,
			is_email_verified = $2,
			updated_at = $3
		WHERE email = $4`
	result, err := r.db.ExecContext(ctx, query, phoneVerified, emailVerified, time.Now(), email)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetPassword stores the hashed password for the user.
func (r *UserRepository) SetPassword(ctx context.Context, email, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			updated_at = $2
		WHERE email = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), email)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
