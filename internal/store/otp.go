package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fintra/authserver/types"
)

// OtpRepository handles persistence for OTP records.
//
// Records are keyed by email or phone. The upsert keeps a single row per
// identifier: the code and expiry for the requested channel are
// overwritten, verified flags are never touched by an upsert.
type OtpRepository struct {
	db *sql.DB
}

func NewOtpRepository(db *sql.DB) *OtpRepository {
	return &OtpRepository{db: db}
}

const otpColumns = `id, email, phone, mobile_code, email_code,
		mobile_code_expires_at, email_code_expires_at,
		is_email_verified, is_mobile_verified, created_at, updated_at`

func scanOtpRecord(row *sql.Row) (types.OtpRecord, error) {
	var (
		record       types.OtpRecord
		email, phone sql.NullString
		mCode, eCode sql.NullString
		mExp, eExp   sql.NullTime
	)
	err := row.Scan(
		&record.ID,
		&email,
		&phone,
		&mCode,
		&eCode,
		&mExp,
		&eExp,
		&record.IsEmailVerified,
		&record.IsMobileVerified,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.OtpRecord{}, ErrNotFound
		}
		return types.OtpRecord{}, err
	}
	record.Email = email.String
	record.Phone = phone.String
	record.MobileCode = mCode.String
	record.EmailCode = eCode.String
	record.MobileCodeExpiresAt = mExp.Time
	record.EmailCodeExpiresAt = eExp.Time
	return record, nil
}

// GetByIdentifier looks up the record keyed by the channel's identifier.
func (r *OtpRepository) GetByIdentifier(ctx context.Context, channel types.Channel, identifier string) (types.OtpRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_otps
		WHERE %s = $1`, otpColumns, identifierColumn(channel))
	return scanOtpRecord(r.db.QueryRowContext(ctx, query, identifier))
}

// UpsertCode writes a freshly issued code and expiry for the channel,
// creating the record if none exists for the identifier yet. Verified
// flags on an existing record are preserved.
func (r *OtpRepository) UpsertCode(ctx context.Context, channel types.Channel, identifier, code string, expiresAt time.Time) error {
	now := time.Now()

	var query string
	switch channel {
	case types.ChannelEmail:
		query = `
			INSERT INTO user_otps (email, email_code, email_code_expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (email) DO UPDATE
			SET email_code = EXCLUDED.email_code,
				email_code_expires_at = EXCLUDED.email_code_expires_at,
				updated_at = EXCLUDED.updated_at`
	case types.ChannelMobile:
		query = `
			INSERT INTO user_otps (phone, mobile_code, mobile_code_expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (phone) DO UPDATE
			SET mobile_code = EXCLUDED.mobile_code,
				mobile_code_expires_at = EXCLUDED.mobile_code_expires_at,
				updated_at = EXCLUDED.updated_at`
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	_, err := r.db.ExecContext(ctx, query, identifier, code, expiresAt, now)
	return err
}

// MarkVerified flips the channel's verified flag on the record.
func (r *OtpRepository) MarkVerified(ctx context.Context, channel types.Channel, identifier string) error {
	flag := "is_mobile_verified"
	if channel == types.ChannelEmail {
		flag = "is_email_verified"
	}
	query := fmt.Sprintf(`
		UPDATE user_otps
		SET %s = TRUE,
			updated_at = $1
		WHERE %s = $2`, flag, identifierColumn(channel))
	result, err := r.db.ExecContext(ctx, query, time.Now(), identifier)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func identifierColumn(channel types.Channel) string {
	if channel == types.ChannelEmail {
		return "email"
	}
	return "phone"
}
