package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/fintra/authserver/internal/notify"
	"github.com/fintra/authserver/types"
)

const otpLength = 6

// Workflow errors surfaced to the handlers.
var (
	// ErrOTPExpired is returned when the stored code's expiry has passed.
	ErrOTPExpired = errors.New("OTP expired, please request a new one")
	// ErrOTPMismatch is returned when the submitted code does not equal
	// the stored one.
	ErrOTPMismatch = errors.New("invalid OTP")
	// ErrDelivery wraps a failed email/SMS dispatch. The OTP record is
	// already persisted when this is returned; the code stays usable if
	// the message made it out despite the error.
	ErrDelivery = errors.New("failed to send OTP")
)

// OtpRepository defines persistence operations for OTP records.
type OtpRepository interface {
	GetByIdentifier(ctx context.Context, channel types.Channel, identifier string) (types.OtpRecord, error)
	UpsertCode(ctx context.Context, channel types.Channel, identifier, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, channel types.Channel, identifier string) error
}

// OTPService issues and verifies one-time codes.
type OTPService struct {
	repo   OtpRepository
	sender notify.Sender
	ttl    time.Duration
}

func NewOTPService(repo OtpRepository, sender notify.Sender, ttl time.Duration) *OTPService {
	return &OTPService{
		repo:   repo,
		sender: sender,
		ttl:    ttl,
	}
}

// Request issues a fresh code for the identifier and dispatches it over
// the channel. The record is upserted before dispatch and is not rolled
// back if dispatch fails.
//
// Two concurrent requests for the same identifier race on which code
// ends up stored; there is no cross-request locking. Last writer wins.
func (s *OTPService) Request(ctx context.Context, channel types.Channel, identifier string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate OTP: %w", err)
	}
	expiresAt := time.Now().Add(s.ttl)

	if err := s.repo.UpsertCode(ctx, channel, identifier, code, expiresAt); err != nil {
		return fmt.Errorf("store OTP: %w", err)
	}

	msg := notify.Message{
		Kind:      notify.KindOTP,
		Recipient: identifier,
		Body:      fmt.Sprintf("Your OTP is %s", code),
	}
	switch channel {
	case types.ChannelEmail:
		msg.Subject = "Your verification code"
		err = s.sender.SendEmail(ctx, msg)
	default:
		err = s.sender.SendSMS(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// Verify checks a submitted code against the stored record and, on
// success, flips the channel's verified flag. The other channel's flag
// is never touched.
//
// The lookup and the flag write are separate statements; a concurrent
// Request for the same identifier can overwrite the code between them.
func (s *OTPService) Verify(ctx context.Context, channel types.Channel, identifier, code string) error {
	record, err := s.repo.GetByIdentifier(ctx, channel, identifier)
	if err != nil {
		return err
	}

	if time.Now().After(record.ExpiresAt(channel)) {
		return ErrOTPExpired
	}
	if record.Code(channel) != code {
		return ErrOTPMismatch
	}

	return s.repo.MarkVerified(ctx, channel, identifier)
}

// generateCode returns a uniformly random numeric code of otpLength digits.
func generateCode() (string, error) {
	buf := make([]byte, otpLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	digits := make([]byte, otpLength)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}
