package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/fintra/authserver/internal/notify"
	"github.com/fintra/authserver/internal/storage"
	"github.com/fintra/authserver/internal/store"
	"github.com/fintra/authserver/internal/token"
	"github.com/fintra/authserver/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnverified is returned when neither contact channel has been
	// verified yet.
	ErrUnverified = errors.New("please verify your email and phone number first")
	// ErrInvalidCredentials is returned when the password does not match
	// the stored hash.
	ErrInvalidCredentials = errors.New("invalid password")
	// ErrImageUpload wraps a failed profile-image upload. No user record
	// is created when this is returned.
	ErrImageUpload = errors.New("image upload failed")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetVerification(ctx context.Context, email string, phoneVerified, emailVerified bool) error
	SetPassword(ctx context.Context, email, passwordHash string) error
}

// SignupInput carries the profile fields for a new account.
type SignupInput struct {
	Email       string
	Username    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Image       *ImageUpload
}

// ImageUpload is an optional profile image attached to signup.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AccountService orchestrates signup, password setting, and login.
type AccountService struct {
	users  UserRepository
	otps   OtpRepository
	images *storage.Storage
	tokens *token.Issuer
	sender notify.Sender
	logger *slog.Logger
}

func NewAccountService(
	users UserRepository,
	otps OtpRepository,
	images *storage.Storage,
	tokens *token.Issuer,
	sender notify.Sender,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:  users,
		otps:   otps,
		images: images,
		tokens: tokens,
		sender: sender,
		logger: logger,
	}
}

// Signup creates an account without a password. Verification flags are
// inherited from any OTP record existing for the email or phone at call
// time: the mere existence of a record counts, not its verified flags.
// That matches the shipped behavior; tighten to the verified flags only
// with a product decision, since it silently blesses unverified signups
// that merely requested a code.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check existing user: %w", err)
	}

	imageURL := ""
	if in.Image != nil {
		url, err := s.uploadImage(ctx, in.Image)
		if err != nil {
			return types.User{}, fmt.Errorf("%w: %v", ErrImageUpload, err)
		}
		imageURL = url
	}

	phoneVerified, emailVerified, err := s.verificationFromRecords(ctx, in.Email, in.PhoneNumber)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Email:           in.Email,
		Username:        in.Username,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		PhoneNumber:     in.PhoneNumber,
		ImageURL:        imageURL,
		IsPhoneVerified: phoneVerified,
		IsEmailVerified: emailVerified,
		Role:            types.RoleUser,
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// SetPassword re-derives the verification flags, persists them, and then
// stores the hashed password and issues a token pair. A confirmation SMS
// is sent best-effort; its failure is logged, never propagated.
func (s *AccountService) SetPassword(ctx context.Context, email, password string) (token.Pair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return token.Pair{}, err
	}

	phoneVerified, emailVerified, err := s.verificationFromRecords(ctx, user.Email, user.PhoneNumber)
	if err != nil {
		return token.Pair{}, err
	}
	if err := s.users.SetVerification(ctx, email, phoneVerified, emailVerified); err != nil {
		return token.Pair{}, err
	}
	if !phoneVerified && !emailVerified {
		return token.Pair{}, ErrUnverified
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return token.Pair{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, email, string(hashed)); err != nil {
		return token.Pair{}, err
	}

	user.IsPhoneVerified = phoneVerified
	user.IsEmailVerified = emailVerified
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.notifySMS(ctx, user.PhoneNumber, notify.KindPasswordSet,
		"You've signed up successfully. Your password has been set.")

	return pair, nil
}

// Login verifies credentials and returns the public user projection with
// a token pair. A login-notification SMS is sent best-effort.
func (s *AccountService) Login(ctx context.Context, email, password string) (types.PublicUser, token.Pair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return types.PublicUser{}, token.Pair{}, err
	}

	if !user.IsPhoneVerified && !user.IsEmailVerified {
		return types.PublicUser{}, token.Pair{}, ErrUnverified
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.PublicUser{}, token.Pair{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return types.PublicUser{}, token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.notifySMS(ctx, user.PhoneNumber, notify.KindLogin,
		"You've logged in successfully.")

	return user.Public(), pair, nil
}

// Refresh re-mints a token pair from a refresh token.
func (s *AccountService) Refresh(refreshToken string) (token.Pair, error) {
	return s.tokens.Refresh(refreshToken)
}

// verificationFromRecords reports whether an OTP record exists for the
// phone and email identifiers. Existence alone marks the channel
// verified here; the record's own verified flags are not consulted.
func (s *AccountService) verificationFromRecords(ctx context.Context, email, phone string) (phoneVerified, emailVerified bool, err error) {
	if phone != "" {
		if _, err := s.otps.GetByIdentifier(ctx, types.ChannelMobile, phone); err == nil {
			phoneVerified = true
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, false, fmt.Errorf("look up phone OTP record: %w", err)
		}
	}
	if email != "" {
		if _, err := s.otps.GetByIdentifier(ctx, types.ChannelEmail, email); err == nil {
			emailVerified = true
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, false, fmt.Errorf("look up email OTP record: %w", err)
		}
	}
	return phoneVerified, emailVerified, nil
}

func (s *AccountService) uploadImage(ctx context.Context, img *ImageUpload) (string, error) {
	key := uuid.NewString() + path.Ext(img.Filename)
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.images.Put(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), contentType); err != nil {
		return "", err
	}
	return s.images.URL(key), nil
}

func (s *AccountService) notifySMS(ctx context.Context, phone, kind, body string) {
	if phone == "" {
		return
	}
	err := s.sender.SendSMS(ctx, notify.Message{Kind: kind, Recipient: phone, Body: body})
	if err != nil {
		s.logger.Warn("notification SMS failed", "kind", kind, "error", err)
	}
}
