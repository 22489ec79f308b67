package types

import "time"

// Roles assignable to a user account.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, verification state, and balance.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Username is the display name chosen by the user.
	Username string `json:"userName" db:"username"`

	// FirstName and LastName are optional profile fields.
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`

	// PhoneNumber is the user's mobile number, if provided.
	PhoneNumber string `json:"phoneNumber" db:"phone_number"`

	// ImageURL points at the uploaded profile image, empty if none.
	ImageURL string `json:"imageUrl" db:"image_url"`

	// IsPhoneVerified and IsEmailVerified record which channels have
	// been confirmed through the OTP flow.
	IsPhoneVerified bool `json:"isPhoneVerified" db:"is_phone_verified"`
	IsEmailVerified bool `json:"isEmailVerified" db:"is_email_verified"`

	// PasswordHash stores the hashed representation of the user's password.
	// Empty until the user completes the set-password step.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Balance is the account balance in minor units. New accounts start at 0.
	Balance int64 `json:"balance" db:"balance"`

	// Role indicates the user's authorization level ("user" or "admin").
	Role string `json:"role" db:"role"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the projection of a User returned by the login endpoint.
type PublicUser struct {
	UserID          int    `json:"userId"`
	Email           string `json:"email"`
	Username        string `json:"userName"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PhoneNumber     string `json:"phoneNumber"`
	ImageURL        string `json:"imageUrl"`
	Balance         int64  `json:"balance"`
	IsPhoneVerified bool   `json:"isPhoneVerified"`
	IsEmailVerified bool   `json:"isEmailVerified"`
	Role            string `json:"role"`
}

// Public returns the API-safe projection of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		UserID:          u.ID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		PhoneNumber:     u.PhoneNumber,
		ImageURL:        u.ImageURL,
		Balance:         u.Balance,
		IsPhoneVerified: u.IsPhoneVerified,
		IsEmailVerified: u.IsEmailVerified,
		Role:            u.Role,
	}
}
