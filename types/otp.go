package types

import "time"

// Channel identifies which contact channel an OTP targets.
type Channel string

const (
	// ChannelEmail targets the user's email address.
	ChannelEmail Channel = "EMAIL"
	// ChannelMobile targets the user's phone number.
	ChannelMobile Channel = "MOBILE"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelMobile
}

// OtpRecord holds the one-time codes issued for an identifier.
//
// A record is keyed by email and/or phone (either may be empty) and is
// created lazily on the first OTP request for that identifier. Subsequent
// requests overwrite only the code and expiry for the requested channel;
// the verified flags persist once set.
type OtpRecord struct {
	ID int `json:"id" db:"id"`

	Email string `json:"email" db:"email"`
	Phone string `json:"phone" db:"phone"`

	// MobileCode and EmailCode are the currently issued 6-digit codes,
	// empty if none was requested for that channel yet.
	MobileCode string `json:"-" db:"mobile_code"`
	EmailCode  string `json:"-" db:"email_code"`

	// MobileCodeExpiresAt and EmailCodeExpiresAt bound the validity of
	// the corresponding codes.
	MobileCodeExpiresAt time.Time `json:"mobile_code_expires_at" db:"mobile_code_expires_at"`
	EmailCodeExpiresAt  time.Time `json:"email_code_expires_at" db:"email_code_expires_at"`

	IsEmailVerified  bool `json:"is_email_verified" db:"is_email_verified"`
	IsMobileVerified bool `json:"is_mobile_verified" db:"is_mobile_verified"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Code returns the stored code for the given channel.
func (r OtpRecord) Code(c Channel) string {
	if c == ChannelEmail {
		return r.EmailCode
	}
	return r.MobileCode
}

// ExpiresAt returns the stored code expiry for the given channel.
func (r OtpRecord) ExpiresAt(c Channel) time.Time {
	if c == ChannelEmail {
		return r.EmailCodeExpiresAt
	}
	return r.MobileCodeExpiresAt
}
