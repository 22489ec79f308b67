package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/fintra/authserver/internal/ratelimit"
	"github.com/fintra/authserver/internal/services"
	"github.com/fintra/authserver/internal/store"
	"github.com/fintra/authserver/internal/token"
	"github.com/fintra/authserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory = 8 << 20
	maxImageBytes      = 8 << 20
	minPasswordLength  = 6
	otpLength          = 6
	formFieldImage     = "image"
)

// AuthHandler provides the signup, OTP, password, and token endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	otp      *services.OTPService
	tokens   *token.Issuer
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	accounts *services.AccountService,
	otp *services.OTPService,
	tokens *token.Issuer,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		otp:      otp,
		tokens:   tokens,
		limiter:  limiter,
		logger:   logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/signup", handler.Signup)
	r.Post("/request-otp", handler.RequestOTP)
	r.Post("/verify-otp", handler.VerifyOTP)
	r.Post("/set-password", handler.SetPassword)
	r.Post("/login", handler.Login)
	r.Post("/refresh-token", handler.RefreshToken)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces a valid access token and injects its claims into
// the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := h.tokens.VerifyAccess(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Signup creates a user account from a multipart form with an optional
// profile image.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	in := services.SignupInput{
		Email:       strings.TrimSpace(r.FormValue("email")),
		Username:    strings.TrimSpace(r.FormValue("userName")),
		FirstName:   strings.TrimSpace(r.FormValue("firstName")),
		LastName:    strings.TrimSpace(r.FormValue("lastName")),
		PhoneNumber: strings.TrimSpace(r.FormValue("phoneNumber")),
	}
	if in.Email == "" || in.Username == "" || in.FirstName == "" || in.LastName == "" || in.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if !validEmail(in.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}
		if len(data) > maxImageBytes {
			writeError(w, http.StatusBadRequest, "image too large")
			return
		}
		in.Image = &services.ImageUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "invalid image upload")
		return
	}

	if _, err := h.accounts.Signup(r.Context(), in); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, services.ErrImageUpload):
			h.logger.Error("image upload failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Image upload failed")
		default:
			h.logger.Error("signup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Signup error")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "User created successfully"})
}

// RequestOTP issues a one-time code for an email address or phone number.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	channel, identifier, ok := req.validate()
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be EMAIL or MOBILE with the matching identifier")
		return
	}

	if !h.limiter.Allow(r.Context(), identifier) {
		writeError(w, http.StatusTooManyRequests, "too many OTP requests, try again later")
		return
	}

	if err := h.otp.Request(r.Context(), channel, identifier); err != nil {
		h.logger.Error("OTP request failed", "channel", channel, "error", err)
		writeError(w, http.StatusInternalServerError, "Error requesting OTP")
		return
	}

	target := "mobile"
	if channel == types.ChannelEmail {
		target = "email"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "OTP sent to " + target})
}

// VerifyOTP checks a submitted code and marks the channel verified.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	channel, identifier, ok := req.OTPRequest.validate()
	if !ok || len(req.OTP) != otpLength {
		writeError(w, http.StatusBadRequest, "type must be EMAIL or MOBILE with the matching identifier and a 6-digit otp")
		return
	}

	if err := h.otp.Verify(r.Context(), channel, identifier, req.OTP); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusBadRequest, string(channel)+" OTP request not found")
		case errors.Is(err, services.ErrOTPExpired), errors.Is(err, services.ErrOTPMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("OTP verification failed", "channel", channel, "error", err)
			writeError(w, http.StatusInternalServerError, "Error verifying OTP")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: string(channel) + " verified successfully"})
}

// SetPassword stores the user's password and returns a token pair.
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req SetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	pair, err := h.accounts.SetPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, services.ErrUnverified):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			h.logger.Error("set password failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Error updating password")
		}
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Message:      "Password updated successfully",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Login verifies credentials and returns tokens plus the public user.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, pair, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, services.ErrUnverified):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "Invalid password")
		default:
			h.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Login error")
		}
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message:      "Login successful",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	})
}

// RefreshToken verifies a refresh token and returns a new pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	pair, err := h.accounts.Refresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Message:      "Tokens refreshed successfully",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Me returns the claims of the presented access token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	})
}

type MessageResponse struct {
	Message string `json:"message"`
}

type OTPRequest struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// validate enforces the channel/identifier pairing: the matching
// identifier is required and the other one must be absent.
func (r OTPRequest) validate() (types.Channel, string, bool) {
	channel := types.Channel(r.Type)
	if !channel.Valid() {
		return "", "", false
	}
	email := strings.TrimSpace(r.Email)
	phone := strings.TrimSpace(r.Phone)
	switch channel {
	case types.ChannelEmail:
		if !validEmail(email) || phone != "" {
			return "", "", false
		}
		return channel, email, true
	default:
		if phone == "" || email != "" {
			return "", "", false
		}
		return channel, phone, true
	}
}

type VerifyOTPRequest struct {
	OTPRequest
	OTP string `json:"otp"`
}

type SetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	Message      string           `json:"message"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	User         types.PublicUser `json:"user"`
}

type MeResponse struct {
	UserID int    `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func validEmail(s string) bool {
	if s == "" {
		return false
	}
	_, err := mail.ParseAddress(s)
	return err == nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", errors.New("invalid authorization")
	}
	return tok, nil
}
