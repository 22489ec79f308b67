//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fintra/authserver/config"
	"github.com/fintra/authserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("user_%d@example.com", suffix)
	phone := fmt.Sprintf("+1555%08d", suffix%100000000)
	password := "testpass123!"

	if err := signup(t, baseURL, email, phone); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := requestOTP(t, baseURL, "EMAIL", email, ""); err != nil {
		t.Fatalf("request email otp: %v", err)
	}
	emailCode, err := fetchOTPCode("email", email, "email_code")
	if err != nil {
		t.Fatalf("fetch email code: %v", err)
	}
	if err := verifyOTP(t, baseURL, "EMAIL", email, "", emailCode); err != nil {
		t.Fatalf("verify email otp: %v", err)
	}

	if err := requestOTP(t, baseURL, "MOBILE", "", phone); err != nil {
		t.Fatalf("request mobile otp: %v", err)
	}
	mobileCode, err := fetchOTPCode("phone", phone, "mobile_code")
	if err != nil {
		t.Fatalf("fetch mobile code: %v", err)
	}
	if err := verifyOTP(t, baseURL, "MOBILE", "", phone, mobileCode); err != nil {
		t.Fatalf("verify mobile otp: %v", err)
	}

	tokens, err := setPassword(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("set password returned incomplete tokens: %+v", tokens)
	}

	loginResp, err := login(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginResp.User.Email != email {
		t.Fatalf("unexpected login user email: %q", loginResp.User.Email)
	}
	if !loginResp.User.IsEmailVerified || !loginResp.User.IsPhoneVerified {
		t.Fatalf("expected both channels verified: %+v", loginResp.User)
	}

	refreshed, err := refresh(t, baseURL, loginResp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatalf("refresh returned empty access token")
	}

	if err := me(t, baseURL, refreshed.AccessToken, email); err != nil {
		t.Fatalf("me: %v", err)
	}
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"isEmailVerified"`
		IsPhoneVerified bool   `json:"isPhoneVerified"`
	} `json:"user"`
}

func signup(t *testing.T, baseURL, email, phone string) error {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("email", email)
	_ = writer.WriteField("userName", "e2e_user")
	_ = writer.WriteField("firstName", "End")
	_ = writer.WriteField("lastName", "ToEnd")
	_ = writer.WriteField("phoneNumber", phone)
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/auth/signup", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("signup status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func requestOTP(t *testing.T, baseURL, otpType, email, phone string) error {
	t.Helper()
	return postExpectOK(baseURL+"/auth/request-otp", map[string]string{
		"type":  otpType,
		"email": email,
		"phone": phone,
	}, nil)
}

func verifyOTP(t *testing.T, baseURL, otpType, email, phone, code string) error {
	t.Helper()
	return postExpectOK(baseURL+"/auth/verify-otp", map[string]string{
		"type":  otpType,
		"email": email,
		"phone": phone,
		"otp":   code,
	}, nil)
}

func setPassword(t *testing.T, baseURL, email, password string) (tokenResponse, error) {
	t.Helper()
	var parsed tokenResponse
	err := postExpectOK(baseURL+"/auth/set-password", map[string]string{
		"email":    email,
		"password": password,
	}, &parsed)
	return parsed, err
}

func login(t *testing.T, baseURL, email, password string) (loginResponse, error) {
	t.Helper()
	var parsed loginResponse
	err := postExpectOK(baseURL+"/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &parsed)
	return parsed, err
}

func refresh(t *testing.T, baseURL, refreshToken string) (tokenResponse, error) {
	t.Helper()
	var parsed tokenResponse
	err := postExpectOK(baseURL+"/auth/refresh-token", map[string]string{
		"refreshToken": refreshToken,
	}, &parsed)
	return parsed, err
}

func me(t *testing.T, baseURL, accessToken, email string) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/auth/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("me status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if parsed.Email != email {
		return fmt.Errorf("unexpected email in claims: %q", parsed.Email)
	}
	return nil
}

func postExpectOK(url string, payload map[string]string, out any) error {
	// Empty-string fields are dropped so the channel validation sees
	// only the identifier that matches the requested type.
	filtered := make(map[string]string, len(payload))
	for k, v := range payload {
		if v != "" {
			filtered[k] = v
		}
	}
	body, err := json.Marshal(filtered)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchOTPCode(column, identifier, codeColumn string) (string, error) {
	cfg := config.LoadConfig()
	db, err := sql.Open("postgres", buildPostgresURL(cfg))
	if err != nil {
		return "", err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM user_otps WHERE %s = $1", codeColumn, column)
	var code sql.NullString
	if err := db.QueryRowContext(ctx, query, identifier).Scan(&code); err != nil {
		return "", err
	}
	if !code.Valid || code.String == "" {
		return "", fmt.Errorf("no code stored for %s", identifier)
	}
	return code.String, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	db, err := sql.Open("postgres", buildPostgresURL(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, buildPostgresURL(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_ACCESS_SECRET", "test-access-secret")
	_ = os.Setenv("JWT_REFRESH_SECRET", "test-refresh-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "fintra")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "fintra_auth")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "profile-images")
	_ = os.Setenv("MQ_BACKEND", "none")
	_ = os.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
