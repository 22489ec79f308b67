package services

// In-memory fakes shared by the service tests.

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/fintra/authserver/internal/notify"
	"github.com/fintra/authserver/internal/store"
	"github.com/fintra/authserver/types"
)

type memOtpRepo struct {
	records []*types.OtpRecord
}

func (m *memOtpRepo) find(channel types.Channel, identifier string) *types.OtpRecord {
	for _, r := range m.records {
		if channel == types.ChannelEmail && r.Email == identifier && r.Email != "" {
			return r
		}
		if channel == types.ChannelMobile && r.Phone == identifier && r.Phone != "" {
			return r
		}
	}
	return nil
}

func (m *memOtpRepo) GetByIdentifier(_ context.Context, channel types.Channel, identifier string) (types.OtpRecord, error) {
	if r := m.find(channel, identifier); r != nil {
		return *r, nil
	}
	return types.OtpRecord{}, store.ErrNotFound
}

func (m *memOtpRepo) UpsertCode(_ context.Context, channel types.Channel, identifier, code string, expiresAt time.Time) error {
	r := m.find(channel, identifier)
	if r == nil {
		r = &types.OtpRecord{ID: len(m.records) + 1}
		if channel == types.ChannelEmail {
			r.Email = identifier
		} else {
			r.Phone = identifier
		}
		m.records = append(m.records, r)
	}
	if channel == types.ChannelEmail {
		r.EmailCode = code
		r.EmailCodeExpiresAt = expiresAt
	} else {
		r.MobileCode = code
		r.MobileCodeExpiresAt = expiresAt
	}
	return nil
}

func (m *memOtpRepo) MarkVerified(_ context.Context, channel types.Channel, identifier string) error {
	r := m.find(channel, identifier)
	if r == nil {
		return store.ErrNotFound
	}
	if channel == types.ChannelEmail {
		r.IsEmailVerified = true
	} else {
		r.IsMobileVerified = true
	}
	return nil
}

type memUserRepo struct {
	users  map[string]*types.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*types.User)}
}

func (m *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return *u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	if u, ok := m.users[email]; ok {
		return *u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	if _, ok := m.users[user.Email]; ok {
		return types.User{}, store.ErrConflict
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.Email] = &user
	return user, nil
}

func (m *memUserRepo) SetVerification(_ context.Context, email string, phoneVerified, emailVerified bool) error {
	u, ok := m.users[email]
	if !ok {
		return store.ErrNotFound
	}
	u.IsPhoneVerified = phoneVerified
	u.IsEmailVerified = emailVerified
	return nil
}

func (m *memUserRepo) SetPassword(_ context.Context, email, passwordHash string) error {
	u, ok := m.users[email]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeSender struct {
	emails   []notify.Message
	smses    []notify.Message
	emailErr error
	smsErr   error
}

func (f *fakeSender) SendEmail(_ context.Context, msg notify.Message) error {
	if f.emailErr != nil {
		return f.emailErr
	}
	f.emails = append(f.emails, msg)
	return nil
}

func (f *fakeSender) SendSMS(_ context.Context, msg notify.Message) error {
	if f.smsErr != nil {
		return f.smsErr
	}
	f.smses = append(f.smses, msg)
	return nil
}

// memObjectStorage is an in-memory storage backend for signup tests.
type memObjectStorage struct {
	objects map[string][]byte
	putErr  error
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: make(map[string][]byte)}
}

func (m *memObjectStorage) EnsureBucket(context.Context) error { return nil }

func (m *memObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memObjectStorage) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *memObjectStorage) Delete(context.Context, string) error { return nil }

func (m *memObjectStorage) Bucket() string { return "test-bucket" }

func (m *memObjectStorage) URL(key string) string { return "http://storage.test/test-bucket/" + key }
