package authpw

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tablero/api/internal/rbac"
	"tablero/api/internal/store"
)

type passwordReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// mockUserStore mirrors the bootstrap rule of the Postgres store: the first
// verified account becomes MASTER while no registered role exists.
type mockUserStore struct {
	mu         sync.Mutex
	users      map[string]store.User
	emailIndex map[string]string
	resets     map[string]passwordReset
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		resets:     make(map[string]passwordReset),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emailIndex[user.Email]; ok {
		return store.ErrDuplicate
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if user.VerificationToken != token || user.VerificationExpiresAt.Before(time.Now()) {
			continue
		}
		registered := 0
		for _, other := range m.users {
			if other.Role != string(rbac.RoleUnregistered) {
				registered++
			}
		}
		user.IsEmailVerified = true
		user.VerificationToken = ""
		if registered == 0 {
			user.Role = string(rbac.RoleMaster)
		}
		m.users[id] = user
		return user, nil
	}
	return store.User{}, errors.New("invalid token")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = passwordReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func newTestService() (*Service, *mockUserStore) {
	mockStore := newMockUserStore()
	svc := NewService(mockStore)
	svc.cost = bcrypt.MinCost
	return svc, mockStore
}

func signUpVerified(t *testing.T, svc *Service, email string) store.User {
	t.Helper()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{Name: "Test User", Email: email, Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	user, err := svc.VerifyEmail(context.Background(), resp.VerificationToken)
	if err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	return user
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{Name: "Test User", Email: " Test@Example.com ", Password: "secret1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.User.ID == "" || resp.VerificationToken == "" {
			t.Fatalf("expected id and verification token, got %+v", resp)
		}
		if resp.User.Role != string(rbac.RoleUnregistered) {
			t.Errorf("expected UNREGISTERED, got %s", resp.User.Role)
		}
		if resp.User.Email != "test@example.com" {
			t.Errorf("expected normalized email, got %s", resp.User.Email)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Name: "Other", Email: "test@example.com", Password: "secret1"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Name: "Test", Email: "test2@example.com", Password: "12345"})
		var input *InputError
		if !errors.As(err, &input) || input.Field != "password" {
			t.Errorf("expected password InputError, got %v", err)
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Name: "Test", Email: "not-an-email", Password: "secret1"})
		var input *InputError
		if !errors.As(err, &input) || input.Field != "email" {
			t.Errorf("expected email InputError, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestVerifyEmailPromotesOnlyTheFirstUser(t *testing.T) {
	svc, _ := newTestService()

	first := signUpVerified(t, svc, "first@example.com")
	if first.Role != string(rbac.RoleMaster) {
		t.Fatalf("expected first verified user to be MASTER, got %s", first.Role)
	}
	second := signUpVerified(t, svc, "second@example.com")
	if second.Role != string(rbac.RoleUnregistered) {
		t.Fatalf("expected second verified user to stay UNREGISTERED, got %s", second.Role)
	}
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if _, err := svc.VerifyEmail(ctx, "invalid-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	var input *InputError
	if _, err := svc.VerifyEmail(ctx, ""); !errors.As(err, &input) {
		t.Errorf("expected InputError for empty token, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()
	verified := signUpVerified(t, svc, "test@example.com")

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{Email: "TEST@example.com", Password: "secret1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != verified.ID {
			t.Errorf("expected %s, got %s", verified.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrongpassword"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "secret1"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unverified email", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{Name: "U", Email: "unverified@example.com", Password: "secret1"}); err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		_, err := svc.SignIn(ctx, SignInRequest{Email: "unverified@example.com", Password: "secret1"})
		if !errors.Is(err, ErrEmailNotVerified) {
			t.Errorf("expected ErrEmailNotVerified, got %v", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		user := mockStore.users[verified.ID]
		user.IsActive = false
		mockStore.users[verified.ID] = user
		defer func() {
			user.IsActive = true
			mockStore.users[verified.ID] = user
		}()
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "secret1"})
		if !errors.Is(err, ErrAccountDisabled) {
			t.Errorf("expected ErrAccountDisabled, got %v", err)
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	signUpVerified(t, svc, "test@example.com")

	t.Run("unknown email reveals nothing", func(t *testing.T) {
		reset, err := svc.RequestPasswordReset(ctx, "nonexistent@example.com")
		if err != nil || reset != nil {
			t.Fatalf("expected nil, nil; got %+v, %v", reset, err)
		}
	})

	t.Run("reset password with valid token", func(t *testing.T) {
		reset, err := svc.RequestPasswordReset(ctx, "test@example.com")
		if err != nil || reset == nil || reset.Token == "" {
			t.Fatalf("expected a reset token, got %+v, %v", reset, err)
		}
		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: reset.Token, NewPassword: "newsecret"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "secret1"}); err == nil {
			t.Error("expected old password to not work")
		}
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "newsecret"}); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
		if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: reset.Token, NewPassword: "another"}); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected used token to be rejected, got %v", err)
		}
	})

	t.Run("reset with short password", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "some-token", NewPassword: "short"})
		var input *InputError
		if !errors.As(err, &input) {
			t.Errorf("expected InputError, got %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	user := signUpVerified(t, svc, "test@example.com")

	if err := svc.ChangePassword(ctx, user.ID, "wrong-one", "newsecret"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "secret1", "newsecret"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "newsecret"}); err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
}
