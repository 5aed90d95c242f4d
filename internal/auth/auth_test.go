package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qabilityp/namechecker/internal/model"
	"github.com/qabilityp/namechecker/internal/store"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	args := m.Called(ctx, username, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func newTestService(users UserStore, clock clockwork.Clock) *Service {
	s := NewService(users, Config{SigningKey: "test-key", Issuer: "namechecker", Clock: clock})
	s.cost = bcrypt.MinCost
	return s
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestRegister_StoresBcryptHash(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "testuser").Return(nil, nil).Once()
	users.On("CreateUser", mock.Anything, "testuser", mock.MatchedBy(func(h string) bool {
		return bcrypt.CompareHashAndPassword([]byte(h), []byte("testpass123")) == nil
	})).Return(&model.User{ID: "u1", Username: "testuser"}, nil).Once()

	svc := newTestService(users, nil)
	u, err := svc.Register(context.Background(), "testuser", "testpass123")
	require.NoError(t, err)
	assert.Equal(t, "testuser", u.Username)
	users.AssertExpectations(t)
}

func TestRegister_FieldErrors(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     FieldErrors
	}{
		{"both missing", "", "", FieldErrors{"username": {msgRequired}, "password": {msgRequired}}},
		{"password missing", "bob", "", FieldErrors{"password": {msgRequired}}},
		{"too long", strings.Repeat("a", 151), "pw", FieldErrors{"username": {msgUsernameTooLong}}},
		{"bad characters", "bob smith!", "pw", FieldErrors{"username": {msgUsernameInvalid}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserStore{}
			svc := newTestService(users, nil)

			_, err := svc.Register(context.Background(), tt.username, tt.password)

			var fe FieldErrors
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.want, fe)
			users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_AllowedUsernameCharacters(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "a.b@c+d-e_f").Return(nil, nil).Once()
	users.On("CreateUser", mock.Anything, "a.b@c+d-e_f", mock.Anything).
		Return(&model.User{ID: "u1", Username: "a.b@c+d-e_f"}, nil).Once()

	_, err := newTestService(users, nil).Register(context.Background(), "a.b@c+d-e_f", "pw")
	assert.NoError(t, err)
}

func TestRegister_NormalizesUsername(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "bob").Return(nil, nil).Once()
	users.On("CreateUser", mock.Anything, "bob", mock.Anything).
		Return(&model.User{ID: "u1", Username: "bob"}, nil).Once()

	// Fullwidth letters fold to ASCII under NFKC.
	u, err := newTestService(users, nil).Register(context.Background(), "\uff42\uff4f\uff42", "pw")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
	users.AssertExpectations(t)
}

func TestRegister_UnicodeLettersAllowed(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "José").Return(nil, nil).Once()
	users.On("CreateUser", mock.Anything, "José", mock.Anything).
		Return(&model.User{ID: "u1", Username: "José"}, nil).Once()

	_, err := newTestService(users, nil).Register(context.Background(), "José", "pw")
	assert.NoError(t, err)
}

func TestRegister_UsernameTaken(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "alice").Return(&model.User{ID: "u1", Username: "alice"}, nil).Once()

	_, err := newTestService(users, nil).Register(context.Background(), "alice", "pw")

	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{msgUsernameTaken}, fe["username"])
}

func TestRegister_DuplicateRace(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "alice").Return(nil, nil).Once()
	users.On("CreateUser", mock.Anything, "alice", mock.Anything).
		Return(nil, eris.Wrap(store.ErrDuplicate, "sqlite: username alice")).Once()

	_, err := newTestService(users, nil).Register(context.Background(), "alice", "pw")

	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{msgUsernameTaken}, fe["username"])
}

func TestRegister_StoreFailure(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "alice").Return(nil, errors.New("connection refused")).Once()

	_, err := newTestService(users, nil).Register(context.Background(), "alice", "pw")
	require.Error(t, err)
	var fe FieldErrors
	assert.False(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "auth: check username")
}

func TestObtain_IssuesTokenPair(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "testuser").
		Return(&model.User{ID: "u1", Username: "testuser", PasswordHash: hashed(t, "testpass123")}, nil)

	svc := newTestService(users, clock)
	pair, err := svc.Obtain(context.Background(), "testuser", "testpass123")
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	access, err := svc.Validate(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, TokenAccess, access.TokenType)
	assert.Equal(t, "u1", access.UserID)
	assert.Equal(t, "namechecker", access.Issuer)
	assert.NotEmpty(t, access.ID)
	assert.Equal(t, clock.Now().Add(5*time.Minute).Unix(), access.ExpiresAt.Unix())

	refresh, err := svc.Validate(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, TokenRefresh, refresh.TokenType)
	assert.Equal(t, clock.Now().Add(24*time.Hour).Unix(), refresh.ExpiresAt.Unix())
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestObtain_InvalidCredentials(t *testing.T) {
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "testuser").
		Return(&model.User{ID: "u1", Username: "testuser", PasswordHash: hashed(t, "testpass123")}, nil)
	users.On("GetUser", mock.Anything, "ghost").Return(nil, nil)

	svc := newTestService(users, nil)

	_, err := svc.Obtain(context.Background(), "testuser", "wrongpass")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = svc.Obtain(context.Background(), "ghost", "whatever")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestRefresh(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "testuser").
		Return(&model.User{ID: "u1", Username: "testuser", PasswordHash: hashed(t, "pw")}, nil)
	svc := newTestService(users, clock)

	pair, err := svc.Obtain(context.Background(), "testuser", "pw")
	require.NoError(t, err)

	t.Run("refresh token yields access token", func(t *testing.T) {
		access, err := svc.Refresh(context.Background(), pair.Refresh)
		require.NoError(t, err)
		claims, err := svc.Validate(access)
		require.NoError(t, err)
		assert.Equal(t, TokenAccess, claims.TokenType)
		assert.Equal(t, "u1", claims.UserID)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		_, err := svc.Refresh(context.Background(), pair.Access)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := svc.Refresh(context.Background(), "not-a-token")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("other key is rejected", func(t *testing.T) {
		other := NewService(users, Config{SigningKey: "other-key", Issuer: "namechecker", Clock: clock})
		_, err := other.Refresh(context.Background(), pair.Refresh)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}

func TestRefresh_Expired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	users := &mockUserStore{}
	users.On("GetUser", mock.Anything, "testuser").
		Return(&model.User{ID: "u1", Username: "testuser", PasswordHash: hashed(t, "pw")}, nil)
	svc := newTestService(users, clock)

	pair, err := svc.Obtain(context.Background(), "testuser", "pw")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	svc := newTestService(&mockUserStore{}, nil)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		TokenType: TokenRefresh,
		UserID:    "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "namechecker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestFieldErrors_Error(t *testing.T) {
	fe := FieldErrors{"username": {"a"}, "password": {"b"}}
	assert.Equal(t, "auth: invalid registration: password: b; username: a", fe.Error())
}
