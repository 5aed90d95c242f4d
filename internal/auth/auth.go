// Package auth registers API accounts and issues HS256 access and refresh
// tokens for them.
package auth

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/qabilityp/namechecker/internal/model"
	"github.com/qabilityp/namechecker/internal/store"
)

// Token types carried in the token_type claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

const maxUsernameLen = 150

// Field validation messages.
const (
	msgRequired        = "This field is required."
	msgUsernameTaken   = "A user with that username already exists."
	msgUsernameTooLong = "Ensure this field has no more than 150 characters."
	msgUsernameInvalid = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

var (
	// ErrInvalidCredentials is returned by Obtain for an unknown user or a
	// wrong password.
	ErrInvalidCredentials = eris.New("No active account found with the given credentials")
	// ErrInvalidToken is returned by Refresh for a malformed, expired or
	// non-refresh token.
	ErrInvalidToken = eris.New("Token is invalid or expired")
)

// FieldErrors maps request fields to their validation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(fe[f], " "))
	}
	return "auth: invalid registration: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error)
	GetUser(ctx context.Context, username string) (*model.User, error)
}

// Claims are the JWT claims of both token types.
type Claims struct {
	TokenType string `json:"token_type"`
	UserID    string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful credential check.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Config configures a Service.
type Config struct {
	SigningKey string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      clockwork.Clock
}

// Service handles registration and token issuance.
type Service struct {
	users      UserStore
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
	cost       int
}

// NewService creates a Service. Zero TTLs default to 5 minutes for access
// tokens and one day for refresh tokens.
func NewService(users UserStore, cfg Config) *Service {
	s := &Service{
		users:      users,
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      cfg.Clock,
		cost:       bcrypt.DefaultCost,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = 5 * time.Minute
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 24 * time.Hour
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// Register validates and stores a new account. Usernames are NFKC-normalized
// before validation. Validation failures are returned as FieldErrors.
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = norm.NFKC.String(username)
	fe := FieldErrors{}
	switch {
	case username == "":
		fe.add("username", msgRequired)
	case len([]rune(username)) > maxUsernameLen:
		fe.add("username", msgUsernameTooLong)
	case !usernamePattern.MatchString(username):
		fe.add("username", msgUsernameInvalid)
	}
	if password == "" {
		fe.add("password", msgRequired)
	}
	if len(fe) > 0 {
		return nil, fe
	}

	existing, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, eris.Wrap(err, "auth: check username")
	}
	if existing != nil {
		return nil, FieldErrors{"username": {msgUsernameTaken}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, FieldErrors{"password": {"Ensure this field has no more than 72 bytes."}}
		}
		return nil, eris.Wrap(err, "auth: hash password")
	}

	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, FieldErrors{"username": {msgUsernameTaken}}
		}
		return nil, eris.Wrap(err, "auth: create user")
	}
	zap.L().Info("auth: user registered", zap.String("username", user.Username))
	return user, nil
}

// Obtain checks credentials and issues an access and refresh token.
func (s *Service) Obtain(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.users.GetUser(ctx, norm.NFKC.String(username))
	if err != nil {
		return nil, eris.Wrap(err, "auth: get user")
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, eris.Wrap(err, "auth: verify password")
	}

	access, err := s.sign(user.ID, TokenAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user.ID, TokenRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh issues a new access token for a valid refresh token.
func (s *Service) Refresh(_ context.Context, refreshToken string) (string, error) {
	claims, err := s.Validate(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenRefresh {
		return "", ErrInvalidToken
	}
	return s.sign(claims.UserID, TokenAccess, s.accessTTL)
}

// Validate parses a token signed by this service.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		zap.L().Debug("auth: token rejected", zap.Error(err))
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) sign(userID, tokenType string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenType: tokenType,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", eris.Wrapf(err, "auth: sign %s token", tokenType)
	}
	return signed, nil
}
