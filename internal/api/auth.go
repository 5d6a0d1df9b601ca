package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTokenExpiration is the default expiration time for JWT tokens.
	DefaultTokenExpiration = 12 * time.Hour

	// BcryptCost is the cost factor for bcrypt password hashing.
	BcryptCost = 12
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a JWT token is invalid.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidSecret is returned when the admin secret does not match.
	ErrInvalidSecret = errors.New("invalid admin secret")
)

// Claims represents the JWT claims for an operator.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthOptions configures the operator and admin credentials.
type AuthOptions struct {
	OperatorUsername string
	OperatorPassword string
	AdminSecret      string
	JWTSecret        string
	TokenExpiration  time.Duration
	// Cost overrides BcryptCost, mostly for tests.
	Cost int
}

// AuthService verifies operator logins, issues tokens and checks the
// admin secret. Only bcrypt hashes of the configured credentials are kept.
type AuthService struct {
	username        string
	passwordHash    []byte
	secretHash      []byte
	jwtSecret       []byte
	tokenExpiration time.Duration
}

// NewAuthService hashes the configured credentials. An empty JWT secret is
// replaced by a random one, which invalidates tokens across restarts.
func NewAuthService(opts AuthOptions) (*AuthService, error) {
	if opts.TokenExpiration == 0 {
		opts.TokenExpiration = DefaultTokenExpiration
	}
	if opts.Cost == 0 {
		opts.Cost = BcryptCost
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(opts.OperatorPassword), opts.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash operator password: %w", err)
	}
	secretHash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminSecret), opts.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash admin secret: %w", err)
	}

	jwtSecret := opts.JWTSecret
	if jwtSecret == "" {
		if jwtSecret, err = randomSecret(); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}

	return &AuthService{
		username:        opts.OperatorUsername,
		passwordHash:    passwordHash,
		secretHash:      secretHash,
		jwtSecret:       []byte(jwtSecret),
		tokenExpiration: opts.TokenExpiration,
	}, nil
}

// Login verifies the operator credentials and returns a signed token.
func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.GenerateToken(username)
}

// VerifySecret checks the admin secret against its hash.
func (s *AuthService) VerifySecret(secret string) error {
	if secret == "" {
		return ErrInvalidSecret
	}
	if err := bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken generates a new JWT token for the operator.
func (s *AuthService) GenerateToken(username string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.tokenExpiration)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func randomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
