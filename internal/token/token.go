package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/internal/config"
)

// ErrUnauthenticated is returned for every verification failure. Parse
// errors, bad signatures and expired tokens are deliberately not
// distinguishable by the caller; the detail is logged only.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims are the identity attributes embedded in an access token.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity is the result of a successful verification.
type Identity struct {
	Subject string
	Roles   []string
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	refresh    RefreshRepository
	log        *zerolog.Logger
}

func NewService(cfg *config.JWTConfig, refresh RefreshRepository, log *zerolog.Logger) *Service {
	return &Service{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		refresh:    refresh,
		log:        log,
	}
}

// Issue signs an access token carrying the subject and roles.
func (s *Service) Issue(subject string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.log.Error().Err(err).Str("subject", subject).Msg("failed to sign access token")
		return "", err
	}
	return signed, nil
}

// Verify parses and checks signature and expiry. Every failure maps to
// ErrUnauthenticated.
func (s *Service) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		s.log.Debug().Err(err).Msg("token verification failed")
		return nil, ErrUnauthenticated
	}

	return &Identity{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}
