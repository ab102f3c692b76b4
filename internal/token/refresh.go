package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Adjeiq/Hearth/internal/model"
)

var (
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshExpired  = errors.New("refresh token expired")
)

// RefreshRepository persists refresh tokens. At most one row per subject.
type RefreshRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	GetBySubject(ctx context.Context, subject string) (*model.RefreshToken, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByToken(ctx context.Context, token string) error
}

// IssueRefresh returns the subject's active refresh token, creating one if
// none exists. A still-valid token is reused; an expired one is deleted and
// replaced.
func (s *Service) IssueRefresh(ctx context.Context, subject string) (*model.RefreshToken, error) {
	existing, err := s.refresh.GetBySubject(ctx, subject)
	if err != nil && !errors.Is(err, ErrRefreshNotFound) {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if existing != nil {
		if existing.ExpiresAt.After(time.Now()) {
			return existing, nil
		}
		if err := s.refresh.DeleteByID(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to delete expired refresh token: %w", err)
		}
	}

	refreshToken := &model.RefreshToken{
		ID:        uuid.New(),
		Subject:   subject,
		Token:     uuid.New().String(),
		ExpiresAt: time.Now().Add(s.refreshTTL),
		CreatedAt: time.Now(),
	}
	if err := s.refresh.Create(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return refreshToken, nil
}

// VerifyRefresh resolves an opaque refresh token string. An expired token is
// deleted as a side effect so it cannot be replayed to extend validity.
func (s *Service) VerifyRefresh(ctx context.Context, tokenString string) (*model.RefreshToken, error) {
	refreshToken, err := s.refresh.GetByToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if refreshToken.ExpiresAt.Before(time.Now()) {
		if err := s.refresh.DeleteByID(ctx, refreshToken.ID); err != nil {
			s.log.Error().Err(err).Str("subject", refreshToken.Subject).Msg("failed to delete expired refresh token")
		}
		return nil, ErrRefreshExpired
	}

	return refreshToken, nil
}

// Revoke deletes the refresh-token record. Revoking an absent token is not
// an error.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	return s.refresh.DeleteByToken(ctx, tokenString)
}
