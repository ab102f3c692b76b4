package token

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/internal/model"
)

type fakeRefreshRepo struct {
	bySubject map[string]*model.RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{bySubject: make(map[string]*model.RefreshToken)}
}

func (f *fakeRefreshRepo) Create(_ context.Context, token *model.RefreshToken) error {
	f.bySubject[token.Subject] = token
	return nil
}

func (f *fakeRefreshRepo) GetByToken(_ context.Context, tokenString string) (*model.RefreshToken, error) {
	for _, t := range f.bySubject {
		if t.Token == tokenString {
			return t, nil
		}
	}
	return nil, ErrRefreshNotFound
}

func (f *fakeRefreshRepo) GetBySubject(_ context.Context, subject string) (*model.RefreshToken, error) {
	if t, ok := f.bySubject[subject]; ok {
		return t, nil
	}
	return nil, ErrRefreshNotFound
}

func (f *fakeRefreshRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	for subject, t := range f.bySubject {
		if t.ID == id {
			delete(f.bySubject, subject)
		}
	}
	return nil
}

func (f *fakeRefreshRepo) DeleteByToken(_ context.Context, tokenString string) error {
	for subject, t := range f.bySubject {
		if t.Token == tokenString {
			delete(f.bySubject, subject)
		}
	}
	return nil
}

func newTestService(t *testing.T, accessTTL, refreshTTL time.Duration) (*Service, *fakeRefreshRepo) {
	t.Helper()
	log := zerolog.Nop()
	repo := newFakeRefreshRepo()
	svc := NewService(&config.JWTConfig{
		Secret:     "test-secret-key",
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}, repo, &log)
	return svc, repo
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, time.Hour)

	signed, err := svc.Issue("buyer@example.com", []string{"USER", "AGENT"})
	require.NoError(t, err)

	identity, err := svc.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", identity.Subject)
	assert.Equal(t, []string{"USER", "AGENT"}, identity.Roles)
}

func TestVerifyFailsUniformly(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, time.Hour)
	expiredSvc, _ := newTestService(t, -time.Minute, time.Hour)

	expired, err := expiredSvc.Issue("buyer@example.com", []string{"USER"})
	require.NoError(t, err)

	otherSvc := func() *Service {
		log := zerolog.Nop()
		return NewService(&config.JWTConfig{Secret: "different-secret", AccessTTL: time.Hour}, nil, &log)
	}()
	foreign, err := otherSvc.Issue("buyer@example.com", []string{"USER"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"expired", expired},
		{"wrong signature", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := svc.Verify(tt.token)
			assert.Nil(t, identity)
			// Every failure mode collapses to the same error.
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestIssueRefreshReusesValidToken(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, time.Hour)
	ctx := context.Background()

	first, err := svc.IssueRefresh(ctx, "buyer@example.com")
	require.NoError(t, err)

	second, err := svc.IssueRefresh(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token, "a valid refresh token must be reused")
}

func TestIssueRefreshReplacesExpiredToken(t *testing.T) {
	svc, repo := newTestService(t, time.Hour, time.Hour)
	ctx := context.Background()

	first, err := svc.IssueRefresh(ctx, "buyer@example.com")
	require.NoError(t, err)

	// Force expiry instead of sleeping.
	repo.bySubject["buyer@example.com"].ExpiresAt = time.Now().Add(-time.Minute)

	second, err := svc.IssueRefresh(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	// The replaced token is gone.
	_, err = svc.VerifyRefresh(ctx, first.Token)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
}

func TestVerifyRefreshDeletesExpired(t *testing.T) {
	svc, repo := newTestService(t, time.Hour, time.Hour)
	ctx := context.Background()

	issued, err := svc.IssueRefresh(ctx, "buyer@example.com")
	require.NoError(t, err)

	repo.bySubject["buyer@example.com"].ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.VerifyRefresh(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrRefreshExpired)

	// Expired verification removes the record; it cannot be replayed.
	_, err = svc.VerifyRefresh(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, time.Hour, time.Hour)
	ctx := context.Background()

	issued, err := svc.IssueRefresh(ctx, "buyer@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, issued.Token))
	require.NoError(t, svc.Revoke(ctx, issued.Token))

	_, err = svc.VerifyRefresh(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrRefreshNotFound)
}
