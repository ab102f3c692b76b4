package token

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Adjeiq/Hearth/internal/model"
)

type RefreshRepo struct {
	db *pgxpool.Pool
}

func NewRefreshRepository(db *pgxpool.Pool) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	sql := `INSERT INTO refresh_tokens (id, subject, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, sql, token.ID, token.Subject, token.Token, token.ExpiresAt, token.CreatedAt)
	return err
}

func (r *RefreshRepo) GetByToken(ctx context.Context, tokenString string) (*model.RefreshToken, error) {
	sql := `SELECT id, subject, token, expires_at, created_at FROM refresh_tokens WHERE token = $1`
	return r.scanOne(r.db.QueryRow(ctx, sql, tokenString))
}

func (r *RefreshRepo) GetBySubject(ctx context.Context, subject string) (*model.RefreshToken, error) {
	sql := `SELECT id, subject, token, expires_at, created_at FROM refresh_tokens WHERE subject = $1`
	return r.scanOne(r.db.QueryRow(ctx, sql, subject))
}

func (r *RefreshRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	return err
}

func (r *RefreshRepo) DeleteByToken(ctx context.Context, tokenString string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, tokenString)
	return err
}

func (r *RefreshRepo) scanOne(row pgx.Row) (*model.RefreshToken, error) {
	token := &model.RefreshToken{}
	err := row.Scan(&token.ID, &token.Subject, &token.Token, &token.ExpiresAt, &token.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}
