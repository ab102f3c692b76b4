package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/model"
	"github.com/Adjeiq/Hearth/pkg/rest"
	"github.com/Adjeiq/Hearth/pkg/types"
)

// UserRepository resolves login credentials. Full user CRUD lives in the
// user service; this repository only reads.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type UserRepo struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{db: db}
}

var ErrUserNotFound = errors.New("user not found")

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	sql := `SELECT id, email, password_hash, roles, created_at, updated_at FROM users WHERE email = $1`
	user := &model.User{}
	err := r.db.QueryRow(ctx, sql, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Roles, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

type AuthHandler struct {
	tokens *Service
	users  UserRepository
}

func NewAuthHandler(tokens *Service, users UserRepository) *AuthHandler {
	return &AuthHandler{tokens: tokens, users: users}
}

var validate = validator.New()

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		// Same response whether the account is unknown or the password is
		// wrong.
		logger.Warn().Err(err).Msg("login failed")
		rest.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		logger.Warn().Str("email", req.Email).Msg("login failed: bad password")
		rest.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondWithTokens(w, r, user.Email, user.Roles)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	refreshToken, err := h.tokens.VerifyRefresh(ctx, req.RefreshToken)
	if err != nil {
		logger.Warn().Err(err).Msg("refresh failed")
		rest.Error(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := h.users.GetByEmail(ctx, refreshToken.Subject)
	if err != nil {
		logger.Error().Err(err).Msg("refresh failed: subject lookup")
		rest.Error(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	h.respondWithTokens(w, r, user.Email, user.Roles)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.tokens.Revoke(ctx, req.RefreshToken); err != nil {
		logger.Error().Err(err).Msg("failed to revoke refresh token")
		rest.Error(w, http.StatusInternalServerError, "failed to revoke token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, r *http.Request, email string, roles []string) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	access, err := h.tokens.Issue(email, roles)
	if err != nil {
		rest.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	refresh, err := h.tokens.IssueRefresh(ctx, email)
	if err != nil {
		logger.Error().Err(err).Msg("failed to issue refresh token")
		rest.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	rest.JSON(w, http.StatusOK, types.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(h.tokens.AccessTTL()),
	})
}
