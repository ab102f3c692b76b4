package transaction

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Adjeiq/Hearth/internal/model"
)

var ErrNotFound = errors.New("transaction not found")

type Repository interface {
	Create(ctx context.Context, t *model.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	List(ctx context.Context) ([]model.Transaction, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]model.Transaction, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]model.Transaction, error)
	ListByProperty(ctx context.Context, propertyID int64) ([]model.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TransactionStatus) error
	CompleteIfFullyPaid(ctx context.Context, id uuid.UUID) (bool, error)
	AddDocument(ctx context.Context, d *model.Document) error
	ListDocuments(ctx context.Context, transactionID uuid.UUID) ([]model.Document, error)
	VerifyDocument(ctx context.Context, documentID uuid.UUID) error
	InsertOutboxEvent(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

const transactionColumns = `id, transaction_number, property_id, buyer_id, seller_id, amount, status, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, t *model.Transaction) error {
	sql := `INSERT INTO transactions (id, transaction_number, property_id, buyer_id, seller_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, sql,
		t.ID, t.TransactionNumber, t.PropertyID, t.BuyerID, t.SellerID, t.Amount, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t := &model.Transaction{}
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&t.ID, &t.TransactionNumber, &t.PropertyID, &t.BuyerID, &t.SellerID,
		&t.Amount, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repo) List(ctx context.Context) ([]model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC`
	return r.queryMany(ctx, sql)
}

func (r *Repo) ListByBuyer(ctx context.Context, buyerID int64) ([]model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE buyer_id = $1 ORDER BY created_at DESC`
	return r.queryMany(ctx, sql, buyerID)
}

func (r *Repo) ListBySeller(ctx context.Context, sellerID int64) ([]model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE seller_id = $1 ORDER BY created_at DESC`
	return r.queryMany(ctx, sql, sellerID)
}

func (r *Repo) ListByProperty(ctx context.Context, propertyID int64) ([]model.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE property_id = $1 ORDER BY created_at DESC`
	return r.queryMany(ctx, sql, propertyID)
}

func (r *Repo) queryMany(ctx context.Context, sql string, args ...any) ([]model.Transaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(
			&t.ID, &t.TransactionNumber, &t.PropertyID, &t.BuyerID, &t.SellerID,
			&t.Amount, &t.Status, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TransactionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteIfFullyPaid flips the transaction to PAYMENT_COMPLETED only when
// the sum of its COMPLETED payments covers the transaction amount. The sum
// and the update run in one statement so the transition is computed from a
// consistent read of the payment list. Already-completed and terminal
// transactions are left untouched.
func (r *Repo) CompleteIfFullyPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	sql := `UPDATE transactions t
		SET status = $2, updated_at = NOW()
		WHERE t.id = $1
		  AND t.status NOT IN ($2, $3, $4)
		  AND (SELECT COALESCE(SUM(p.amount), 0) FROM payments p
		       WHERE p.transaction_id = t.id AND p.status = $5) >= t.amount`
	tag, err := r.db.Exec(ctx, sql, id,
		model.StatusPaymentCompleted, model.StatusCompleted, model.StatusCancelled,
		model.PaymentCompleted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) AddDocument(ctx context.Context, d *model.Document) error {
	sql := `INSERT INTO documents (id, transaction_id, name, document_type, url, verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, sql,
		d.ID, d.TransactionID, d.Name, d.DocumentType, d.URL, d.Verified,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *Repo) ListDocuments(ctx context.Context, transactionID uuid.UUID) ([]model.Document, error) {
	sql := `SELECT id, transaction_id, name, document_type, url, verified, created_at, updated_at
		FROM documents WHERE transaction_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, sql, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(
			&d.ID, &d.TransactionID, &d.Name, &d.DocumentType, &d.URL,
			&d.Verified, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) InsertOutboxEvent(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO transaction_outbox (event_type, payload, partition_key, status)
		 VALUES ($1, $2, $3, 'pending')`,
		eventType, payload, partitionKey)
	return err
}

func (r *Repo) VerifyDocument(ctx context.Context, documentID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET verified = TRUE, updated_at = NOW() WHERE id = $1`, documentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
