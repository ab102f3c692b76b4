package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Adjeiq/Hearth/internal/model"
)

var (
	ErrNotFound            = errors.New("payment not found")
	ErrRefundNotFound      = errors.New("refund not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrOverpayment means the new payment would push the total paid past
	// the transaction amount.
	ErrOverpayment = errors.New("payment exceeds remaining transaction balance")
)

type Repository interface {
	CreateReserved(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByReference(ctx context.Context, reference string) (*model.Payment, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error
	CreateRefund(ctx context.Context, rf *model.Refund) error
	GetRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error)
	ListRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error)
	ListUnsettledRefunds(ctx context.Context, limit int) ([]model.Refund, error)
	UpdateRefundStatus(ctx context.Context, id uuid.UUID, status string) error
	InsertOutboxEvent(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

const paymentColumns = `id, transaction_id, payment_reference, amount, status, payment_method, payment_date, created_at, updated_at`

// CreateReserved inserts the payment only if the transaction's balance still
// covers it. The transaction row is locked first so concurrent initiations
// serialize, and every payment not yet failed or refunded counts against the
// balance, an in-flight payment reserves its amount.
func (r *Repo) CreateReserved(ctx context.Context, p *model.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var txnAmount decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT amount FROM transactions WHERE id = $1 FOR UPDATE`, p.TransactionID,
	).Scan(&txnAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}

	var reserved decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments
		 WHERE transaction_id = $1 AND status NOT IN ($2, $3)`,
		p.TransactionID, model.PaymentFailed, model.PaymentRefunded,
	).Scan(&reserved)
	if err != nil {
		return err
	}

	if reserved.Add(p.Amount).GreaterThan(txnAmount) {
		return ErrOverpayment
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payments (id, transaction_id, payment_reference, amount, status, payment_method, payment_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		p.ID, p.TransactionID, p.PaymentReference, p.Amount, p.Status, p.PaymentMethod, p.PaymentDate,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.queryOne(ctx, sql, id)
}

func (r *Repo) GetByReference(ctx context.Context, reference string) (*model.Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_reference = $1`
	return r.queryOne(ctx, sql, reference)
}

func (r *Repo) queryOne(ctx context.Context, sql string, arg any) (*model.Payment, error) {
	p := &model.Payment{}
	err := r.db.QueryRow(ctx, sql, arg).Scan(
		&p.ID, &p.TransactionID, &p.PaymentReference, &p.Amount, &p.Status,
		&p.PaymentMethod, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, sql, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(
			&p.ID, &p.TransactionID, &p.PaymentReference, &p.Amount, &p.Status,
			&p.PaymentMethod, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CreateRefund(ctx context.Context, rf *model.Refund) error {
	sql := `INSERT INTO refunds (id, payment_id, external_refund_id, amount, status, reason, refund_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, sql,
		rf.ID, rf.PaymentID, rf.ExternalRefundID, rf.Amount, rf.Status, rf.Reason, rf.RefundDate,
	).Scan(&rf.CreatedAt, &rf.UpdatedAt)
}

func (r *Repo) GetRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	sql := `SELECT id, payment_id, external_refund_id, amount, status, reason, refund_date, created_at, updated_at
		FROM refunds WHERE id = $1`
	rf := &model.Refund{}
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&rf.ID, &rf.PaymentID, &rf.ExternalRefundID, &rf.Amount, &rf.Status,
		&rf.Reason, &rf.RefundDate, &rf.CreatedAt, &rf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *Repo) ListRefundsByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	sql := `SELECT id, payment_id, external_refund_id, amount, status, reason, refund_date, created_at, updated_at
		FROM refunds WHERE payment_id = $1 ORDER BY created_at`
	return r.queryRefunds(ctx, sql, paymentID)
}

// ListUnsettledRefunds returns refunds the processor may still move, for
// the periodic sync worker.
func (r *Repo) ListUnsettledRefunds(ctx context.Context, limit int) ([]model.Refund, error) {
	sql := `SELECT id, payment_id, external_refund_id, amount, status, reason, refund_date, created_at, updated_at
		FROM refunds WHERE status NOT IN ('succeeded', 'failed', 'canceled')
		ORDER BY created_at LIMIT $1`
	return r.queryRefunds(ctx, sql, limit)
}

func (r *Repo) queryRefunds(ctx context.Context, sql string, arg any) ([]model.Refund, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Refund
	for rows.Next() {
		var rf model.Refund
		if err := rows.Scan(
			&rf.ID, &rf.PaymentID, &rf.ExternalRefundID, &rf.Amount, &rf.Status,
			&rf.Reason, &rf.RefundDate, &rf.CreatedAt, &rf.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE refunds SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRefundNotFound
	}
	return nil
}

func (r *Repo) InsertOutboxEvent(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO transaction_outbox (event_type, payload, partition_key, status)
		 VALUES ($1, $2, $3, 'pending')`,
		eventType, payload, partitionKey)
	return err
}
