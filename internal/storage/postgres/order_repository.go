package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(queryCtx, `
		INSERT INTO orders (
			id, customer_id, service_id, payment_status, currency,
			amount_minor, transaction_id, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.CustomerID, order.ServiceID, string(order.PaymentStatus),
		order.Currency, order.AmountMinor, order.TransactionID, order.Version,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	var status string

	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, customer_id, service_id, payment_status, currency,
		       amount_minor, transaction_id, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, &order.ServiceID, &status, &order.Currency,
		&order.AmountMinor, &order.TransactionID, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.PaymentStatus = domain.PaymentStatus(status)
	return order, nil
}

// Save применяет обновление с optimistic locking: строка перезаписывается
// только при совпадении версии, иначе конкурирующее уведомление уже успело
// применить переход.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `
		UPDATE orders
		SET payment_status = $1,
		    transaction_id = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4 AND version = $5
	`,
		string(order.PaymentStatus), order.TransactionID, order.UpdatedAt,
		order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		// Различаем отсутствие строки и конфликт версий.
		var exists bool
		if err := r.db.QueryRowContext(queryCtx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.OrderRepository = (*orderRepository)(nil)
