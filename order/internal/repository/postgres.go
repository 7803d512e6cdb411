package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(c context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(c context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps orders and their lines in postgres. Status updates lock the order row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func unavailable(err error) error {
	if inErrors.As(err) != nil {
		return err
	}
	return inErrors.DependencyUnavailable(err, "order store")
}

const (
	codeUniqueViolation      = "23505"
	constraintOrderNumberKey = "orders_order_number_key"
)

func isDuplicateOrderNumber(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == codeUniqueViolation &&
		pgErr.ConstraintName == constraintOrderNumberKey
}

func rollback(c context.Context, tx pgx.Tx) {
	if err := tx.Rollback(c); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger := zerolog.Ctx(c)
		err = fmt.Errorf("failed rolling back transaction with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	}
}

func (s *PostgresStore) loadLines(c context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
		orders[i].Lines = []cartDomain.LineItem{}
	}

	rows, err := q.Query(
		c,
		`SELECT order_id, item_id, name, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		orderID, line, err := scanItem(rows)
		if err != nil {
			return err
		}
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	return rows.Err()
}

func (s *PostgresStore) getOne(c context.Context, q querier, query string, arg any) (domain.Order, error) {
	order, err := scanOrder(q.QueryRow(c, query, arg))
	if err != nil {
		return domain.Order{}, err
	}
	orders := []domain.Order{order}
	if err := s.loadLines(c, q, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (s *PostgresStore) Create(c context.Context, order domain.Order) (domain.Order, bool, error) {
	c, span := otel.Tracer.Start(c, "PostgresStore Create")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "PostgresStore Create").
		Str(log.KeyOrderID, order.ID.String()).
		Str(log.KeyCheckoutKey, order.CheckoutKey).
		Logger()

	fail := func(err error) (domain.Order, bool, error) {
		err = fmt.Errorf("failed creating order with error=%w", unavailable(err))
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Order{}, false, err
	}

	logger.Trace().Msg("initializing transaction")
	tx, err := s.pool.BeginTx(c, pgx.TxOptions{})
	if err != nil {
		return fail(err)
	}
	defer rollback(c, tx)

	var insertedID uuid.UUID
	err = tx.QueryRow(
		c,
		`INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (checkout_key) DO NOTHING
		RETURNING id`,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.CheckoutKey,
		order.DeliveryAddress,
		order.ContactInfo,
		order.Subtotal.Minor(),
		order.DeliveryFee.Minor(),
		order.Tax.Minor(),
		order.GrandTotal.Minor(),
		order.Currency,
		order.Status.String(),
		order.CreatedAt,
		order.UpdatedAt,
		order.StatusChangedAt,
		order.EstimatedDeliveryAt,
	).Scan(&insertedID)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Info().Msg("order for checkout key already exists")
		existing, err := s.getOne(c, tx, `SELECT `+orderColumns+` FROM orders WHERE checkout_key = $1`, order.CheckoutKey)
		if err != nil {
			return fail(err)
		}
		return existing, false, nil
	}
	if isDuplicateOrderNumber(err) {
		logger.Warn().Str(log.KeyOrderNumber, order.OrderNumber).Msg("order number already taken")
		return domain.Order{}, false, ErrDuplicateOrderNumber
	}
	if err != nil {
		return fail(err)
	}

	logger.Trace().Msg("inserting order items")
	if _, err := tx.CopyFrom(c, pgx.Identifier{"order_items"}, itemColumns, pgx.CopyFromRows(itemRows(order))); err != nil {
		return fail(err)
	}

	if err := tx.Commit(c); err != nil {
		return fail(err)
	}
	logger.Trace().Msg("created order")
	return order.Clone(), true, nil
}

func (s *PostgresStore) Get(c context.Context, id uuid.UUID) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "PostgresStore Get")
	defer span.End()

	order, err := s.getOne(c, s.pool, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, orderNotFound(id)
	}
	if err != nil {
		err = fmt.Errorf("failed getting order=%s with error=%w", id, unavailable(err))
		otel.RecordError(err, span)
		return domain.Order{}, err
	}
	return order, nil
}

func (s *PostgresStore) list(c context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.pool.Query(c, query, args...)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(c, s.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) List(c context.Context, direction domain.SortDirection) ([]domain.Order, error) {
	c, span := otel.Tracer.Start(c, "PostgresStore List")
	defer span.End()

	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, order_number DESC`
	if direction == domain.SortAscending {
		query = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at ASC, order_number ASC`
	}
	orders, err := s.list(c, query)
	if err != nil {
		err = fmt.Errorf("failed listing orders with error=%w", unavailable(err))
		otel.RecordError(err, span)
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) ListByUser(c context.Context, userID uuid.UUID) ([]domain.Order, error) {
	c, span := otel.Tracer.Start(c, "PostgresStore ListByUser")
	defer span.End()

	orders, err := s.list(
		c,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, order_number DESC`,
		userID,
	)
	if err != nil {
		err = fmt.Errorf("failed listing orders of user=%s with error=%w", userID, unavailable(err))
		otel.RecordError(err, span)
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) UpdateStatus(
	c context.Context,
	id uuid.UUID,
	apply func(order *domain.Order) error,
) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "PostgresStore UpdateStatus")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "PostgresStore UpdateStatus").
		Str(log.KeyOrderID, id.String()).
		Logger()

	fail := func(err error) (domain.Order, error) {
		err = fmt.Errorf("failed updating status of order=%s with error=%w", id, unavailable(err))
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return domain.Order{}, err
	}

	tx, err := s.pool.BeginTx(c, pgx.TxOptions{})
	if err != nil {
		return fail(err)
	}
	defer rollback(c, tx)

	logger.Trace().Msg("locking order row")
	order, err := s.getOne(c, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, orderNotFound(id)
	}
	if err != nil {
		return fail(err)
	}

	if err := apply(&order); err != nil {
		return domain.Order{}, err
	}

	_, err = tx.Exec(
		c,
		`UPDATE orders SET status = $2, updated_at = $3, status_changed_at = $4 WHERE id = $1`,
		id,
		order.Status.String(),
		order.UpdatedAt,
		order.StatusChangedAt,
	)
	if err != nil {
		return fail(err)
	}
	if err := tx.Commit(c); err != nil {
		return fail(err)
	}
	logger.Trace().Str(log.KeyOrderStatus, order.Status.String()).Msg("updated order status")
	return order, nil
}
