package dataservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/aswathylr-builds/storefront-payments/models"
)

// mysqlDuplicateEntry is the server error number for a duplicate key.
const mysqlDuplicateEntry = 1062

// Store is the MySQL implementation of the order ledger and the
// inventory store.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// InitDB creates the schema if it does not exist.
func InitDB(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
  id                VARCHAR(64) PRIMARY KEY,
  order_no          VARCHAR(32) NOT NULL UNIQUE,
  pay_id            VARCHAR(64) NULL,
  customer_email    VARCHAR(255) NOT NULL,
  customer_name     VARCHAR(255) NOT NULL,
  total_amount      DECIMAL(12,2) NOT NULL,
  currency          CHAR(3) NOT NULL,
  status            ENUM('initiated','in_progress','confirmed','cancelled','declined','settled','refunded','partially_refunded') NOT NULL,
  cart_json         TEXT NOT NULL,
  payment_method    VARCHAR(64) NOT NULL DEFAULT '',
  created_at        DATETIME NOT NULL,
  status_changed_at DATETIME NOT NULL,
  INDEX (pay_id),
  INDEX (status)
)`,
		`CREATE TABLE IF NOT EXISTS order_seq (
  day CHAR(8) PRIMARY KEY,
  seq BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS inventory (
  product_id     VARCHAR(64) PRIMARY KEY,
  stock          INT NOT NULL,
  last_order_qty INT NOT NULL DEFAULT 0,
  updated_at     DATETIME NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS inventory_adjustments (
  order_id   VARCHAR(64) PRIMARY KEY,
  created_at DATETIME NOT NULL
)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order models.Order) error {
	cartJSON, err := json.Marshal(order.Cart)
	if err != nil {
		return fmt.Errorf("failed to serialize cart: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO orders
  (id, order_no, pay_id, customer_email, customer_name, total_amount, currency, status, cart_json, payment_method, created_at, status_changed_at)
VALUES
  (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNo,
		order.PayID,
		order.Customer.Email,
		order.Customer.Name,
		order.TotalAmount,
		order.Currency,
		string(order.Status),
		string(cartJSON),
		order.PaymentMethod,
		order.CreatedAt,
		order.StatusChangedAt,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return s.scanOrder(s.DB.QueryRowContext(ctx, orderQuery+` WHERE id = ?`, orderID))
}

func (s *Store) GetOrderByPayID(ctx context.Context, payID string) (models.Order, error) {
	return s.scanOrder(s.DB.QueryRowContext(ctx, orderQuery+` WHERE pay_id = ?`, payID))
}

const orderQuery = `
SELECT id, order_no, COALESCE(pay_id, ''), customer_email, customer_name, total_amount, currency, status, cart_json, payment_method, created_at, status_changed_at
FROM orders`

func (s *Store) scanOrder(row *sql.Row) (models.Order, error) {
	var (
		o        models.Order
		status   string
		cartJSON string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNo,
		&o.PayID,
		&o.Customer.Email,
		&o.Customer.Name,
		&o.TotalAmount,
		&o.Currency,
		&status,
		&cartJSON,
		&o.PaymentMethod,
		&o.CreatedAt,
		&o.StatusChangedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("order not found")
	}
	if err != nil {
		return o, err
	}
	o.Status = models.OrderStatus(status)
	if err := json.Unmarshal([]byte(cartJSON), &o.Cart); err != nil {
		return o, fmt.Errorf("failed to deserialize cart: %w", err)
	}
	return o, nil
}

func (s *Store) SetPaymentID(ctx context.Context, orderID, payID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE orders SET pay_id = ? WHERE id = ?`, payID, orderID)
	return err
}

func (s *Store) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE orders SET status = ?, status_changed_at = ? WHERE id = ?`,
		string(status), at, orderID)
	return err
}

// NextOrderSequence advances the per-day counter atomically. The
// LAST_INSERT_ID(expr) trick makes both the initial insert and the
// increment return the issued value without a second round trip.
func (s *Store) NextOrderSequence(ctx context.Context, day string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO order_seq (day, seq) VALUES (?, LAST_INSERT_ID(1))
ON DUPLICATE KEY UPDATE seq = LAST_INSERT_ID(seq + 1)`, day)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// TryMarkAdjusted claims the adjustment marker. The primary key on
// order_id makes the claim a storage-side compare-and-set: the second
// writer gets a duplicate-entry error and reports false.
func (s *Store) TryMarkAdjusted(ctx context.Context, orderID string) (bool, error) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO inventory_adjustments (order_id, created_at) VALUES (?, ?)`,
		orderID, time.Now().UTC())
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Stock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := s.DB.QueryRowContext(ctx,
		`SELECT stock FROM inventory WHERE product_id = ?`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return stock, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int, orderID string, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE inventory
SET stock = GREATEST(0, stock - ?), last_order_qty = ?, updated_at = ?
WHERE product_id = ?`,
		qty, qty, at, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %s not found in inventory (order %s)", productID, orderID)
	}
	return nil
}

// UpsertStock sets absolute stock for a product. Used by seeding and the
// reconciliation sweep, not by the transition path.
func (s *Store) UpsertStock(ctx context.Context, productID string, stock int) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO inventory (product_id, stock, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE stock = VALUES(stock), updated_at = VALUES(updated_at)`,
		productID, stock, time.Now().UTC())
	return err
}
