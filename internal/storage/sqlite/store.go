// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

// Package sqlite implements storage.Store over a single SQLite file. One
// venue's state fits comfortably in one file, and WAL mode keeps the
// reader-heavy sync polling from blocking order writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/antonio12761/roxy-bar-sub008/internal/models"
	"github.com/antonio12761/roxy-bar-sub008/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT NOT NULL,
	tenant_id     TEXT NOT NULL,
	username      TEXT NOT NULL,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, username)
);

CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	table_number TEXT NOT NULL,
	waiter_id    TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	total_cents  INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_tenant_status  ON orders (tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_tenant_updated ON orders (tenant_id, updated_at);

CREATE TABLE IF NOT EXISTS order_lines (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
	product_name TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	price_cents  INTEGER NOT NULL,
	station      TEXT NOT NULL,
	status       TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	ready_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_lines_order ON order_lines (order_id);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens the store, creating the file and schema when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// CreateOrder persists a new order and its lines in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertOrder = `
INSERT INTO orders (id, tenant_id, table_number, waiter_id, status, total_cents, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertOrder,
		order.ID.String(), order.TenantID, order.TableNumber, order.WaiterID,
		string(order.Status), order.TotalCents, toMillis(order.CreatedAt), toMillis(order.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err := insertLines(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveOrder replaces the stored order and its lines.
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const updateOrder = `
UPDATE orders
SET table_number = ?, waiter_id = ?, status = ?, total_cents = ?, updated_at = ?
WHERE id = ? AND tenant_id = ?`
	res, err := tx.ExecContext(ctx, updateOrder,
		order.TableNumber, order.WaiterID, string(order.Status), order.TotalCents,
		toMillis(order.UpdatedAt), order.ID.String(), order.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrOrderNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, order.ID.String()); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	if err := insertLines(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func insertLines(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	const insertLine = `
INSERT INTO order_lines (id, order_id, product_name, quantity, price_cents, station, status, notes, created_at, updated_at, ready_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i := range order.Lines {
		l := &order.Lines[i]
		var readyAt any
		if l.ReadyAt != nil {
			readyAt = toMillis(*l.ReadyAt)
		}
		if _, err := tx.ExecContext(ctx, insertLine,
			l.ID.String(), order.ID.String(), l.ProductName, l.Quantity, l.PriceCents,
			string(l.Station), string(l.Status), l.Notes,
			toMillis(l.CreatedAt), toMillis(l.UpdatedAt), readyAt,
		); err != nil {
			return fmt.Errorf("insert order line %s: %w", l.ID, err)
		}
	}
	return nil
}

// LoadOrderByID returns one order with its lines.
func (s *Store) LoadOrderByID(ctx context.Context, tenantID string, orderID uuid.UUID) (*models.Order, error) {
	const query = `
SELECT id, tenant_id, table_number, waiter_id, status, total_cents, created_at, updated_at
FROM orders
WHERE id = ? AND tenant_id = ?`
	row := s.db.QueryRowContext(ctx, query, orderID.String(), tenantID)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if err := s.attachLines(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// LoadActiveOrders returns the tenant's live-floor orders with lines.
func (s *Store) LoadActiveOrders(ctx context.Context, tenantID string) ([]*models.Order, error) {
	statuses := models.ActiveOrderStatuses()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+1)
	args = append(args, tenantID)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	query := `
SELECT id, tenant_id, table_number, waiter_id, status, total_cents, created_at, updated_at
FROM orders
WHERE tenant_id = ? AND status IN (` + placeholders + `)
ORDER BY created_at, id`
	return s.queryOrders(ctx, query, args...)
}

// LoadOrdersUpdatedSince returns orders touched at or after the instant.
func (s *Store) LoadOrdersUpdatedSince(ctx context.Context, tenantID string, since time.Time) ([]*models.Order, error) {
	const query = `
SELECT id, tenant_id, table_number, waiter_id, status, total_cents, created_at, updated_at
FROM orders
WHERE tenant_id = ? AND updated_at >= ?
ORDER BY created_at, id`
	return s.queryOrders(ctx, query, tenantID, toMillis(since))
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if err := s.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order              models.Order
		id                 string
		status             string
		createdAt, updated int64
	)
	if err := row.Scan(&id, &order.TenantID, &order.TableNumber, &order.WaiterID,
		&status, &order.TotalCents, &createdAt, &updated); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse order id %q: %w", id, err)
	}
	order.ID = parsed
	order.Status = models.OrderStatus(status)
	order.CreatedAt = fromMillis(createdAt)
	order.UpdatedAt = fromMillis(updated)
	return &order, nil
}

func (s *Store) attachLines(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orders)), ",")
	args := make([]any, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		args = append(args, o.ID.String())
	}

	query := `
SELECT id, order_id, product_name, quantity, price_cents, station, status, notes, created_at, updated_at, ready_at
FROM order_lines
WHERE order_id IN (` + placeholders + `)
ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line               models.OrderLine
			id, orderID        string
			station, status    string
			createdAt, updated int64
			readyAt            sql.NullInt64
		)
		if err := rows.Scan(&id, &orderID, &line.ProductName, &line.Quantity, &line.PriceCents,
			&station, &status, &line.Notes, &createdAt, &updated, &readyAt); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		if line.ID, err = uuid.Parse(id); err != nil {
			return fmt.Errorf("parse line id %q: %w", id, err)
		}
		if line.OrderID, err = uuid.Parse(orderID); err != nil {
			return fmt.Errorf("parse line order id %q: %w", orderID, err)
		}
		line.Station = models.Station(station)
		line.Status = models.ItemStatus(status)
		line.CreatedAt = fromMillis(createdAt)
		line.UpdatedAt = fromMillis(updated)
		if readyAt.Valid {
			t := fromMillis(readyAt.Int64)
			line.ReadyAt = &t
		}
		if order, ok := byID[line.OrderID]; ok {
			order.Lines = append(order.Lines, line)
		}
	}
	return rows.Err()
}

// FindUsersByTenantAndRoles returns the tenant's active users holding any
// of the given roles.
func (s *Store) FindUsersByTenantAndRoles(ctx context.Context, tenantID string, roles []models.Role) ([]models.UserRef, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	args := make([]any, 0, len(roles)+1)
	args = append(args, tenantID)
	for _, r := range roles {
		args = append(args, string(r))
	}

	query := `
SELECT id, username, tenant_id, role
FROM users
WHERE tenant_id = ? AND active = 1 AND role IN (` + placeholders + `)
ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []models.UserRef
	for rows.Next() {
		var u models.UserRef
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &u.TenantID, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUserByUsername returns the full account record.
func (s *Store) GetUserByUsername(ctx context.Context, tenantID, username string) (*models.User, error) {
	const query = `
SELECT id, username, tenant_id, role, password_hash, active, created_at
FROM users
WHERE tenant_id = ? AND username = ? AND active = 1`
	var (
		u         models.User
		role      string
		active    int
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, username).
		Scan(&u.ID, &u.Username, &u.TenantID, &role, &u.PasswordHash, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", username, err)
	}
	u.Role = models.Role(role)
	u.Active = active != 0
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// UpsertUser creates or replaces an account.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	const query = `
INSERT INTO users (id, tenant_id, username, role, password_hash, active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, username) DO UPDATE SET
	id = excluded.id,
	role = excluded.role,
	password_hash = excluded.password_hash,
	active = excluded.active`
	active := 0
	if user.Active {
		active = 1
	}
	if _, err := s.db.ExecContext(ctx, query,
		user.ID, user.TenantID, user.Username, string(user.Role),
		user.PasswordHash, active, toMillis(user.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert user %s: %w", user.Username, err)
	}
	return nil
}
